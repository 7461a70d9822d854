package telemetry

// Sample is one timestamped observation from a source. Samples are immutable
// once constructed; consumers receive copies and must not mutate payloads.
type Sample struct {
	Source Source
	Type   Type

	// Timestamp is monotonic nanoseconds on the runtime clock, already
	// skew-corrected for external sources. Zero means the source supplied
	// no usable timestamp.
	Timestamp int64

	// Ingested is the monotonic nanosecond the runtime first saw the sample.
	Ingested int64

	Payload Payload
}

// Kind returns the (source, type) pair of the sample.
func (s Sample) Kind() Kind { return Kind{s.Source, s.Type} }

// Key returns the canonical stream key, e.g. "simulator/telemetry".
func (s Sample) Key() string { return s.Kind().Key() }

// NewSample builds a sample whose kind is derived from the payload.
func NewSample(p Payload, timestamp, ingested int64) Sample {
	k := p.Kind()
	return Sample{
		Source:    k.Source,
		Type:      k.Type,
		Timestamp: timestamp,
		Ingested:  ingested,
		Payload:   p,
	}
}

// Quality is the multi-dimensional assessment attached to a sample. All
// scores are in [0,1]; Confidence never exceeds Quality.
type Quality struct {
	Quality      float64  `json:"quality"`
	Confidence   float64  `json:"confidence"`
	Staleness    float64  `json:"staleness"`
	Completeness float64  `json:"completeness"`
	Consistency  float64  `json:"consistency"`
	Plausibility float64  `json:"plausibility"`
	Issues       []string `json:"issues,omitempty"`
}

// EnrichedSample is a sample after quality assessment, carrying the node's
// per-stream sequence number. Copies travel by value through the pipeline.
type EnrichedSample struct {
	Sample
	Quality  Quality
	Sequence uint64
}
