// Package fusion turns the freshest samples of each stream into higher
// level estimates: human state, environmental risk and situational
// awareness. The engine owns trigger evaluation and result bookkeeping; the
// algorithms themselves are pure functions over enriched samples.
package fusion

// ResultType names one fusion product.
type ResultType string

const (
	ResultHumanState           ResultType = "human-state"
	ResultEnvironmental        ResultType = "environmental"
	ResultSituationalAwareness ResultType = "situational-awareness"
)

// HumanState blends the human modalities into load, fatigue and stress
// scores, all in [0,1].
type HumanState struct {
	CognitiveLoad float64  `json:"cognitiveLoad"`
	Fatigue       float64  `json:"fatigue"`
	Stress        float64  `json:"stress"`
	OverallState  float64  `json:"overallState"`
	Sources       []string `json:"sources"`
}

// Recommendation buckets for environmental risk.
const (
	RecommendHighCaution     = "high-caution"
	RecommendModerateCaution = "moderate-caution"
	RecommendProceedNormal   = "proceed-normal"
)

// RiskFactor is one contributor to the environmental estimate.
type RiskFactor struct {
	Type    string   `json:"type"`
	Risk    float64  `json:"risk"`
	Factors []string `json:"factors,omitempty"`
}

// Environmental is the weighted blend of external risk factors.
type Environmental struct {
	TotalRisk      float64      `json:"totalRisk"`
	RiskFactors    []RiskFactor `json:"riskFactors"`
	Recommendation string       `json:"recommendation"`
}

// SAStatus buckets the demand/capability ratio.
type SAStatus string

const (
	StatusOverload     SAStatus = "overload"
	StatusHighLoad     SAStatus = "high-load"
	StatusModerateLoad SAStatus = "moderate-load"
	StatusLowLoad      SAStatus = "low-load"
)

// SituationalAwareness relates task demand to operator capability.
type SituationalAwareness struct {
	Level           float64  `json:"level"`
	Demand          float64  `json:"demand"`
	Capability      float64  `json:"capability"`
	Ratio           float64  `json:"ratio"`
	Status          SAStatus `json:"status"`
	Recommendations []string `json:"recommendations"`
}

// Result is one fusion product. Exactly one of the typed bodies is set,
// matching Type.
type Result struct {
	Type       ResultType            `json:"fusion_type"`
	Timestamp  int64                 `json:"timestamp"`
	Confidence float64               `json:"confidence"`
	Human      *HumanState           `json:"humanState,omitempty"`
	Env        *Environmental        `json:"environmental,omitempty"`
	SA         *SituationalAwareness `json:"situationalAwareness,omitempty"`
	Context    map[string]string     `json:"context,omitempty"`
}

// PrimaryValue is the scalar tracked in the temporal store for this result
// type: overall human state, total risk, or awareness level.
func (r Result) PrimaryValue() (float64, bool) {
	switch {
	case r.Human != nil:
		return r.Human.OverallState, true
	case r.Env != nil:
		return r.Env.TotalRisk, true
	case r.SA != nil:
		return r.SA.Level, true
	}
	return 0, false
}
