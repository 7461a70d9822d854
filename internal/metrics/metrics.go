// Package metrics owns the prometheus registry for the runtime. Every
// counter family lives here so instrumentation call sites stay one-liners.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics bundles the registry and its instrument families.
type Metrics struct {
	reg *prometheus.Registry

	SamplesIngested   *prometheus.CounterVec
	SamplesDropped    *prometheus.CounterVec
	QualityScore      *prometheus.GaugeVec
	Fusions           *prometheus.CounterVec
	FusionDuration    prometheus.Histogram
	SyncTuples        prometheus.Counter
	SyncTupleQuality  prometheus.Histogram
	SessionState      *prometheus.GaugeVec
	SessionReconnects *prometheus.CounterVec
	DistributorFrames *prometheus.CounterVec
	DistributorDrops  prometheus.Counter
	BatchSize         prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		SamplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synopticon_samples_ingested_total",
			Help: "Samples accepted for fusion, by source and type.",
		}, []string{"source", "type"}),
		SamplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synopticon_samples_dropped_total",
			Help: "Samples dropped before processing, by reason.",
		}, []string{"reason"}),
		QualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synopticon_quality_score",
			Help: "Most recent quality score per source and type.",
		}, []string{"source", "type"}),
		Fusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synopticon_fusions_total",
			Help: "Fusion results produced, by fusion type.",
		}, []string{"type"}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "synopticon_fusion_duration_seconds",
			Help:    "Wall time of one fusion pass.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 12),
		}),
		SyncTuples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synopticon_sync_tuples_total",
			Help: "Aligned cross-stream tuples emitted.",
		}),
		SyncTupleQuality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "synopticon_sync_tuple_quality",
			Help:    "Alignment quality of emitted tuples.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synopticon_session_state",
			Help: "Session state per device (0 disconnected through 5 failed).",
		}, []string{"device"}),
		SessionReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synopticon_session_reconnects_total",
			Help: "Reconnect attempts per device.",
		}, []string{"device"}),
		DistributorFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synopticon_distributor_frames_total",
			Help: "Frames published to the topic bus, by topic.",
		}, []string{"topic"}),
		DistributorDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synopticon_distributor_dropped_total",
			Help: "Frames dropped for slow best-effort subscribers.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "synopticon_batcher_batch_size",
			Help:    "Flushed batch sizes from the adaptive batcher.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		}),
	}
	reg.MustRegister(
		m.SamplesIngested, m.SamplesDropped, m.QualityScore,
		m.Fusions, m.FusionDuration,
		m.SyncTuples, m.SyncTupleQuality,
		m.SessionState, m.SessionReconnects,
		m.DistributorFrames, m.DistributorDrops,
		m.BatchSize,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Snapshot flattens every gathered series into name{label=value} keys. Vector
// families expand per label set; histograms report their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
