package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFlattensLabels(t *testing.T) {
	m := New()
	m.SamplesIngested.WithLabelValues("neon-1", "gaze").Add(3)
	m.SamplesIngested.WithLabelValues("msfs-1", "telemetry").Inc()
	m.SamplesDropped.WithLabelValues("backpressure").Inc()
	m.QualityScore.WithLabelValues("neon-1", "gaze").Set(0.92)
	m.SyncTuples.Add(7)

	snap, err := m.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 3.0, snap["synopticon_samples_ingested_total{source=neon-1}{type=gaze}"])
	assert.Equal(t, 1.0, snap["synopticon_samples_ingested_total{source=msfs-1}{type=telemetry}"])
	assert.Equal(t, 1.0, snap["synopticon_samples_dropped_total{reason=backpressure}"])
	assert.Equal(t, 0.92, snap["synopticon_quality_score{source=neon-1}{type=gaze}"])
	assert.Equal(t, 7.0, snap["synopticon_sync_tuples_total"])
}

func TestHistogramSnapshotReportsCount(t *testing.T) {
	m := New()
	m.FusionDuration.Observe(0.001)
	m.FusionDuration.Observe(0.002)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap["synopticon_fusion_duration_seconds"])
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.Fusions.WithLabelValues("human-state").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `synopticon_fusions_total{type="human-state"} 1`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SyncTuples.Inc()

	snapB, err := b.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, snapB["synopticon_sync_tuples_total"])
}
