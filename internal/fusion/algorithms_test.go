package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func enriched(p telemetry.Payload, ts int64, q float64) telemetry.EnrichedSample {
	return telemetry.EnrichedSample{
		Sample: telemetry.NewSample(p, ts, ts),
		Quality: telemetry.Quality{
			Quality: q, Confidence: q,
			Staleness: 1, Completeness: 1, Consistency: 1, Plausibility: 1,
		},
	}
}

func TestComputeHumanStateAllModalities(t *testing.T) {
	inputs := map[telemetry.Type]telemetry.EnrichedSample{
		telemetry.TypePhysiological: enriched(telemetry.Physiological{HeartRate: 90, HRV: telemetry.Opt(40)}, 1, 0.8),
		telemetry.TypeBehavioral:    enriched(telemetry.Behavioral{GazeX: 0.5, GazeY: 0.5, Confidence: 0.9, Worn: true, SaccadeRate: telemetry.Opt(2.5)}, 1, 0.8),
		telemetry.TypePerformance:   enriched(telemetry.Performance{Accuracy: 0.8, ReactionMS: 600}, 1, 0.8),
		telemetry.TypeSelfReport:    enriched(telemetry.SelfReport{Workload: 0.5}, 1, 0.8),
	}

	hs, conf := ComputeHumanState(inputs)

	// physio: base 0.5, fatigue 1-40/100=0.6
	// behavioral: saccade cue 2.5/5=0.5 everywhere
	// performance: load 0.5*0.5+0.5*0.2=0.35, fatigue 0.4, stress 0.2
	// self-report: load 0.5, fatigue 0.4, stress 0.35
	assert.InDelta(t, 0.4*0.5+0.3*0.35+0.2*0.5+0.1*0.5, hs.CognitiveLoad, 1e-9)
	assert.InDelta(t, 0.35*0.6+0.30*0.5+0.25*0.4+0.10*0.4, hs.Fatigue, 1e-9)
	assert.InDelta(t, 0.40*0.5+0.25*0.5+0.20*0.2+0.15*0.35, hs.Stress, 1e-9)
	assert.InDelta(t, (hs.CognitiveLoad+hs.Fatigue+hs.Stress)/3, hs.OverallState, 1e-9)
	assert.InDelta(t, 0.8, conf, 1e-9)
	assert.Equal(t, []string{
		"human/physiological",
		"human/behavioral",
		"human/performance",
		"human/self_report",
	}, hs.Sources)
}

func TestComputeHumanStateRenormalizesOverPresent(t *testing.T) {
	inputs := map[telemetry.Type]telemetry.EnrichedSample{
		telemetry.TypePhysiological: enriched(telemetry.Physiological{HeartRate: 120}, 1, 0.9),
	}

	hs, conf := ComputeHumanState(inputs)

	// A single modality carries full weight after renormalization.
	assert.InDelta(t, 1.0, hs.CognitiveLoad, 1e-9)
	assert.InDelta(t, 1.0, hs.Fatigue, 1e-9)
	assert.InDelta(t, 1.0, hs.Stress, 1e-9)
	assert.InDelta(t, 1.0, hs.OverallState, 1e-9)
	assert.InDelta(t, 0.9, conf, 1e-9)
	assert.Equal(t, []string{"human/physiological"}, hs.Sources)
}

func TestComputeHumanStateEmpty(t *testing.T) {
	hs, conf := ComputeHumanState(nil)
	assert.Zero(t, hs)
	assert.Zero(t, conf)
}

func TestScoreModalityFallbacks(t *testing.T) {
	// Behavioral with no optional cues sits at the neutral midpoint.
	m := scoreModality(telemetry.TypeBehavioral, telemetry.Behavioral{GazeX: 0.2, GazeY: 0.2}.Fields())
	assert.InDelta(t, 0.5, m.load, 1e-9)
	assert.InDelta(t, 0.5, m.fatigue, 1e-9)
	assert.InDelta(t, 0.5, m.stress, 1e-9)

	// Self-report without explicit fatigue/stress scales workload down.
	m = scoreModality(telemetry.TypeSelfReport, telemetry.SelfReport{Workload: 1}.Fields())
	assert.InDelta(t, 1.0, m.load, 1e-9)
	assert.InDelta(t, 0.8, m.fatigue, 1e-9)
	assert.InDelta(t, 0.7, m.stress, 1e-9)

	// Physiology uses HRV and skin conductance when present.
	m = scoreModality(telemetry.TypePhysiological, telemetry.Physiological{
		HeartRate:       90,
		HRV:             telemetry.Opt(20),
		SkinConductance: telemetry.Opt(10),
	}.Fields())
	assert.InDelta(t, 0.5, m.load, 1e-9)
	assert.InDelta(t, 0.8, m.fatigue, 1e-9)
	assert.InDelta(t, 0.5*(0.5+0.5), m.stress, 1e-9)
}

func TestComputeEnvironmentalWeatherOnly(t *testing.T) {
	inputs := map[telemetry.Type]telemetry.EnrichedSample{
		telemetry.TypeWeather: enriched(telemetry.Weather{WindSpeedMPS: 20, VisibilityM: 2000}, 1, 0.85),
	}

	env, conf := ComputeEnvironmental(inputs)

	require.Len(t, env.RiskFactors, 1)
	assert.Equal(t, "weather", env.RiskFactors[0].Type)
	assert.InDelta(t, 0.8, env.RiskFactors[0].Risk, 1e-9)
	assert.ElementsMatch(t, []string{"high-wind", "low-visibility"}, env.RiskFactors[0].Factors)
	assert.InDelta(t, 0.8, env.TotalRisk, 1e-9)
	assert.Equal(t, RecommendHighCaution, env.Recommendation)
	assert.InDelta(t, 0.85, conf, 1e-9)
}

func TestComputeEnvironmentalBlendsFactors(t *testing.T) {
	inputs := map[telemetry.Type]telemetry.EnrichedSample{
		telemetry.TypeWeather: enriched(telemetry.Weather{WindSpeedMPS: 10, VisibilityM: 9000}, 1, 0.8),
		telemetry.TypeTraffic: enriched(telemetry.Traffic{AircraftCount: 16, ClosestNM: telemetry.Opt(2)}, 1, 0.6),
	}

	env, conf := ComputeEnvironmental(inputs)

	require.Len(t, env.RiskFactors, 2)
	assert.InDelta(t, 0.25, env.RiskFactors[0].Risk, 1e-9)
	assert.Empty(t, env.RiskFactors[0].Factors)
	assert.InDelta(t, 0.8, env.RiskFactors[1].Risk, 1e-9)
	assert.ElementsMatch(t, []string{"dense-traffic", "proximity-conflict"}, env.RiskFactors[1].Factors)

	assert.InDelta(t, 0.6*0.25+0.4*0.8, env.TotalRisk, 1e-9)
	assert.Equal(t, RecommendModerateCaution, env.Recommendation)
	assert.InDelta(t, 0.7, conf, 1e-9)
}

func TestEnvironmentalRecommendationBuckets(t *testing.T) {
	weatherOnly := func(wind, vis float64) Environmental {
		env, _ := ComputeEnvironmental(map[telemetry.Type]telemetry.EnrichedSample{
			telemetry.TypeWeather: enriched(telemetry.Weather{WindSpeedMPS: wind, VisibilityM: vis}, 1, 1),
		})
		return env
	}

	assert.Equal(t, RecommendHighCaution, weatherOnly(18.75, 2500).Recommendation)   // risk 0.75
	assert.Equal(t, RecommendModerateCaution, weatherOnly(25, 10000).Recommendation) // risk 0.5
	assert.Equal(t, RecommendProceedNormal, weatherOnly(2.5, 9000).Recommendation)   // risk 0.1
}

func TestComputeEnvironmentalEmpty(t *testing.T) {
	env, conf := ComputeEnvironmental(nil)
	assert.Zero(t, env)
	assert.Zero(t, conf)
}

func saInputs(load, fatigue, risk, speed float64) (HumanState, Environmental, telemetry.EnrichedSample) {
	human := HumanState{CognitiveLoad: load, Fatigue: fatigue}
	env := Environmental{TotalRisk: risk}
	tele := enriched(telemetry.VehicleTelemetry{SpeedMPS: speed}, 1, 0.9)
	return human, env, tele
}

func TestComputeSituationalAwarenessOverload(t *testing.T) {
	human := HumanState{CognitiveLoad: 0.5, Fatigue: 0.5}
	env := Environmental{TotalRisk: 0.9}
	tele := enriched(telemetry.VehicleTelemetry{
		SpeedMPS: 100, Throttle: 1, Brake: 1, Steering: -1,
	}, 1, 0.9)

	sa, conf := ComputeSituationalAwareness(human, env, tele, 0.8, 0.7)

	assert.InDelta(t, 0.94, sa.Demand, 1e-9)
	assert.InDelta(t, 0.5, sa.Capability, 1e-9)
	assert.InDelta(t, 1.88, sa.Ratio, 1e-9)
	assert.Equal(t, StatusOverload, sa.Status)
	assert.InDelta(t, 1-0.88, sa.Level, 1e-9)
	assert.Equal(t, saRecommendations[StatusOverload], sa.Recommendations)
	assert.InDelta(t, (0.8+0.7+0.9)/3, conf, 1e-9)
}

func TestComputeSituationalAwarenessLowLoad(t *testing.T) {
	human, env, tele := saInputs(0.2, 0.2, 0.1, 10)

	sa, _ := ComputeSituationalAwareness(human, env, tele, 0.9, 0.9)

	assert.InDelta(t, 0.6*0.1+0.4*0.05, sa.Demand, 1e-9)
	assert.InDelta(t, 0.8, sa.Capability, 1e-9)
	assert.Equal(t, StatusLowLoad, sa.Status)
	assert.InDelta(t, 1.0, sa.Level, 1e-9)
	assert.Equal(t, []string{"normal-operations"}, sa.Recommendations)
}

func TestSituationalAwarenessStatusBuckets(t *testing.T) {
	// Capability is pinned at 0.5 so the ratio is roughly 1.2*risk with
	// zero telemetry complexity.
	human := HumanState{CognitiveLoad: 0.5, Fatigue: 0.5}
	tele := enriched(telemetry.VehicleTelemetry{}, 1, 1)

	at := func(risk float64) SAStatus {
		sa, _ := ComputeSituationalAwareness(human, Environmental{TotalRisk: risk}, tele, 1, 1)
		return sa.Status
	}

	assert.Equal(t, StatusOverload, at(1.3))      // ratio 1.56
	assert.Equal(t, StatusHighLoad, at(1.24))     // ratio 1.49
	assert.Equal(t, StatusHighLoad, at(0.85))     // ratio 1.02
	assert.Equal(t, StatusModerateLoad, at(0.82)) // ratio 0.98
	assert.Equal(t, StatusModerateLoad, at(0.59)) // ratio 0.71
	assert.Equal(t, StatusLowLoad, at(0.57))      // ratio 0.68
}

func TestSituationalAwarenessCapabilityFloor(t *testing.T) {
	human := HumanState{CognitiveLoad: 1, Fatigue: 1}
	env := Environmental{TotalRisk: 0.5}
	tele := enriched(telemetry.VehicleTelemetry{}, 1, 1)

	sa, _ := ComputeSituationalAwareness(human, env, tele, 1, 1)

	assert.Zero(t, sa.Capability)
	assert.Equal(t, StatusOverload, sa.Status)
	assert.Zero(t, sa.Level)
}

func TestRecommendationsAreCopies(t *testing.T) {
	human, env, tele := saInputs(0.2, 0.2, 0.1, 10)
	sa, _ := ComputeSituationalAwareness(human, env, tele, 1, 1)
	require.NotEmpty(t, sa.Recommendations)
	sa.Recommendations[0] = "mutated"

	again, _ := ComputeSituationalAwareness(human, env, tele, 1, 1)
	assert.Equal(t, "normal-operations", again.Recommendations[0])
}
