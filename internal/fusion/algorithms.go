package fusion

import (
	"math"

	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Modality weight sets. Cognitive load leans on behavioral and performance
// evidence, fatigue and stress on physiology. Weights renormalize over the
// modalities actually present.
var (
	loadWeights = map[telemetry.Type]float64{
		telemetry.TypeBehavioral:    0.4,
		telemetry.TypePerformance:   0.3,
		telemetry.TypePhysiological: 0.2,
		telemetry.TypeSelfReport:    0.1,
	}
	fatigueWeights = map[telemetry.Type]float64{
		telemetry.TypePhysiological: 0.35,
		telemetry.TypeBehavioral:    0.30,
		telemetry.TypePerformance:   0.25,
		telemetry.TypeSelfReport:    0.10,
	}
	stressWeights = map[telemetry.Type]float64{
		telemetry.TypePhysiological: 0.40,
		telemetry.TypeBehavioral:    0.25,
		telemetry.TypePerformance:   0.20,
		telemetry.TypeSelfReport:    0.15,
	}
)

// humanModalityOrder fixes the listing order of result sources.
var humanModalityOrder = []telemetry.Type{
	telemetry.TypePhysiological,
	telemetry.TypeBehavioral,
	telemetry.TypePerformance,
	telemetry.TypeSelfReport,
}

type modalityScores struct {
	load    float64
	fatigue float64
	stress  float64
}

// scoreModality maps one modality's fields onto load/fatigue/stress cues in
// [0,1]. Optional cues fall back on the modality's primary cue.
func scoreModality(t telemetry.Type, f map[string]float64) modalityScores {
	switch t {
	case telemetry.TypePhysiological:
		base := clamp01((f["heartRate"] - 60) / 60)
		m := modalityScores{load: base, fatigue: base, stress: base}
		if hrv, ok := f["hrv"]; ok {
			m.fatigue = clamp01(1 - hrv/100)
		}
		if gsr, ok := f["skinConductance"]; ok {
			m.stress = clamp01(0.5 * (base + clamp01(gsr/20)))
		}
		return m

	case telemetry.TypeBehavioral:
		var cues []float64
		if v, ok := f["saccadeRate"]; ok {
			cues = append(cues, clamp01(v/5))
		}
		if v, ok := f["pupilDiameterMm"]; ok {
			cues = append(cues, clamp01((v-2)/4))
		}
		if v, ok := f["fixationMs"]; ok {
			cues = append(cues, clamp01(1-v/1000))
		}
		load := 0.5
		if len(cues) > 0 {
			load = mean(cues)
		}
		m := modalityScores{load: load, fatigue: load, stress: load}
		if v, ok := f["blinkRate"]; ok {
			m.fatigue = clamp01(v / 30)
		}
		if v, ok := f["pupilDiameterMm"]; ok {
			m.stress = clamp01((v - 2) / 4)
		}
		return m

	case telemetry.TypePerformance:
		slow := clamp01((f["reactionMs"] - 200) / 800)
		inacc := clamp01(1 - f["accuracy"])
		m := modalityScores{
			load:    0.5*slow + 0.5*inacc,
			fatigue: clamp01((f["reactionMs"] - 200) / 1000),
			stress:  inacc,
		}
		if er, ok := f["errorRate"]; ok {
			m.stress = clamp01(0.5 * (inacc + clamp01(er)))
		}
		return m

	case telemetry.TypeSelfReport:
		w := clamp01(f["workload"])
		m := modalityScores{load: w, fatigue: 0.8 * w, stress: 0.7 * w}
		if v, ok := f["fatigue"]; ok {
			m.fatigue = clamp01(v)
		}
		if v, ok := f["stress"]; ok {
			m.stress = clamp01(v)
		}
		return m
	}
	return modalityScores{}
}

func blend(scores map[telemetry.Type]modalityScores, weights map[telemetry.Type]float64, pick func(modalityScores) float64) float64 {
	num, den := 0.0, 0.0
	for t, s := range scores {
		w := weights[t]
		num += w * pick(s)
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// ComputeHumanState blends the present human modalities into one state
// estimate. Confidence is the mean quality of the contributing samples.
func ComputeHumanState(inputs map[telemetry.Type]telemetry.EnrichedSample) (HumanState, float64) {
	scores := make(map[telemetry.Type]modalityScores, len(inputs))
	var sources []string
	qsum, qn := 0.0, 0
	for _, t := range humanModalityOrder {
		es, ok := inputs[t]
		if !ok {
			continue
		}
		scores[t] = scoreModality(t, es.Payload.Fields())
		sources = append(sources, es.Key())
		qsum += es.Quality.Quality
		qn++
	}
	if qn == 0 {
		return HumanState{}, 0
	}

	load := blend(scores, loadWeights, func(m modalityScores) float64 { return m.load })
	fatigue := blend(scores, fatigueWeights, func(m modalityScores) float64 { return m.fatigue })
	stress := blend(scores, stressWeights, func(m modalityScores) float64 { return m.stress })

	return HumanState{
		CognitiveLoad: load,
		Fatigue:       fatigue,
		Stress:        stress,
		OverallState:  (load + fatigue + stress) / 3,
		Sources:       sources,
	}, qsum / float64(qn)
}

// Environmental risk factor weights.
var envWeights = map[telemetry.Type]float64{
	telemetry.TypeWeather: 0.6,
	telemetry.TypeTraffic: 0.4,
}

var envFactorOrder = []telemetry.Type{telemetry.TypeWeather, telemetry.TypeTraffic}

func weatherRisk(f map[string]float64) (float64, []string) {
	var cues []float64
	var factors []string
	add := func(v float64, label string) {
		cues = append(cues, v)
		if v > 0.5 {
			factors = append(factors, label)
		}
	}
	add(clamp01(f["windSpeed"]/25), "high-wind")
	add(clamp01(1-f["visibility"]/10000), "low-visibility")
	if v, ok := f["windGust"]; ok {
		add(clamp01(v/30), "strong-gusts")
	}
	if v, ok := f["precipitation"]; ok {
		add(clamp01(v/10), "precipitation")
	}
	return mean(cues), factors
}

func trafficRisk(f map[string]float64) (float64, []string) {
	var cues []float64
	var factors []string
	add := func(v float64, label string) {
		cues = append(cues, v)
		if v > 0.5 {
			factors = append(factors, label)
		}
	}
	add(clamp01(f["aircraftCount"]/20), "dense-traffic")
	if v, ok := f["closestNm"]; ok {
		add(clamp01(1-v/10), "proximity-conflict")
	}
	if v, ok := f["density"]; ok {
		add(clamp01(v/5), "high-density")
	}
	return mean(cues), factors
}

// ComputeEnvironmental blends the present external risk factors. Confidence
// is the mean quality of the contributing samples.
func ComputeEnvironmental(inputs map[telemetry.Type]telemetry.EnrichedSample) (Environmental, float64) {
	var factors []RiskFactor
	num, den := 0.0, 0.0
	qsum, qn := 0.0, 0
	for _, t := range envFactorOrder {
		es, ok := inputs[t]
		if !ok {
			continue
		}
		var risk float64
		var labels []string
		switch t {
		case telemetry.TypeWeather:
			risk, labels = weatherRisk(es.Payload.Fields())
		case telemetry.TypeTraffic:
			risk, labels = trafficRisk(es.Payload.Fields())
		}
		factors = append(factors, RiskFactor{Type: string(t), Risk: risk, Factors: labels})
		w := envWeights[t]
		num += w * risk
		den += w
		qsum += es.Quality.Quality
		qn++
	}
	if qn == 0 {
		return Environmental{}, 0
	}

	total := num / den
	rec := RecommendProceedNormal
	switch {
	case total >= 0.7:
		rec = RecommendHighCaution
	case total >= 0.4:
		rec = RecommendModerateCaution
	}
	return Environmental{TotalRisk: total, RiskFactors: factors, Recommendation: rec}, qsum / float64(qn)
}

var saRecommendations = map[SAStatus][]string{
	StatusOverload:     {"reduce-task-load", "increase-automation", "request-assistance"},
	StatusHighLoad:     {"monitor-closely", "defer-noncritical-tasks"},
	StatusModerateLoad: {"maintain-vigilance"},
	StatusLowLoad:      {"normal-operations"},
}

// telemetryComplexity estimates task complexity from vehicle speed and
// control activity.
func telemetryComplexity(f map[string]float64) float64 {
	speed := clamp01(f["speed"] / 100)
	control := clamp01((math.Abs(f["steering"]) + f["brake"] + f["throttle"]) / 3)
	return 0.5*speed + 0.5*control
}

// ComputeSituationalAwareness relates environmental and task demand to the
// operator's remaining capability. Confidence is the mean of the two input
// result confidences and the telemetry sample quality.
func ComputeSituationalAwareness(human HumanState, env Environmental, tele telemetry.EnrichedSample, humanConf, envConf float64) (SituationalAwareness, float64) {
	demand := 0.6*env.TotalRisk + 0.4*telemetryComplexity(tele.Payload.Fields())
	capability := 0.6*(1-human.CognitiveLoad) + 0.4*(1-human.Fatigue)
	ratio := demand / math.Max(capability, 1e-3)
	level := 1 - clamp01(ratio-1)

	status := StatusLowLoad
	switch {
	case ratio > 1.5:
		status = StatusOverload
	case ratio > 1.0:
		status = StatusHighLoad
	case ratio > 0.7:
		status = StatusModerateLoad
	}

	recs := make([]string, len(saRecommendations[status]))
	copy(recs, saRecommendations[status])

	sa := SituationalAwareness{
		Level:           level,
		Demand:          demand,
		Capability:      capability,
		Ratio:           ratio,
		Status:          status,
		Recommendations: recs,
	}
	return sa, (humanConf + envConf + tele.Quality.Quality) / 3
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
