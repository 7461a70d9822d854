package quality

import (
	"math"
	"sort"
	"time"

	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Aggregate weights over the four dimensions.
const (
	wStaleness    = 0.3
	wCompleteness = 0.3
	wConsistency  = 0.2
	wPlausibility = 0.2
)

// Issue thresholds per dimension.
const (
	staleThreshold        = 0.5
	completenessThreshold = 0.7
	consistencyThreshold  = 0.5
	plausibilityThreshold = 0.5
)

// Consistency penalty weights by severity.
const (
	penaltyNonFinite  = 0.2
	penaltyOutOfRange = 0.25
	penaltyCrossField = 0.3
)

// plausibilityWindowNS mirrors the clock-layer skew gate; samples stamped
// outside this window score zero plausibility.
const plausibilityWindowNS = int64(5 * time.Minute)

// Config carries per-kind profile overrides merged over the defaults.
type Config struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Assessor scores samples. It is stateless apart from its captured profile
// table and safe for concurrent use.
type Assessor struct {
	profiles map[string]Profile
}

func NewAssessor(cfg Config) *Assessor {
	profiles := make(map[string]Profile, len(defaultProfiles)+len(cfg.Profiles))
	for k, p := range defaultProfiles {
		profiles[k] = p
	}
	for k, p := range cfg.Profiles {
		profiles[k] = p
	}
	return &Assessor{profiles: profiles}
}

// ProfileFor returns the effective profile for a kind.
func (a *Assessor) ProfileFor(k telemetry.Kind) Profile {
	if p, ok := a.profiles[k.Key()]; ok {
		return p
	}
	return fallbackProfile
}

// Assess scores one sample against the runtime clock reading nowNS.
func (a *Assessor) Assess(s telemetry.Sample, nowNS int64) telemetry.Quality {
	prof := a.ProfileFor(s.Kind())

	var fields map[string]float64
	if s.Payload != nil {
		fields = s.Payload.Fields()
	}

	stale := stalenessScore(float64(nowNS-s.Timestamp)/1e6, prof.ExpectedLatencyMS)
	complete, missing := completenessScore(s, fields)
	consistent, inconsistencies := consistencyScore(fields)
	plausible, implausibilities := plausibilityScore(s.Timestamp, nowNS, fields)

	quality := wStaleness*stale + wCompleteness*complete + wConsistency*consistent + wPlausibility*plausible
	confidence := quality * prof.Reliability

	var issues []string
	if stale < staleThreshold {
		issues = append(issues, "stale")
	}
	if complete < completenessThreshold {
		issues = append(issues, "incomplete")
	}
	if consistent < consistencyThreshold {
		issues = append(issues, "inconsistent")
	}
	if plausible < plausibilityThreshold {
		issues = append(issues, "implausible")
	}
	for _, f := range missing {
		issues = append(issues, "missing "+f)
	}
	issues = append(issues, inconsistencies...)
	issues = append(issues, implausibilities...)

	return telemetry.Quality{
		Quality:      clamp01(quality),
		Confidence:   clamp01(confidence),
		Staleness:    stale,
		Completeness: complete,
		Consistency:  consistent,
		Plausibility: plausible,
		Issues:       issues,
	}
}

func stalenessScore(ageMS, expectedMS float64) float64 {
	if expectedMS <= 0 {
		expectedMS = 1
	}
	cutoff := 10 * expectedMS
	switch {
	case ageMS <= expectedMS:
		return 1
	case ageMS >= cutoff:
		return 0
	default:
		return (cutoff - ageMS) / (cutoff - expectedMS)
	}
}

func completenessScore(s telemetry.Sample, fields map[string]float64) (float64, []string) {
	required := requiredFields[s.Key()]
	total := len(required) + 1 // timestamp is always required
	present := 0
	if s.Timestamp > 0 {
		present++
	}
	var missing []string
	for _, f := range required {
		if v, ok := fields[f]; ok && isFinite(v) {
			present++
		} else {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return float64(present) / float64(total), missing
}

func consistencyScore(fields map[string]float64) (float64, []string) {
	penalty := 0.0
	var issues []string
	for name, v := range fields {
		if !isFinite(v) {
			penalty += penaltyNonFinite
			issues = append(issues, name+" not finite")
			continue
		}
		if b, ok := fieldBounds[name]; ok && (v < b.min || v > b.max) {
			penalty += penaltyOutOfRange
			issues = append(issues, name+" out of range")
		}
	}
	if hr, ok := fields["heartRate"]; ok {
		if hrv, ok2 := fields["hrv"]; ok2 && hr > 180 && hrv > 50 {
			penalty += penaltyCrossField
			issues = append(issues, "heartRate/hrv conflict")
		}
	}
	sort.Strings(issues)
	return math.Max(0.1, 1-penalty), issues
}

// extremeChecks flag values that pass hard bounds but are extreme enough to
// doubt, each costing 0.3.
var extremeChecks = []struct {
	field string
	bad   func(v float64) bool
	tag   string
}{
	{"gForce", func(v float64) bool { return math.Abs(v) > 5 }, "extreme gForce"},
	{"windSpeed", func(v float64) bool { return v > 100 }, "extreme windSpeed"},
	{"visibility", func(v float64) bool { return v < 100 }, "near-zero visibility"},
	{"heartRate", func(v float64) bool { return v > 200 }, "extreme heartRate"},
	{"speed", func(v float64) bool { return v > 700 }, "extreme speed"},
}

func plausibilityScore(ts, nowNS int64, fields map[string]float64) (float64, []string) {
	delta := nowNS - ts
	if delta < -plausibilityWindowNS || delta > plausibilityWindowNS {
		return 0, []string{"timestamp outside plausibility window"}
	}
	score := 1.0
	var issues []string
	for _, c := range extremeChecks {
		if v, ok := fields[c.field]; ok && isFinite(v) && c.bad(v) {
			score -= 0.3
			issues = append(issues, c.tag)
		}
	}
	sort.Strings(issues)
	return clamp01(score), issues
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
