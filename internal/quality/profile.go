// Package quality scores each sample on staleness, completeness, consistency
// and plausibility, producing the aggregate quality and confidence that gate
// fusion downstream. Assessment is pure: same sample and clock reading, same
// result.
package quality

import "github.com/michaelhil/synopticon-api-sub016/internal/telemetry"

// Profile holds the per-kind scoring parameters.
type Profile struct {
	Weight            float64 `yaml:"weight"`
	ExpectedLatencyMS float64 `yaml:"expected_latency_ms"`
	Reliability       float64 `yaml:"reliability"`
}

var defaultProfiles = map[string]Profile{
	"human/physiological":     {Weight: 0.9, ExpectedLatencyMS: 100, Reliability: 0.95},
	"human/behavioral":        {Weight: 0.8, ExpectedLatencyMS: 200, Reliability: 0.85},
	"human/self_report":       {Weight: 0.6, ExpectedLatencyMS: 1000, Reliability: 0.70},
	"human/performance":       {Weight: 0.85, ExpectedLatencyMS: 150, Reliability: 0.90},
	"simulator/telemetry":     {Weight: 0.95, ExpectedLatencyMS: 16, Reliability: 0.98},
	"simulator/systems":       {Weight: 0.9, ExpectedLatencyMS: 50, Reliability: 0.95},
	"simulator/dynamics":      {Weight: 0.92, ExpectedLatencyMS: 20, Reliability: 0.97},
	"simulator/environment":   {Weight: 0.8, ExpectedLatencyMS: 100, Reliability: 0.85},
	"external/weather":        {Weight: 0.75, ExpectedLatencyMS: 5000, Reliability: 0.80},
	"external/traffic":        {Weight: 0.85, ExpectedLatencyMS: 1000, Reliability: 0.90},
	"external/navigation":     {Weight: 0.9, ExpectedLatencyMS: 500, Reliability: 0.92},
	"external/communications": {Weight: 0.7, ExpectedLatencyMS: 200, Reliability: 0.85},
}

// fallbackProfile covers kinds outside the enumerated set.
var fallbackProfile = Profile{Weight: 0.5, ExpectedLatencyMS: 1000, Reliability: 0.5}

// DefaultProfile returns the built-in profile for a kind.
func DefaultProfile(k telemetry.Kind) Profile {
	if p, ok := defaultProfiles[k.Key()]; ok {
		return p
	}
	return fallbackProfile
}

// requiredFields lists the payload fields a complete sample of each kind
// must carry, in addition to a timestamp. Vector fields are checked per
// component.
var requiredFields = map[string][]string{
	"human/physiological": {"heartRate"},
	"human/behavioral":    {"gazeX", "gazeY"},
	"human/self_report":   {"workload"},
	"human/performance":   {"accuracy", "reactionMs"},
	"simulator/telemetry": {
		"positionX", "positionY", "positionZ",
		"velocityX", "velocityY", "velocityZ",
	},
	"simulator/systems":       {"status"},
	"simulator/dynamics":      {"gForce"},
	"simulator/environment":   {"visibility"},
	"external/weather":        {"windSpeed", "visibility"},
	"external/traffic":        {"aircraftCount"},
	"external/navigation":     {"distanceToWaypoint"},
	"external/communications": {"frequency"},
}

type bound struct {
	min, max float64
}

// fieldBounds are hard validity ranges; values outside them count as
// consistency violations.
var fieldBounds = map[string]bound{
	"heartRate":          {30, 220},
	"hrv":                {0, 300},
	"respirationRate":    {4, 60},
	"skinConductance":    {0, 100},
	"gazeX":              {0, 1},
	"gazeY":              {0, 1},
	"confidence":         {0, 1},
	"pupilDiameterMm":    {0.5, 10},
	"accuracy":           {0, 1},
	"reactionMs":         {80, 5000},
	"errorRate":          {0, 1},
	"workload":           {0, 1},
	"fatigue":            {0, 1},
	"stress":             {0, 1},
	"speed":              {0, 1500},
	"altitude":           {-500, 50000},
	"headingDeg":         {0, 360},
	"throttle":           {0, 1},
	"brake":              {0, 1},
	"steering":           {-1, 1},
	"engineRpm":          {0, 20000},
	"fuel":               {0, 1},
	"damage":             {0, 1},
	"gForce":             {-12, 12},
	"windSpeed":          {0, 200},
	"windGust":           {0, 250},
	"visibility":         {0, 50000},
	"temperature":        {-90, 60},
	"precipitation":      {0, 500},
	"cloudCover":         {0, 100},
	"aircraftCount":      {0, 10000},
	"density":            {0, 1000},
	"closestNm":          {0, 1000},
	"distanceToWaypoint": {0, 100000},
	"frequency":          {108, 137},
}
