package temporal

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Direction classifies a trend.
type Direction string

const (
	DirectionIncreasing   Direction = "increasing"
	DirectionDecreasing   Direction = "decreasing"
	DirectionStable       Direction = "stable"
	DirectionInsufficient Direction = "insufficient-data"
)

// Trend significance and slope thresholds.
const (
	minTrendSamples = 3
	tStable         = 1.5
	slopeEpsilon    = 0.01
	seFloor         = 1e-3
)

// Trend is the weighted regression summary of one series window.
type Trend struct {
	Direction  Direction `json:"direction"`
	Slope      float64   `json:"slope"` // value units per second
	Intercept  float64   `json:"intercept"`
	StdError   float64   `json:"stdError"`
	R2         float64   `json:"r2"`
	TStat      float64   `json:"tStat"`
	Confidence float64   `json:"confidence"`
	Samples    int       `json:"samples"`
	Mean       float64   `json:"mean"`
	Sigma      float64   `json:"sigma"`
	SpanMS     int64     `json:"spanMs"`
	ComputedAt int64     `json:"-"`
}

type cachedTrend struct {
	trend    Trend
	windowNS int64
}

// computeTrend runs a quality-weighted least-squares fit over the window.
// Weights are the per-point qualities normalized to sum to n; confidence is
// the equal-weight mean of five sub-scores (sample count, unweighted R²,
// mean quality, temporal coverage, significance).
func computeTrend(pts []Point, windowNS int64) Trend {
	n := len(pts)
	if n < minTrendSamples {
		return Trend{Direction: DirectionInsufficient, Samples: n, Mean: meanValue(pts), Sigma: sigmaValue(pts)}
	}
	spanNS := pts[n-1].TS - pts[0].TS
	if spanNS <= 0 {
		return Trend{Direction: DirectionInsufficient, Samples: n, Mean: meanValue(pts), Sigma: sigmaValue(pts)}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	qualitySum := 0.0
	for i, p := range pts {
		xs[i] = float64(p.TS-pts[0].TS) / 1e9
		ys[i] = p.Value
		ws[i] = p.Quality
		qualitySum += p.Quality
	}
	meanQ := qualitySum / float64(n)
	if qualitySum <= 0 {
		for i := range ws {
			ws[i] = 1
		}
		qualitySum = float64(n)
	}
	scale := float64(n) / qualitySum
	for i := range ws {
		ws[i] *= scale
	}

	intercept, slope := stat.LinearRegression(xs, ys, ws, false)
	alphaU, betaU := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alphaU, betaU)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	se := weightedSlopeStdError(xs, ys, ws, intercept, slope)
	tstat := math.Abs(slope) / math.Max(se, seFloor)

	dir := DirectionStable
	if tstat >= tStable {
		switch {
		case slope > slopeEpsilon:
			dir = DirectionIncreasing
		case slope < -slopeEpsilon:
			dir = DirectionDecreasing
		}
	}

	coverage := 0.0
	if windowNS > 0 {
		coverage = float64(spanNS) / float64(windowNS)
	}
	confidence := (clamp01(float64(n)/10) +
		clamp01(r2) +
		clamp01(meanQ) +
		clamp01(coverage) +
		clamp01(tstat/2)) / 5

	return Trend{
		Direction:  dir,
		Slope:      slope,
		Intercept:  intercept,
		StdError:   se,
		R2:         r2,
		TStat:      tstat,
		Confidence: confidence,
		Samples:    n,
		Mean:       meanValue(pts),
		Sigma:      sigmaValue(pts),
		SpanMS:     spanNS / 1e6,
	}
}

// weightedSlopeStdError is the standard error of the weighted slope
// estimate: sqrt(SSE_w / ((n-2) * Sxx_w)).
func weightedSlopeStdError(xs, ys, ws []float64, intercept, slope float64) float64 {
	n := len(xs)
	sw := 0.0
	sx := 0.0
	for i := range xs {
		sw += ws[i]
		sx += ws[i] * xs[i]
	}
	if sw == 0 {
		return math.Inf(1)
	}
	xbar := sx / sw

	sse := 0.0
	sxx := 0.0
	for i := range xs {
		r := ys[i] - (intercept + slope*xs[i])
		sse += ws[i] * r * r
		d := xs[i] - xbar
		sxx += ws[i] * d * d
	}
	if sxx == 0 || n <= 2 {
		return math.Inf(1)
	}
	return math.Sqrt(sse / (float64(n-2) * sxx))
}

func meanValue(pts []Point) float64 {
	if len(pts) == 0 {
		return 0
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	return stat.Mean(vals, nil)
}

func sigmaValue(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	sigma := stat.PopStdDev(vals, nil)
	if math.IsNaN(sigma) {
		return 0
	}
	return sigma
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
