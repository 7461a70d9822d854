package temporal

import "sort"

// AnomalyKind classifies a detected anomaly.
type AnomalyKind string

const (
	AnomalyOutlier     AnomalyKind = "outlier"
	AnomalyQualityDrop AnomalyKind = "quality-drop"
	AnomalyTrendBreak  AnomalyKind = "trend-break"
)

const (
	outlierSigma     = 2.0
	qualityDropFloor = 0.3
	maxAnomalies     = 5
	localSlopeWindow = 4
)

// Anomaly is one flagged point with a comparable score in [0,1].
type Anomaly struct {
	Kind  AnomalyKind `json:"kind"`
	Index int         `json:"index"`
	TS    int64       `json:"ts"`
	Value float64     `json:"value"`
	Score float64     `json:"score"`
}

// detectAnomalies scans a window for outliers, quality drops and trend
// breaks, returning at most the five highest-scoring findings.
func detectAnomalies(pts []Point) []Anomaly {
	if len(pts) == 0 {
		return nil
	}
	mean := meanValue(pts)
	sigma := sigmaValue(pts)

	var found []Anomaly

	if sigma > 0 {
		for i, p := range pts {
			z := abs(p.Value-mean) / sigma
			if z > outlierSigma {
				found = append(found, Anomaly{
					Kind:  AnomalyOutlier,
					Index: i,
					TS:    p.TS,
					Value: p.Value,
					Score: clamp01(z / (2 * outlierSigma)),
				})
			}
		}
	}

	for i, p := range pts {
		if p.Quality < qualityDropFloor {
			found = append(found, Anomaly{
				Kind:  AnomalyQualityDrop,
				Index: i,
				TS:    p.TS,
				Value: p.Value,
				Score: clamp01((qualityDropFloor - p.Quality) / qualityDropFloor),
			})
		}
	}

	if sigma > 0 && len(pts) > localSlopeWindow {
		prev, havePrev := 0.0, false
		for i := localSlopeWindow - 1; i < len(pts); i++ {
			a, b := pts[i-localSlopeWindow+1], pts[i]
			dt := float64(b.TS-a.TS) / 1e9
			if dt <= 0 {
				continue
			}
			slope := (b.Value - a.Value) / dt
			if havePrev {
				delta := abs(slope - prev)
				if delta > sigma {
					found = append(found, Anomaly{
						Kind:  AnomalyTrendBreak,
						Index: i,
						TS:    b.TS,
						Value: b.Value,
						Score: clamp01(delta / (2 * sigma)),
					})
				}
			}
			prev, havePrev = slope, true
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Score != found[j].Score {
			return found[i].Score > found[j].Score
		}
		if found[i].TS != found[j].TS {
			return found[i].TS < found[j].TS
		}
		return found[i].Kind < found[j].Kind
	})
	if len(found) > maxAnomalies {
		found = found[:maxAnomalies]
	}
	return found
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
