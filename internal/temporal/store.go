package temporal

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
)

// Defaults.
const (
	DefaultCapacity    = 1000
	DefaultTrendWindow = 60 * time.Second
	trendCacheTTL      = 30 * time.Second
)

var (
	ErrUnknownSeries = errors.New("unknown series")
	ErrNoData        = errors.New("series has no data in window")
)

// Store owns all named series. Each series is guarded by its own lock; the
// store lock only protects the series map.
type Store struct {
	clk      clock.Clock
	capacity int

	mu     sync.RWMutex
	series map[string]*lockedSeries
}

type lockedSeries struct {
	mu sync.Mutex
	s  *series
}

func NewStore(clk clock.Clock, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		clk:      clk,
		capacity: capacity,
		series:   make(map[string]*lockedSeries),
	}
}

// Append inserts a point, creating the series on first use. The cached trend
// for the series is invalidated.
func (st *Store) Append(key string, p Point) {
	ls := st.get(key, true)
	ls.mu.Lock()
	ls.s.insert(p)
	ls.mu.Unlock()
}

// Len reports the number of points held for a series.
func (st *Store) Len(key string) int {
	ls := st.get(key, false)
	if ls == nil {
		return 0
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.len()
}

// Keys lists all series names.
func (st *Store) Keys() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	keys := make([]string, 0, len(st.series))
	for k := range st.series {
		keys = append(keys, k)
	}
	return keys
}

// Points copies out the points of a series newer than the window cutoff. A
// zero window returns everything.
func (st *Store) Points(key string, window time.Duration) ([]Point, error) {
	ls := st.get(key, false)
	if ls == nil {
		return nil, ErrUnknownSeries
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if window <= 0 {
		return ls.s.all(), nil
	}
	return ls.s.since(st.clk.NowNS() - window.Nanoseconds()), nil
}

// Trend analyses the series over the window (DefaultTrendWindow when zero).
// Results are cached for 30 seconds per series and invalidated by Append.
func (st *Store) Trend(key string, window time.Duration) (Trend, error) {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	ls := st.get(key, false)
	if ls == nil {
		return Trend{}, ErrUnknownSeries
	}

	now := st.clk.NowNS()
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if c := ls.s.cached; c != nil && c.windowNS == window.Nanoseconds() &&
		now-c.trend.ComputedAt < trendCacheTTL.Nanoseconds() {
		return c.trend, nil
	}

	pts := ls.s.since(now - window.Nanoseconds())
	tr := computeTrend(pts, window.Nanoseconds())
	tr.ComputedAt = now
	ls.s.cached = &cachedTrend{trend: tr, windowNS: window.Nanoseconds()}
	return tr, nil
}

// Anomalies returns up to the five highest-scoring anomalies in the window.
func (st *Store) Anomalies(key string, window time.Duration) ([]Anomaly, error) {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	ls := st.get(key, false)
	if ls == nil {
		return nil, ErrUnknownSeries
	}
	ls.mu.Lock()
	pts := ls.s.since(st.clk.NowNS() - window.Nanoseconds())
	ls.mu.Unlock()
	return detectAnomalies(pts), nil
}

// Forecast is a short-horizon projection of a series.
type Forecast struct {
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
	CILow       float64 `json:"ciLow"`
	CIHigh      float64 `json:"ciHigh"`
	Confidence  float64 `json:"confidence"`
	HorizonMS   int64   `json:"horizonMs"`
	Basis       string  `json:"basis"` // "trend" or "mean"
}

// Predict projects the series value at now+horizon. When the trend is not
// confident enough the series mean is returned with confidence 0.1.
func (st *Store) Predict(key string, horizon time.Duration, minConfidence float64) (Forecast, error) {
	tr, err := st.Trend(key, 0)
	if err != nil {
		return Forecast{}, err
	}
	if tr.Samples == 0 {
		return Forecast{}, ErrNoData
	}

	sec := horizon.Seconds()
	if tr.Direction == DirectionInsufficient || tr.Confidence < minConfidence {
		return Forecast{
			Value:       tr.Mean,
			Uncertainty: tr.Sigma,
			CILow:       tr.Mean - 1.96*tr.Sigma,
			CIHigh:      tr.Mean + 1.96*tr.Sigma,
			Confidence:  0.1,
			HorizonMS:   horizon.Milliseconds(),
			Basis:       "mean",
		}, nil
	}

	value := tr.Mean + tr.Slope*sec
	u := tr.Sigma * math.Sqrt(sec/60)
	return Forecast{
		Value:       value,
		Uncertainty: u,
		CILow:       value - 1.96*u,
		CIHigh:      value + 1.96*u,
		Confidence:  tr.Confidence,
		HorizonMS:   horizon.Milliseconds(),
		Basis:       "trend",
	}, nil
}

func (st *Store) get(key string, create bool) *lockedSeries {
	st.mu.RLock()
	ls := st.series[key]
	st.mu.RUnlock()
	if ls != nil || !create {
		return ls
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if ls = st.series[key]; ls == nil {
		ls = &lockedSeries{s: newSeries(st.capacity)}
		st.series[key] = ls
	}
	return ls
}
