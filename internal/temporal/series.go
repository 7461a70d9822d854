// Package temporal keeps bounded per-series history and derives trends,
// anomalies and short-horizon forecasts from it. Series are fixed-capacity
// circular buffers; inserts binary-search their position so late arrivals
// keep timestamps non-decreasing.
package temporal

// Point is one series observation.
type Point struct {
	Value   float64
	Quality float64
	TS      int64
}

// series is a circular buffer ordered by timestamp. Callers hold the series
// lock in Store; the buffer itself is not synchronized.
type series struct {
	buf  []Point
	head int
	size int

	cached *cachedTrend
}

func newSeries(capacity int) *series {
	if capacity < 1 {
		capacity = 1
	}
	return &series{buf: make([]Point, capacity)}
}

func (s *series) len() int { return s.size }

func (s *series) at(i int) Point { return s.buf[(s.head+i)%len(s.buf)] }

func (s *series) slot(i int) *Point { return &s.buf[(s.head+i)%len(s.buf)] }

// insert places p by timestamp, evicting the oldest point when full. A point
// older than everything in a full buffer is dropped outright: inserting and
// immediately evicting it would be the same outcome.
func (s *series) insert(p Point) {
	pos := s.searchAfter(p.TS)
	if s.size == len(s.buf) {
		if pos == 0 {
			s.cached = nil
			return
		}
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		pos--
	}
	for i := s.size; i > pos; i-- {
		*s.slot(i) = s.at(i - 1)
	}
	*s.slot(pos) = p
	s.size++
	s.cached = nil
}

// searchAfter returns the first logical index whose timestamp exceeds ts, so
// equal timestamps keep arrival order.
func (s *series) searchAfter(ts int64) int {
	lo, hi := 0, s.size
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.at(mid).TS <= ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// since copies out all points with TS >= cutoff in timestamp order.
func (s *series) since(cutoff int64) []Point {
	// First logical index with TS >= cutoff.
	lo, hi := 0, s.size
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.at(mid).TS < cutoff {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	out := make([]Point, 0, s.size-lo)
	for i := lo; i < s.size; i++ {
		out = append(out, s.at(i))
	}
	return out
}

func (s *series) all() []Point {
	out := make([]Point, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.at(i)
	}
	return out
}
