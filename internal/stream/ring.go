// Package stream implements the per-source stream plane: bounded ingest
// with drop-oldest backpressure, an ordered processor chain, quality
// annotation, ring-buffered history and per-subscriber fan-out, plus the
// adaptive batcher used in front of high-rate consumers.
package stream

import (
	"sync"
	"time"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Ring is a bounded sample history constrained by both count and time
// window. Reads return copies; consumers treat them as snapshots.
type Ring struct {
	clk    clock.Clock
	window time.Duration

	mu   sync.RWMutex
	buf  []telemetry.EnrichedSample
	head int
	size int

	dropped uint64
}

func NewRing(clk clock.Clock, capacity int, window time.Duration) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		clk:    clk,
		window: window,
		buf:    make([]telemetry.EnrichedSample, capacity),
	}
}

// Insert appends a sample in arrival order, purging entries that fell out of
// the time window and evicting the oldest when the ring is full. A sample
// already older than the window is rejected.
func (r *Ring) Insert(s telemetry.EnrichedSample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := int64(0)
	if r.window > 0 {
		cutoff = r.clk.NowNS() - r.window.Nanoseconds()
	}
	for r.size > 0 && r.at(0).Timestamp < cutoff {
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.dropped++
	}
	if r.window > 0 && s.Timestamp < cutoff {
		r.dropped++
		return false
	}
	if r.size == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.dropped++
	}
	r.buf[(r.head+r.size)%len(r.buf)] = s
	r.size++
	return true
}

// Latest returns up to k most recent samples in arrival order.
func (r *Ring) Latest(k int) []telemetry.EnrichedSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k > r.size {
		k = r.size
	}
	out := make([]telemetry.EnrichedSample, 0, k)
	for i := r.size - k; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// InWindow returns samples whose timestamps fall within the trailing window.
func (r *Ring) InWindow(d time.Duration) []telemetry.EnrichedSample {
	cutoff := r.clk.NowNS() - d.Nanoseconds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]telemetry.EnrichedSample, 0, r.size)
	for i := 0; i < r.size; i++ {
		if s := r.at(i); s.Timestamp >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

// Closest returns the sample nearest ts within the tolerance, false when
// nothing qualifies.
func (r *Ring) Closest(ts int64, tolerance time.Duration) (telemetry.EnrichedSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best     telemetry.EnrichedSample
		bestDist int64 = -1
	)
	for i := 0; i < r.size; i++ {
		s := r.at(i)
		dist := s.Timestamp - ts
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance.Nanoseconds() && (bestDist < 0 || dist < bestDist) {
			best, bestDist = s, dist
		}
	}
	return best, bestDist >= 0
}

// Len reports the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Dropped reports how many samples were evicted or rejected.
func (r *Ring) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

func (r *Ring) at(i int) telemetry.EnrichedSample {
	return r.buf[(r.head+i)%len(r.buf)]
}
