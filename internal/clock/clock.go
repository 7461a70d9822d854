// Package clock centralizes time access for the runtime. Components never
// call time.Now directly; they hold a Clock so tests can inject a virtual
// clock and so skew correction for external sources is applied in one place.
package clock

import (
	"sync"
	"time"
)

// Clock supplies monotonic and wall-clock readings in nanoseconds.
type Clock interface {
	// NowNS returns monotonic nanoseconds. The epoch is arbitrary but fixed
	// for the lifetime of the clock; values are only meaningful subtracted.
	NowNS() int64
	// WallNS returns wall-clock nanoseconds since the Unix epoch.
	WallNS() int64
}

type systemClock struct {
	base time.Time
}

// System returns a Clock backed by the OS monotonic clock.
func System() Clock {
	return &systemClock{base: time.Now()}
}

func (c *systemClock) NowNS() int64 { return time.Since(c.base).Nanoseconds() }

func (c *systemClock) WallNS() int64 { return time.Now().UnixNano() }

// Virtual is a manually advanced Clock for deterministic tests.
type Virtual struct {
	mu   sync.Mutex
	now  int64
	wall int64
}

// NewVirtual returns a Virtual clock whose wall reading starts at the given
// time and whose monotonic reading starts at zero.
func NewVirtual(wall time.Time) *Virtual {
	return &Virtual{wall: wall.UnixNano()}
}

func (v *Virtual) NowNS() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) WallNS() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wall
}

// Advance moves both the monotonic and wall readings forward.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	v.now += d.Nanoseconds()
	v.wall += d.Nanoseconds()
	v.mu.Unlock()
}

// SetWall pins the wall reading without touching the monotonic one, modeling
// a step change of the host clock.
func (v *Virtual) SetWall(wall time.Time) {
	v.mu.Lock()
	v.wall = wall.UnixNano()
	v.mu.Unlock()
}
