package clock

import (
	"sort"
	"sync"
	"time"
)

const (
	// learnSamples is how many observations feed a source offset before it
	// is frozen.
	learnSamples = 5

	// MaxSkewNS bounds how far a corrected timestamp may sit from local wall
	// time before the sample is rejected as implausible.
	MaxSkewNS = int64(5 * time.Minute)
)

// SkewCorrector learns a per-source wall-clock offset and normalizes external
// timestamps onto the runtime's monotonic axis. External feeds such as
// weather services or VATSIM stamp with their own wall clocks, which drift
// from ours; the offset is the median of local-minus-source deltas over the
// first learnSamples observations.
type SkewCorrector struct {
	clk Clock

	mu      sync.Mutex
	sources map[string]*sourceSkew
}

type sourceSkew struct {
	deltas []int64
	offset int64
	frozen bool
}

func NewSkewCorrector(clk Clock) *SkewCorrector {
	return &SkewCorrector{clk: clk, sources: make(map[string]*sourceSkew)}
}

// Normalize maps a source wall timestamp to runtime monotonic nanoseconds.
// The boolean is false when the corrected timestamp deviates from local wall
// time by more than MaxSkewNS; callers must score such samples plausibility
// zero and drop them.
func (s *SkewCorrector) Normalize(sourceID string, sourceWallNS int64) (int64, bool) {
	localWall := s.clk.WallNS()
	localMono := s.clk.NowNS()

	s.mu.Lock()
	sk, ok := s.sources[sourceID]
	if !ok {
		sk = &sourceSkew{}
		s.sources[sourceID] = sk
	}
	if !sk.frozen {
		sk.deltas = append(sk.deltas, localWall-sourceWallNS)
		sk.offset = median(sk.deltas)
		if len(sk.deltas) >= learnSamples {
			sk.frozen = true
			sk.deltas = nil
		}
	}
	offset := sk.offset
	s.mu.Unlock()

	correctedWall := sourceWallNS + offset
	skew := correctedWall - localWall
	if skew < -MaxSkewNS || skew > MaxSkewNS {
		return 0, false
	}
	return localMono + skew, true
}

// Offset reports the currently learned offset for a source and whether it
// has been frozen yet.
func (s *SkewCorrector) Offset(sourceID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.sources[sourceID]
	if !ok {
		return 0, false
	}
	return sk.offset, sk.frozen
}

// Forget drops the learned offset for a source, for example after a device
// reconnects with a reset clock.
func (s *SkewCorrector) Forget(sourceID string) {
	s.mu.Lock()
	delete(s.sources, sourceID)
	s.mu.Unlock()
}

func median(vals []int64) int64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	tmp := make([]int64, n)
	copy(tmp, vals)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}
