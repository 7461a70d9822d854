package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualAdvance(t *testing.T) {
	v := NewVirtual(time.Unix(1000, 0))

	assert.Equal(t, int64(0), v.NowNS())
	assert.Equal(t, time.Unix(1000, 0).UnixNano(), v.WallNS())

	v.Advance(10 * time.Second)
	assert.Equal(t, int64(10*time.Second), v.NowNS())
	assert.Equal(t, time.Unix(1010, 0).UnixNano(), v.WallNS())

	v.SetWall(time.Unix(2000, 0))
	assert.Equal(t, int64(10*time.Second), v.NowNS(), "SetWall must not move the monotonic reading")
	assert.Equal(t, time.Unix(2000, 0).UnixNano(), v.WallNS())
}

func TestSystemClockMonotone(t *testing.T) {
	c := System()
	a := c.NowNS()
	b := c.NowNS()
	assert.GreaterOrEqual(t, b, a)
	assert.Greater(t, c.WallNS(), int64(0))
}

func TestSkewCorrectorLearnsMedianOffset(t *testing.T) {
	v := NewVirtual(time.Unix(5000, 0))
	sc := NewSkewCorrector(v)

	// Source clock runs ~100ms behind ours with a little jitter.
	jitterMS := []int64{100, 102, 98, 101, 99}
	for _, d := range jitterMS {
		src := v.WallNS() - d*int64(time.Millisecond)
		_, ok := sc.Normalize("wx", src)
		require.True(t, ok)
		v.Advance(time.Second)
	}

	offset, frozen := sc.Offset("wx")
	require.True(t, frozen, "offset must freeze after five observations")
	assert.Equal(t, 100*int64(time.Millisecond), offset)

	// With the frozen offset a delta-100ms timestamp normalizes exactly onto
	// the current monotonic reading.
	src := v.WallNS() - 100*int64(time.Millisecond)
	mono, ok := sc.Normalize("wx", src)
	require.True(t, ok)
	assert.Equal(t, v.NowNS(), mono)
}

func TestSkewCorrectorRejectsImplausible(t *testing.T) {
	v := NewVirtual(time.Unix(5000, 0))
	sc := NewSkewCorrector(v)

	for i := 0; i < learnSamples; i++ {
		_, ok := sc.Normalize("wx", v.WallNS())
		require.True(t, ok)
		v.Advance(time.Second)
	}

	_, ok := sc.Normalize("wx", v.WallNS()-int64(10*time.Minute))
	assert.False(t, ok, "ten minutes of skew must be rejected")

	_, ok = sc.Normalize("wx", v.WallNS()+int64(6*time.Minute))
	assert.False(t, ok)

	_, ok = sc.Normalize("wx", v.WallNS()-int64(4*time.Minute))
	assert.True(t, ok, "four minutes is inside the plausibility window")
}

func TestSkewCorrectorFirstObservationAlwaysPlausible(t *testing.T) {
	v := NewVirtual(time.Unix(5000, 0))
	sc := NewSkewCorrector(v)

	// The first delta defines the offset, so even a wildly wrong source
	// clock normalizes onto "now".
	mono, ok := sc.Normalize("fresh", v.WallNS()-int64(24*time.Hour))
	require.True(t, ok)
	assert.Equal(t, v.NowNS(), mono)
}

func TestSkewCorrectorForget(t *testing.T) {
	v := NewVirtual(time.Unix(5000, 0))
	sc := NewSkewCorrector(v)

	for i := 0; i < learnSamples; i++ {
		sc.Normalize("dev", v.WallNS()-int64(time.Hour))
		v.Advance(time.Second)
	}
	_, frozen := sc.Offset("dev")
	require.True(t, frozen)

	sc.Forget("dev")
	_, frozen = sc.Offset("dev")
	assert.False(t, frozen)

	// Relearns from scratch: a now-accurate clock is accepted immediately.
	mono, ok := sc.Normalize("dev", v.WallNS())
	require.True(t, ok)
	assert.Equal(t, v.NowNS(), mono)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, int64(0), median(nil))
	assert.Equal(t, int64(7), median([]int64{7}))
	assert.Equal(t, int64(4), median([]int64{3, 5}))
	assert.Equal(t, int64(5), median([]int64{9, 5, 1}))
	assert.Equal(t, int64(100), median([]int64{98, 100, 101, 102, 99}))
}
