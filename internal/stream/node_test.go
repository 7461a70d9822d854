package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func testSample(clk clock.Clock, v float64) telemetry.Sample {
	now := clk.NowNS()
	return telemetry.NewSample(telemetry.Opaque{
		K:      telemetry.Kind{Source: telemetry.SourceHuman, Type: "probe"},
		Values: map[string]float64{"value": v},
	}, now, now)
}

func sampleValue(t *testing.T, es telemetry.EnrichedSample) float64 {
	t.Helper()
	v, ok := es.Payload.PrimaryValue()
	require.True(t, ok)
	return v
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) first(typ EventType) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

func recv(t *testing.T, ch <-chan telemetry.EnrichedSample) telemetry.EnrichedSample {
	t.Helper()
	select {
	case es := <-ch:
		return es
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
		return telemetry.EnrichedSample{}
	}
}

func TestNodeFanOutPreservesOrder(t *testing.T) {
	clk := clock.System()
	node := NewNode(NodeConfig{Name: "human/probe", Clock: clk})
	ch, err := node.Subscribe("order")
	require.NoError(t, err)

	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	for i := 0; i < 10; i++ {
		node.Process(testSample(clk, float64(i)))
	}

	for i := 0; i < 10; i++ {
		es := recv(t, ch)
		assert.Equal(t, float64(i), sampleValue(t, es))
		assert.Equal(t, uint64(i+1), es.Sequence)
	}
}

func TestNodeProcessorChain(t *testing.T) {
	clk := clock.System()
	rewrite := func(fn func(float64) float64) Processor {
		return ProcessorFunc{ID: "rewrite", Fn: func(s telemetry.Sample) (telemetry.Sample, error) {
			v, _ := s.Payload.PrimaryValue()
			s.Payload = telemetry.Opaque{K: s.Kind(), Values: map[string]float64{"value": fn(v)}}
			return s, nil
		}}
	}
	node := NewNode(NodeConfig{
		Name:       "human/probe",
		Clock:      clk,
		Processors: []Processor{rewrite(func(v float64) float64 { return v + 1 }), rewrite(func(v float64) float64 { return v * 2 })},
	})
	ch, err := node.Subscribe("chain")
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	node.Process(testSample(clk, 3))

	es := recv(t, ch)
	assert.Equal(t, 8.0, sampleValue(t, es))
}

func TestNodeProcessorErrorSkipsSample(t *testing.T) {
	clk := clock.System()
	events := &eventLog{}
	errBad := errors.New("bad sample")
	reject := ProcessorFunc{ID: "reject-ones", Fn: func(s telemetry.Sample) (telemetry.Sample, error) {
		if v, _ := s.Payload.PrimaryValue(); v == 1 {
			return s, errBad
		}
		return s, nil
	}}
	node := NewNode(NodeConfig{
		Name:       "human/probe",
		Clock:      clk,
		Processors: []Processor{reject},
		OnEvent:    events.record,
	})
	ch, err := node.Subscribe("errors")
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	for i := 0; i < 3; i++ {
		node.Process(testSample(clk, float64(i)))
	}

	assert.Equal(t, 0.0, sampleValue(t, recv(t, ch)))
	assert.Equal(t, 2.0, sampleValue(t, recv(t, ch)))

	require.Eventually(t, func() bool {
		st := node.Stats()
		return st.Errors == 1 && st.Processed == 2
	}, 2*time.Second, 10*time.Millisecond)

	e, ok := events.first(EventError)
	require.True(t, ok)
	assert.Equal(t, "reject-ones", e.Detail)
	assert.ErrorIs(t, e.Err, errBad)
}

func TestNodeBackpressureDropsOldest(t *testing.T) {
	clk := clock.System()
	events := &eventLog{}
	node := NewNode(NodeConfig{Name: "human/probe", BufferSize: 4, Clock: clk, OnEvent: events.record})
	ch, err := node.Subscribe("late")
	require.NoError(t, err)

	// Node not started: the input queue fills and the oldest entries give
	// way to newer ones.
	for i := 0; i < 6; i++ {
		node.Process(testSample(clk, float64(i)))
	}
	assert.Equal(t, uint64(2), node.Stats().Dropped)
	assert.Equal(t, 2, events.count(EventBackpressure))

	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	for want := 2; want < 6; want++ {
		assert.Equal(t, float64(want), sampleValue(t, recv(t, ch)))
	}
}

func TestNodeSlowSubscriberEvicted(t *testing.T) {
	clk := clock.System()
	events := &eventLog{}
	node := NewNode(NodeConfig{Name: "human/probe", SubscriberBuffer: 2, Clock: clk, OnEvent: events.record})
	_, err := node.Subscribe("sluggish")
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	for i := 0; i < 5; i++ {
		node.Process(testSample(clk, float64(i)))
	}

	require.Eventually(t, func() bool {
		return node.Stats().Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)

	e, ok := events.first(EventSubscriberDropped)
	require.True(t, ok)
	assert.Equal(t, "sluggish", e.Detail)

	// Samples keep flowing after the eviction.
	require.Eventually(t, func() bool {
		return node.Stats().Processed == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNodeDegradesAndRecovers(t *testing.T) {
	clk := clock.System()
	events := &eventLog{}
	var failing atomic.Bool
	failing.Store(true)
	flaky := ProcessorFunc{ID: "flaky", Fn: func(s telemetry.Sample) (telemetry.Sample, error) {
		if failing.Load() {
			return s, errors.New("transient")
		}
		return s, nil
	}}
	node := NewNode(NodeConfig{Name: "human/probe", Processors: []Processor{flaky}, Clock: clk, OnEvent: events.record})
	require.NoError(t, node.Start(context.Background()))
	defer node.Stop()

	for i := 0; i < 30; i++ {
		node.Process(testSample(clk, float64(i)))
	}
	require.Eventually(t, func() bool {
		return node.Stats().Degraded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, events.count(EventDegraded))

	failing.Store(false)
	for i := 0; i < 40; i++ {
		node.Process(testSample(clk, float64(i)))
	}
	require.Eventually(t, func() bool {
		return !node.Stats().Degraded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, events.count(EventRecovered))
}

func TestNodeSubscribeLifecycle(t *testing.T) {
	node := NewNode(NodeConfig{Name: "human/probe"})

	_, err := node.Subscribe("a")
	require.NoError(t, err)
	_, err = node.Subscribe("a")
	assert.ErrorIs(t, err, ErrDuplicateSub)

	assert.ErrorIs(t, node.Unsubscribe("missing"), ErrUnknownSub)
	require.NoError(t, node.Unsubscribe("a"))
	assert.Equal(t, 0, node.Stats().Subscribers)
}

func TestNodeStartStop(t *testing.T) {
	node := NewNode(NodeConfig{Name: "human/probe"})
	require.NoError(t, node.Start(context.Background()))
	assert.ErrorIs(t, node.Start(context.Background()), ErrNodeRunning)
	node.Stop()
	node.Stop()

	require.NoError(t, node.Start(context.Background()))
	node.Stop()
}
