package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Frame {
	var out []Frame
	for {
		select {
		case f, ok := <-sub.Frames():
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	d := New(Config{})
	defer d.Close()

	gaze, err := d.Subscribe([]string{"gaze"}, "client-a", 0)
	require.NoError(t, err)
	fusion, err := d.Subscribe([]string{"fusion.*"}, "client-b", 0)
	require.NoError(t, err)

	require.NoError(t, d.Publish("gaze", 1, []byte(`{"x":0.5}`), Options{}))
	require.NoError(t, d.Publish("fusion.human-state", 1, []byte(`{"load":0.2}`), Options{}))
	require.NoError(t, d.Publish("telemetry.msfs", 1, []byte(`{}`), Options{}))

	got := drain(gaze)
	require.Len(t, got, 1)
	assert.Equal(t, "gaze", got[0].Topic)

	got = drain(fusion)
	require.Len(t, got, 1)
	assert.Equal(t, "fusion.human-state", got[0].Topic)

	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(2), stats.Delivered)
}

func TestWildcardDoesNotMatchBareName(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	sub, err := d.Subscribe([]string{"fusion.*"}, "c", 0)
	require.NoError(t, err)
	require.NoError(t, d.Publish("fusion", 1, []byte(`{}`), Options{}))
	assert.Empty(t, drain(sub))
}

func TestMinQualityFilters(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0.8)
	require.NoError(t, err)

	require.NoError(t, d.Publish("gaze", 0.5, []byte(`{}`), Options{}))
	require.NoError(t, d.Publish("gaze", 0.9, []byte(`{}`), Options{}))

	got := drain(sub)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].Quality, 1e-9)
	assert.Equal(t, uint64(1), d.Stats().Filtered)
}

func TestBestEffortDropsWhenFull(t *testing.T) {
	d := New(Config{HighWatermark: 2})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "slow", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Publish("gaze", 1, []byte(`{}`), Options{}))
	}

	st := sub.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(3), st.Drops)
	assert.Equal(t, uint64(3), d.Stats().Dropped)
	assert.Equal(t, 1, d.Stats().Subscriptions, "best-effort never evicts")
}

func TestGuaranteedClosesSlowConsumer(t *testing.T) {
	var closedReason CloseReason
	d := New(Config{
		HighWatermark: 2,
		OnClose:       func(_ *Subscription, r CloseReason) { closedReason = r },
	})
	defer d.Close()
	sub, err := d.Subscribe([]string{"fusion.*"}, "slow", 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish("fusion.human-state", 1, []byte(`{}`), Options{Reliability: Guaranteed}))
	}

	// Queue filled by the first two; the third eviction closes the channel.
	got := drain(sub)
	assert.Len(t, got, 2)
	_, open := <-sub.Frames()
	assert.False(t, open)
	assert.Equal(t, ReasonSlowConsumer, sub.Reason())
	assert.Equal(t, ReasonSlowConsumer, closedReason)
	assert.Equal(t, uint64(1), d.Stats().SlowConsumers)
	assert.Equal(t, 0, d.Stats().Subscriptions)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0)
	require.NoError(t, err)
	require.NoError(t, d.Unsubscribe(sub.ID))
	_, open := <-sub.Frames()
	assert.False(t, open)
	assert.Equal(t, ReasonUnsubscribed, sub.Reason())
	assert.ErrorIs(t, d.Unsubscribe(sub.ID), ErrUnknownSub)
}

func TestSubscribeValidation(t *testing.T) {
	d := New(Config{MaxClients: 1})
	defer d.Close()
	_, err := d.Subscribe(nil, "c", 0)
	assert.ErrorIs(t, err, ErrNoTopics)
	_, err = d.Subscribe([]string{"gaze"}, "a", 0)
	require.NoError(t, err)
	_, err = d.Subscribe([]string{"gaze"}, "b", 0)
	assert.ErrorIs(t, err, ErrTooManyClients)
}

func TestCompressionRoundTrip(t *testing.T) {
	d := New(Config{Compression: true})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte(`{"x":0.5,"y":0.5}`), 64)
	require.NoError(t, d.Publish("gaze", 1, payload, Options{Compress: true}))

	got := drain(sub)
	require.Len(t, got, 1)
	require.True(t, got[0].Compressed)
	assert.Less(t, len(got[0].Payload), len(payload))

	inflated, err := GunzipPayload(got[0])
	require.NoError(t, err)
	assert.Equal(t, payload, inflated)
}

func TestCompressionSkippedWhenLarger(t *testing.T) {
	d := New(Config{Compression: true})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0)
	require.NoError(t, err)

	payload := []byte(`{"x":1}`)
	require.NoError(t, d.Publish("gaze", 1, payload, Options{Compress: true}))
	got := drain(sub)
	require.Len(t, got, 1)
	assert.False(t, got[0].Compressed)
	assert.Equal(t, payload, got[0].Payload)
}

func TestSequenceMonotonic(t *testing.T) {
	d := New(Config{})
	defer d.Close()
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish("gaze", 1, []byte(`{}`), Options{}))
	}
	got := drain(sub)
	require.Len(t, got, 3)
	for i, f := range got {
		assert.Equal(t, uint64(i+1), f.Sequence)
	}
}

func TestCloseEndsSubscriptionsAndRejectsPublish(t *testing.T) {
	d := New(Config{})
	sub, err := d.Subscribe([]string{"gaze"}, "c", 0)
	require.NoError(t, err)
	d.Close()
	d.Close() // idempotent

	_, open := <-sub.Frames()
	assert.False(t, open)
	assert.Equal(t, ReasonShutdown, sub.Reason())
	assert.ErrorIs(t, d.Publish("gaze", 1, nil, Options{}), ErrClosed)
	_, err = d.Subscribe([]string{"gaze"}, "c", 0)
	assert.ErrorIs(t, err, ErrClosed)
}

type failingSink struct{ calls int }

func (s *failingSink) Publish(string, Frame) error { s.calls++; return fmt.Errorf("sink down") }
func (s *failingSink) Close() error                { return nil }

func TestSinkFailureDoesNotPropagate(t *testing.T) {
	sink := &failingSink{}
	d := New(Config{Sinks: []Sink{sink}})
	defer d.Close()
	require.NoError(t, d.Publish("gaze", 1, []byte(`{}`), Options{}))
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, uint64(1), d.Stats().SinkErrors)
}

func TestRedisSinkPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer sink.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ps := client.Subscribe(context.Background(), ChannelPrefix+"fusion.human-state")
	defer ps.Close()
	_, err = ps.Receive(context.Background()) // subscription confirmation
	require.NoError(t, err)

	d := New(Config{Sinks: []Sink{sink}})
	defer d.Close()
	require.NoError(t, d.Publish("fusion.human-state", 0.9, []byte(`{"load":0.3}`), Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &frame))
	assert.Equal(t, "fusion.human-state", frame.Topic)
	assert.InDelta(t, 0.9, frame.Quality, 1e-9)
	assert.JSONEq(t, `{"load":0.3}`, string(frame.Payload))
	assert.Zero(t, d.Stats().SinkErrors)
}

func TestRedisSinkRejectsUnreachable(t *testing.T) {
	_, err := NewRedisSink(RedisConfig{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
