package neon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func startMock(t *testing.T, rate float64) *MockDevice {
	t.Helper()
	dev := NewMockDevice(MockDeviceConfig{GazeRateHz: rate})
	require.NoError(t, dev.Start())
	t.Cleanup(dev.Stop)
	return dev
}

func TestControlAPI(t *testing.T) {
	dev := startMock(t, 200)
	c := NewClient(dev.Address())
	ctx := context.Background()

	st, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, dev.ID(), st.DeviceID)
	assert.False(t, st.Recording)
	assert.Equal(t, 200.0, st.GazeRateHz)

	require.NoError(t, c.StartRecording(ctx))
	st, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Recording)

	require.NoError(t, c.StopRecording(ctx))
	require.NoError(t, c.StartCalibration(ctx))
	require.NoError(t, c.StopCalibration(ctx))
	st, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Recording)
	assert.True(t, st.Calibrated)
}

func TestStreamDeliversGaze(t *testing.T) {
	dev := startMock(t, 200)

	frames := make(chan []byte, 64)
	tr := NewStreamTransport(dev.Address())
	tr.OnMessage(func(f []byte) { frames <- f })
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	select {
	case f := <-frames:
		m, err := DecodeMessage(f)
		require.NoError(t, err)
		assert.Equal(t, TopicGaze, m.Topic)
		g, err := DecodeGaze(m.Data)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, g.X, 0.31)
		assert.InDelta(t, 0.95, g.Confidence, 1e-9)
		assert.True(t, g.Worn)
	case <-time.After(2 * time.Second):
		t.Fatal("no gaze frame received")
	}
}

func TestStreamCloseFiresHandlerOnce(t *testing.T) {
	dev := startMock(t, 200)

	closed := make(chan error, 2)
	tr := NewStreamTransport(dev.Address())
	tr.OnClose(func(err error) { closed <- err })
	require.NoError(t, tr.Open(context.Background()))

	require.NoError(t, tr.Close())
	select {
	case err := <-closed:
		assert.NoError(t, err, "orderly close passes nil")
	case <-time.After(time.Second):
		t.Fatal("close handler not called")
	}
	select {
	case <-closed:
		t.Fatal("close handler called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGazeToSample(t *testing.T) {
	g := MockGaze(0, 12345)
	s := g.ToSample(1000, 1100)

	assert.Equal(t, telemetry.SourceHuman, s.Source)
	assert.Equal(t, telemetry.TypeBehavioral, s.Type)
	assert.Equal(t, int64(1000), s.Timestamp)

	b, ok := s.Payload.(telemetry.Behavioral)
	require.True(t, ok)
	assert.InDelta(t, 0.5, b.GazeX, 1e-9, "sequence 0 sits at scan center")
	assert.True(t, b.Worn)
	require.NotNil(t, b.PupilDiameterMM)
	assert.InDelta(t, 3.55, *b.PupilDiameterMM, 1e-9)
}

func TestMockGazeDeterministic(t *testing.T) {
	a := MockGaze(42, 1)
	b := MockGaze(42, 1)
	assert.Equal(t, a, b)
}

func TestDecodeGazeRejectsMissingTimestamp(t *testing.T) {
	_, err := DecodeGaze([]byte(`{"x":0.5,"y":0.5}`))
	assert.Error(t, err)
}
