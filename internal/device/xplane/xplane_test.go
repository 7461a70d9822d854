package xplane

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func TestRREFRequestLayout(t *testing.T) {
	req, err := EncodeRREF(60, 3, "sim/flightmodel/position/elevation")
	require.NoError(t, err)
	require.Len(t, req, 5+4+4+400)
	assert.True(t, bytes.HasPrefix(req, []byte("RREF\x00")))
	assert.Equal(t, byte(60), req[5])
	assert.Equal(t, byte(3), req[9])
}

func TestRREFResponseRoundTrip(t *testing.T) {
	in := []RefValue{{Index: refLatitude, Value: 59.9}, {Index: refGroundSpeed, Value: 101}}
	out, err := DecodeRREF(EncodeRREFResponse(in))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, refLatitude, out[0].Index)
	assert.InDelta(t, 59.9, out[0].Value, 1e-4, "f32 precision on the wire")
	assert.InDelta(t, 101, out[1].Value, 1e-4)
}

func TestDecodeRREFRejectsMalformed(t *testing.T) {
	_, err := DecodeRREF([]byte("DATA\x00junk"))
	assert.ErrorIs(t, err, session.ErrProtocol)

	_, err = DecodeRREF(append([]byte("RREF,"), 1, 2, 3))
	assert.ErrorIs(t, err, session.ErrProtocol)
}

func TestAdapterEmitsWhenPositionComplete(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(1700000000, 0))
	var got []telemetry.TelemetryFrame
	a := NewAdapter("xp-1", clk, func(f telemetry.TelemetryFrame) { got = append(got, f) })

	// Partial snapshot: no emit yet.
	a.HandleFrame(EncodeRREFResponse([]RefValue{{Index: refLatitude, Value: 60}}))
	assert.Empty(t, got)

	a.HandleFrame(EncodeRREFResponse([]RefValue{
		{Index: refLongitude, Value: 10},
		{Index: refElevation, Value: 900},
		{Index: refGroundSpeed, Value: 80},
		{Index: refHeading, Value: 180},
	}))
	require.Len(t, got, 1)
	require.NoError(t, got[0].Validate())
	assert.Equal(t, telemetry.SimXPlane, got[0].Simulator)
	assert.Equal(t, telemetry.Vec3{60, 10, 900}, got[0].Vehicle.Position)
	assert.InDelta(t, 80, got[0].Performance.SpeedMPS, 1e-4)
}

func TestAdapterRateLimitsEmission(t *testing.T) {
	a := NewAdapter("xp-1", nil, nil)
	var count int
	a.onFrame = func(telemetry.TelemetryFrame) { count++ }

	full := EncodeRREFResponse([]RefValue{
		{Index: refLatitude, Value: 1},
		{Index: refLongitude, Value: 2},
		{Index: refElevation, Value: 3},
	})
	// A tight burst collapses onto the limiter's 60 Hz budget.
	for i := 0; i < 50; i++ {
		a.HandleFrame(full)
	}
	assert.LessOrEqual(t, count, 2)
	assert.GreaterOrEqual(t, count, 1)
}

func TestMapperDREF(t *testing.T) {
	frames, err := Mapper{}.Map(telemetry.Command{Action: "throttle_set", Parameters: map[string]float64{"value": 0.7}})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, bytes.HasPrefix(frames[0], []byte("DREF\x00")))
	assert.Contains(t, string(frames[0]), "throttle_ratio_all")

	_, err = Mapper{}.Map(telemetry.Command{Action: "warp"})
	assert.ErrorIs(t, err, session.ErrUnsupportedCommand)
}

func TestUDPTransportSubscribesAndReceives(t *testing.T) {
	sim, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sim.Close()

	got := make(chan []byte, 64)
	tr := NewUDPTransport(sim.LocalAddr().String(), 60)
	tr.OnMessage(func(f []byte) { got <- f })
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	// The simulator side sees one subscription per dataref.
	buf := make([]byte, maxDatagram)
	sim.SetReadDeadline(time.Now().Add(time.Second))
	n, from, err := sim.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf[:n], []byte("RREF\x00")))

	// And can push responses back.
	resp := EncodeRREFResponse([]RefValue{{Index: refLatitude, Value: 12}})
	_, err = sim.WriteToUDP(resp, from)
	require.NoError(t, err)

	select {
	case f := <-got:
		vals, err := DecodeRREF(f)
		require.NoError(t, err)
		assert.Equal(t, refLatitude, vals[0].Index)
	case <-time.After(time.Second):
		t.Fatal("no datagram delivered")
	}
}
