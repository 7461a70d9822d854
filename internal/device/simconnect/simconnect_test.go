package simconnect

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func TestEncodeDecodeHeader(t *testing.T) {
	frame, err := Encode(MsgOpen, 7, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, frame, HeaderSize+5)

	h, payload, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(HeaderSize+5), h.Size)
	assert.Equal(t, ProtocolVersion, h.Version)
	assert.Equal(t, MsgOpen, h.ID)
	assert.Equal(t, uint32(7), h.Index)
	assert.Equal(t, []byte("hello"), payload)
}

func TestDecodeRejectsTruncatedAndMismatched(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, session.ErrProtocol)

	frame, _ := Encode(MsgOpen, 0, []byte("x"))
	_, _, err = Decode(frame[:len(frame)-1])
	assert.ErrorIs(t, err, session.ErrProtocol)
}

func TestFramingRoundTrip(t *testing.T) {
	frame, err := Encode(MsgSimObjectData, 1, EncodeSimObjectData(1, 0, SimObjectData{SpeedMPS: 101.5}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Framing{}.WriteFrame(&buf, frame))

	got, err := Framing{}.ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestFramingRejectsOversize(t *testing.T) {
	var hdr [HeaderSize]byte
	hdr[0] = 0xff
	hdr[1] = 0xff
	hdr[2] = 0xff
	hdr[3] = 0x7f
	_, err := Framing{}.ReadFrame(bufio.NewReader(bytes.NewReader(hdr[:])))
	assert.ErrorIs(t, err, session.ErrFrameTooLarge)
}

func TestSimObjectDataRoundTrip(t *testing.T) {
	in := SimObjectData{
		LatitudeDeg: 59.91, LongitudeDeg: 10.75, AltitudeM: 1200,
		PitchDeg: 2.5, BankDeg: -5, HeadingDeg: 90,
		SpeedMPS: 120, VerticalMPS: 3.2,
		ThrottlePct: 0.75, FuelPct: 0.6, EngineRPM: 2200,
		GearDown: 1, OnGround: 0,
	}
	out, err := DecodeSimObjectData(EncodeSimObjectData(9, 0, in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestToFrameNormalization(t *testing.T) {
	d := SimObjectData{HeadingDeg: 90, SpeedMPS: 100, AltitudeM: 500, FuelPct: 0.5}
	f := d.ToFrame(42, 3, "msfs-1")

	require.NoError(t, f.Validate())
	assert.Equal(t, telemetry.SimMSFS, f.Simulator)
	assert.InDelta(t, 100, f.Vehicle.Velocity[0], 1e-9, "east at heading 90")
	assert.InDelta(t, 0, f.Vehicle.Velocity[1], 1e-9)
	assert.Equal(t, 500.0, f.Vehicle.Position[2])
	assert.Equal(t, 100.0, f.Performance.SpeedMPS)
}

func TestMapperThrottleSet(t *testing.T) {
	m := NewMapper()
	frames, err := m.Map(telemetry.Command{Action: "throttle_set", Parameters: map[string]float64{"value": 0.5}})
	require.NoError(t, err)
	require.Len(t, frames, 2, "first use maps the event then transmits")

	h, payload, err := Decode(frames[0])
	require.NoError(t, err)
	assert.Equal(t, MsgMapClientEventToEvent, h.ID)
	assert.Contains(t, string(payload), "THROTTLE_SET")

	h, payload, err = Decode(frames[1])
	require.NoError(t, err)
	assert.Equal(t, MsgTransmitClientEvent, h.ID)
	// Scaled to the 0..16383 axis range.
	assert.Equal(t, byte(0x00), payload[8])
	assert.Equal(t, byte(0x20), payload[9])

	// Second use skips the mapping frame.
	frames, err = m.Map(telemetry.Command{Action: "throttle_set", Parameters: map[string]float64{"value": 1}})
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestMapperUnsupported(t *testing.T) {
	_, err := NewMapper().Map(telemetry.Command{Action: "eject"})
	assert.True(t, errors.Is(err, session.ErrUnsupportedCommand))
}

func TestAdapterForwardsSimObjectData(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(1700000000, 0))
	var got []telemetry.TelemetryFrame
	a := NewAdapter("msfs-1", clk, func(f telemetry.TelemetryFrame) { got = append(got, f) })

	frame, err := Encode(MsgSimObjectData, 1, EncodeSimObjectData(1, 0, SimObjectData{SpeedMPS: 55}))
	require.NoError(t, err)
	a.HandleFrame(frame)

	require.Len(t, got, 1)
	assert.Equal(t, 55.0, got[0].Performance.SpeedMPS)
	assert.Equal(t, uint32(1), got[0].Sequence)

	// Control traffic does not produce frames.
	open, _ := Encode(MsgOpen, 2, nil)
	a.HandleFrame(open)
	assert.Len(t, got, 1)
}

func TestAdapterQuitHandler(t *testing.T) {
	a := NewAdapter("msfs-1", nil, nil)
	quit := false
	a.OnQuit(func() { quit = true })
	f, _ := Encode(MsgQuit, 1, nil)
	a.HandleFrame(f)
	assert.True(t, quit)
}
