package beamng

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := EncodeMessage(TypeHello, Hello{ClientName: "synopticon", Version: "1.0"})
	require.NoError(t, err)

	env, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeHello, env.Type)

	var h Hello
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "synopticon", h.ClientName)
}

func TestDecodeRejectsUntyped(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, session.ErrProtocol)

	_, err = DecodeMessage([]byte(`not json`))
	assert.ErrorIs(t, err, session.ErrProtocol)
}

func TestDataResponseToFrame(t *testing.T) {
	var d DataResponse
	d.Position = [3]float64{10, 20, 0.5}
	d.Velocity = [3]float64{25, 0, 0}
	d.Rotation = [4]float64{0, 0, 0, 1}
	d.Heading = 45
	d.Controls.Throttle = 0.6
	d.Controls.Gear = 3
	d.Controls.ParkingBrake = true
	d.SpeedMPS = 25
	d.FuelPct = 0.8
	d.EngineRPM = 3500
	d.DamagePct = 0.02

	f := d.ToFrame(99, 1, "beamng-1")
	require.NoError(t, f.Validate())
	assert.Equal(t, telemetry.SimBeamNG, f.Simulator)
	assert.Equal(t, 0.6, f.Controls.Throttle)
	assert.Equal(t, 3, f.Controls.Gear)
	assert.Equal(t, 1.0, f.Controls.Custom["parkingbrake"])
	require.NotNil(t, f.Performance.DamagePct)
	assert.Equal(t, 0.02, *f.Performance.DamagePct)
}

func TestMapperControlInputClamps(t *testing.T) {
	frames, err := Mapper{}.Map(telemetry.Command{
		Action: "control_input",
		Parameters: map[string]float64{
			"throttle": 1.4, "brake": -0.2, "steering": -2, "gear": 2,
		},
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	env, err := DecodeMessage(frames[0])
	require.NoError(t, err)
	require.Equal(t, TypeControlInput, env.Type)

	var in ControlInput
	require.NoError(t, json.Unmarshal(env.Data, &in))
	assert.Equal(t, 1.0, in.Throttle)
	assert.Equal(t, 0.0, in.Brake)
	assert.Equal(t, -1.0, in.Steering)
	assert.Equal(t, 2, in.Gear)
}

func TestMapperSingleAxisActions(t *testing.T) {
	for action, check := range map[string]func(ControlInput) float64{
		"throttle_set": func(c ControlInput) float64 { return c.Throttle },
		"brake_set":    func(c ControlInput) float64 { return c.Brake },
		"steering_set": func(c ControlInput) float64 { return c.Steering },
	} {
		frames, err := Mapper{}.Map(telemetry.Command{Action: action, Parameters: map[string]float64{"value": 0.5}})
		require.NoError(t, err, action)
		env, err := DecodeMessage(frames[0])
		require.NoError(t, err)
		var in ControlInput
		require.NoError(t, json.Unmarshal(env.Data, &in))
		assert.Equal(t, 0.5, check(in), action)
	}
}

func TestMapperUnsupported(t *testing.T) {
	_, err := Mapper{}.Map(telemetry.Command{Action: "fly"})
	assert.ErrorIs(t, err, session.ErrUnsupportedCommand)
}

func TestAdapterForwardsDataResponses(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(1700000000, 0))
	var got []telemetry.TelemetryFrame
	a := NewAdapter("beamng-1", clk, func(f telemetry.TelemetryFrame) { got = append(got, f) })

	var d DataResponse
	d.SpeedMPS = 30
	frame, err := EncodeMessage(TypeDataResponse, d)
	require.NoError(t, err)

	a.HandleFrame(frame)
	a.HandleFrame(HelloFrame("synopticon"))
	a.HandleFrame([]byte(`garbage`))

	require.Len(t, got, 1)
	assert.Equal(t, 30.0, got[0].Performance.SpeedMPS)
	assert.Equal(t, uint32(1), got[0].Sequence)
}
