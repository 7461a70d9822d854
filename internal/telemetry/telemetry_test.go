package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindKey(t *testing.T) {
	k := Kind{SourceHuman, TypePhysiological}
	assert.Equal(t, "human/physiological", k.Key())
	assert.True(t, k.Known())
	assert.False(t, Kind{SourceHuman, TypeTelemetry}.Known())
	assert.False(t, Kind{"robot", "pose"}.Known())
}

func TestPayloadFieldsIncludeOnlySetOptionals(t *testing.T) {
	p := Physiological{HeartRate: 72}
	f := p.Fields()
	assert.Equal(t, 72.0, f["heartRate"])
	_, hasHRV := f["hrv"]
	assert.False(t, hasHRV)

	p2 := Physiological{HeartRate: 72, HRV: Opt(55)}
	assert.Equal(t, 55.0, p2.Fields()["hrv"])
}

func TestPrimaryValues(t *testing.T) {
	v, ok := Physiological{HeartRate: 80}.PrimaryValue()
	require.True(t, ok)
	assert.Equal(t, 80.0, v)

	v, ok = Behavioral{GazeX: 0.4}.PrimaryValue()
	require.True(t, ok)
	assert.Equal(t, 0.4, v)

	v, ok = Behavioral{GazeX: 0.4, SaccadeRate: Opt(3.5)}.PrimaryValue()
	require.True(t, ok)
	assert.Equal(t, 3.5, v, "saccade rate wins over gaze when present")

	v, ok = VehicleTelemetry{SpeedMPS: 120}.PrimaryValue()
	require.True(t, ok)
	assert.Equal(t, 120.0, v)

	_, ok = Opaque{K: Kind{"robot", "pose"}, Values: map[string]float64{"x": 1}}.PrimaryValue()
	assert.False(t, ok)

	v, ok = Opaque{K: Kind{"robot", "pose"}, Values: map[string]float64{"value": 9}}.PrimaryValue()
	require.True(t, ok)
	assert.Equal(t, 9.0, v)
}

func TestOpaqueFieldsAreCopied(t *testing.T) {
	src := map[string]float64{"a": 1}
	o := Opaque{K: Kind{"x", "y"}, Values: src}
	f := o.Fields()
	f["a"] = 99
	assert.Equal(t, 1.0, src["a"])
}

func TestNewSampleDerivesKind(t *testing.T) {
	s := NewSample(Weather{WindSpeedMPS: 12, VisibilityM: 9000}, 100, 101)
	assert.Equal(t, SourceExternal, s.Source)
	assert.Equal(t, TypeWeather, s.Type)
	assert.Equal(t, "external/weather", s.Key())
	assert.Equal(t, int64(100), s.Timestamp)
	assert.Equal(t, int64(101), s.Ingested)
}

func TestFrameRoundTrip(t *testing.T) {
	damage := 0.05
	f := &TelemetryFrame{
		TimestampNS: 1234567890,
		Sequence:    42,
		SourceID:    "msfs-1",
		SourceType:  "telemetry",
		Simulator:   SimMSFS,
		Vehicle: Vehicle{
			Position:   Vec3{59.3, 18.1, 1200},
			Velocity:   Vec3{120, 2, -1},
			Rotation:   Quat{0, 0, 0.26, 0.97},
			HeadingDeg: 215,
		},
		Controls: Controls{
			Throttle: 0.8,
			Gear:     1,
			Custom:   map[string]float64{"flaps": 0.25},
		},
		Performance: FramePerformance{
			SpeedMPS:  122,
			FuelPct:   0.62,
			EngineRPM: 2300,
			DamagePct: &damage,
		},
	}

	data, err := f.Encode()
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeFrameRejectsInvalid(t *testing.T) {
	_, err := DecodeFrame([]byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = DecodeFrame([]byte(`{"timestamp_ns":0,"source_type":"telemetry","simulator":"msfs"}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = DecodeFrame([]byte(`{"timestamp_ns":5,"source_type":"video","simulator":"msfs"}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = DecodeFrame([]byte(`{"timestamp_ns":5,"source_type":"telemetry","simulator":"gta"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFrame))
}

func TestFrameToSample(t *testing.T) {
	f := &TelemetryFrame{
		TimestampNS: 999,
		SourceType:  "telemetry",
		Simulator:   SimBeamNG,
		Vehicle: Vehicle{
			Position:   Vec3{10, 20, 450},
			Velocity:   Vec3{33, 0, 0},
			HeadingDeg: 90,
		},
		Controls:    Controls{Throttle: 0.5, Brake: 0.1, Steering: -0.2, Gear: 3},
		Performance: FramePerformance{SpeedMPS: 33, FuelPct: 0.8, EngineRPM: 4500},
	}

	s := f.ToSample(5000, 5001)
	require.Equal(t, "simulator/telemetry", s.Key())
	assert.Equal(t, int64(5000), s.Timestamp)

	vt, ok := s.Payload.(VehicleTelemetry)
	require.True(t, ok)
	assert.Equal(t, 33.0, vt.SpeedMPS)
	assert.Equal(t, 450.0, vt.AltitudeM, "altitude comes from position z")
	assert.Equal(t, -0.2, vt.Steering)

	fields := vt.Fields()
	assert.Equal(t, 450.0, fields["altitude"])
	assert.Equal(t, 3.0, fields["gear"])
}

func TestCommandParamAndResults(t *testing.T) {
	c := Command{Action: "set_throttle", Parameters: map[string]float64{"value": 0.7}}
	assert.Equal(t, 0.7, c.Param("value", 0))
	assert.Equal(t, 1.0, c.Param("missing", 1))

	r := Unsupported("warp_drive")
	assert.False(t, r.Success)
	assert.Equal(t, CodeUnsupportedCommand, r.Code)
}
