package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Simulator identifiers carried by TelemetryFrame.
const (
	SimMSFS   = "msfs"
	SimBeamNG = "beamng"
	SimXPlane = "xplane"
	SimVATSIM = "vatsim"
)

// ErrInvalidFrame is returned for frames that fail structural validation.
var ErrInvalidFrame = errors.New("invalid telemetry frame")

// Vehicle is the kinematic block of a TelemetryFrame. For flight simulators
// Position is [lat, lon, altitude m]; for driving simulators it is world
// x/y/z with z up.
type Vehicle struct {
	Position     Vec3    `json:"position"`
	Velocity     Vec3    `json:"velocity"`
	Acceleration *Vec3   `json:"acceleration,omitempty"`
	Rotation     Quat    `json:"rotation"`
	HeadingDeg   float64 `json:"heading_deg"`
}

// Controls is the operator input block of a TelemetryFrame.
type Controls struct {
	Throttle float64            `json:"throttle"`
	Brake    float64            `json:"brake"`
	Steering float64            `json:"steering"`
	Gear     int                `json:"gear"`
	Custom   map[string]float64 `json:"custom,omitempty"`
}

// FramePerformance is the performance block of a TelemetryFrame.
type FramePerformance struct {
	SpeedMPS  float64  `json:"speed"`
	FuelPct   float64  `json:"fuel"`
	EngineRPM float64  `json:"engineRpm"`
	DamagePct *float64 `json:"damage,omitempty"`
}

// TelemetryFrame is the canonical per-tick frame every simulator adapter
// normalizes into. Encode/Decode round-trips are identity modulo optional
// fields.
type TelemetryFrame struct {
	TimestampNS uint64           `json:"timestamp_ns"`
	Sequence    uint32           `json:"sequence"`
	SourceID    string           `json:"source_id"`
	SourceType  string           `json:"source_type"`
	Simulator   string           `json:"simulator"`
	Vehicle     Vehicle          `json:"vehicle"`
	Controls    Controls         `json:"controls"`
	Performance FramePerformance `json:"performance"`
}

// Validate checks the structural invariants of a frame.
func (f *TelemetryFrame) Validate() error {
	if f.TimestampNS == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidFrame)
	}
	if f.SourceType != string(TypeTelemetry) {
		return fmt.Errorf("%w: source_type %q", ErrInvalidFrame, f.SourceType)
	}
	switch f.Simulator {
	case SimMSFS, SimBeamNG, SimXPlane, SimVATSIM:
	default:
		return fmt.Errorf("%w: unknown simulator %q", ErrInvalidFrame, f.Simulator)
	}
	return nil
}

// Encode marshals the frame to JSON.
func (f *TelemetryFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame unmarshals and validates a frame.
func DecodeFrame(data []byte) (*TelemetryFrame, error) {
	var f TelemetryFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ToSample flattens the frame into a simulator/telemetry sample. Timestamps
// are the normalized monotonic values supplied by the caller, not the raw
// device stamp carried in the frame.
func (f *TelemetryFrame) ToSample(timestamp, ingested int64) Sample {
	p := VehicleTelemetry{
		Position:     f.Vehicle.Position,
		Velocity:     f.Vehicle.Velocity,
		Acceleration: f.Vehicle.Acceleration,
		Rotation:     f.Vehicle.Rotation,
		HeadingDeg:   f.Vehicle.HeadingDeg,
		Throttle:     f.Controls.Throttle,
		Brake:        f.Controls.Brake,
		Steering:     f.Controls.Steering,
		Gear:         f.Controls.Gear,
		SpeedMPS:     f.Performance.SpeedMPS,
		AltitudeM:    f.Vehicle.Position[2],
		EngineRPM:    f.Performance.EngineRPM,
		FuelPct:      f.Performance.FuelPct,
		DamagePct:    f.Performance.DamagePct,
	}
	return NewSample(p, timestamp, ingested)
}
