// Package beamng speaks the BeamNG research bridge: newline-delimited JSON
// over TCP with typed messages for handshake, data pull and vehicle control.
package beamng

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Message types on the wire.
const (
	TypeHello        = "Hello"
	TypeDataRequest  = "DataRequest"
	TypeDataResponse = "DataResponse"
	TypeControlInput = "ControlInput"
	TypeVehicleReset = "VehicleReset"
	TypeLuaExecute   = "LuaExecute"
	TypeError        = "Error"
)

// Envelope is the discriminated wire message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hello is the handshake body.
type Hello struct {
	ClientName string `json:"clientName"`
	Version    string `json:"version"`
}

// DataRequest asks for one telemetry snapshot or a subscription.
type DataRequest struct {
	Fields []string `json:"fields,omitempty"`
	RateHz float64  `json:"rateHz,omitempty"`
}

// DataResponse is one vehicle telemetry snapshot.
type DataResponse struct {
	TimeS    float64    `json:"time"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Rotation [4]float64 `json:"rotation"`
	Heading  float64    `json:"heading"`
	Controls struct {
		Throttle     float64 `json:"throttle"`
		Brake        float64 `json:"brake"`
		Steering     float64 `json:"steering"`
		Clutch       float64 `json:"clutch"`
		Gear         int     `json:"gear"`
		ParkingBrake bool    `json:"parkingbrake"`
	} `json:"controls"`
	SpeedMPS  float64 `json:"speed"`
	FuelPct   float64 `json:"fuel"`
	EngineRPM float64 `json:"engineRpm"`
	DamagePct float64 `json:"damage"`
}

// ControlInput drives the vehicle. All axes are clamped on encode.
type ControlInput struct {
	Throttle     float64 `json:"throttle"`
	Brake        float64 `json:"brake"`
	Steering     float64 `json:"steering"`
	Clutch       float64 `json:"clutch"`
	Gear         int     `json:"gear"`
	ParkingBrake bool    `json:"parkingbrake"`
}

// WireError is the bridge's error report.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeMessage wraps a body into its envelope frame (without newline; the
// line framing appends it).
func EncodeMessage(typ string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}

// DecodeMessage parses one frame into its envelope.
func DecodeMessage(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: beamng frame: %v", session.ErrProtocol, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: beamng frame missing type", session.ErrProtocol)
	}
	return env, nil
}

// ToFrame normalizes a snapshot into the canonical telemetry frame.
func (d DataResponse) ToFrame(timestampNS uint64, sequence uint32, sourceID string) telemetry.TelemetryFrame {
	damage := d.DamagePct
	return telemetry.TelemetryFrame{
		TimestampNS: timestampNS,
		Sequence:    sequence,
		SourceID:    sourceID,
		SourceType:  string(telemetry.TypeTelemetry),
		Simulator:   telemetry.SimBeamNG,
		Vehicle: telemetry.Vehicle{
			Position:   telemetry.Vec3(d.Position),
			Velocity:   telemetry.Vec3(d.Velocity),
			Rotation:   telemetry.Quat(d.Rotation),
			HeadingDeg: d.Heading,
		},
		Controls: telemetry.Controls{
			Throttle: d.Controls.Throttle,
			Brake:    d.Controls.Brake,
			Steering: d.Controls.Steering,
			Gear:     d.Controls.Gear,
			Custom: map[string]float64{
				"clutch":       d.Controls.Clutch,
				"parkingbrake": boolField(d.Controls.ParkingBrake),
			},
		},
		Performance: telemetry.FramePerformance{
			SpeedMPS:  d.SpeedMPS,
			FuelPct:   d.FuelPct,
			EngineRPM: d.EngineRPM,
			DamagePct: &damage,
		},
	}
}

// Mapper translates commands into ControlInput and reset/lua frames.
type Mapper struct{}

// Map implements session.CommandMapper.
func (Mapper) Map(cmd telemetry.Command) ([][]byte, error) {
	switch cmd.Action {
	case "control_input":
		in := ControlInput{
			Throttle:     clamp(cmd.Param("throttle", 0), 0, 1),
			Brake:        clamp(cmd.Param("brake", 0), 0, 1),
			Steering:     clamp(cmd.Param("steering", 0), -1, 1),
			Clutch:       clamp(cmd.Param("clutch", 0), 0, 1),
			Gear:         int(cmd.Param("gear", 0)),
			ParkingBrake: cmd.Param("parkingbrake", 0) != 0,
		}
		f, err := EncodeMessage(TypeControlInput, in)
		if err != nil {
			return nil, err
		}
		return [][]byte{f}, nil
	case "throttle_set":
		f, err := EncodeMessage(TypeControlInput, ControlInput{Throttle: clamp(cmd.Param("value", 0), 0, 1)})
		if err != nil {
			return nil, err
		}
		return [][]byte{f}, nil
	case "brake_set":
		f, err := EncodeMessage(TypeControlInput, ControlInput{Brake: clamp(cmd.Param("value", 0), 0, 1)})
		if err != nil {
			return nil, err
		}
		return [][]byte{f}, nil
	case "steering_set":
		f, err := EncodeMessage(TypeControlInput, ControlInput{Steering: clamp(cmd.Param("value", 0), -1, 1)})
		if err != nil {
			return nil, err
		}
		return [][]byte{f}, nil
	case "vehicle_reset":
		f, err := EncodeMessage(TypeVehicleReset, struct{}{})
		if err != nil {
			return nil, err
		}
		return [][]byte{f}, nil
	default:
		return nil, session.ErrUnsupportedCommand
	}
}

// NewTransport builds the line-framed TCP transport for a BeamNG bridge.
func NewTransport(address string) *session.TCPTransport {
	return session.NewTCPTransport(session.TCPConfig{Address: address, Framing: session.LineFraming{}})
}

// HelloFrame is the handshake the session sends on connect, also reused as
// the heartbeat frame.
func HelloFrame(clientName string) []byte {
	f, err := EncodeMessage(TypeHello, Hello{ClientName: clientName, Version: "1.0"})
	if err != nil {
		panic(err)
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func boolField(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
