// Package simconnect speaks the MSFS SimConnect binary protocol: 16-byte
// little-endian framed messages over TCP (localhost:500) or a named pipe,
// SIMOBJECT_DATA decoding into the canonical telemetry frame and the client
// event command path.
package simconnect

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Message IDs.
const (
	MsgOpen                  uint32 = 0x01
	MsgException             uint32 = 0x02
	MsgSimObjectData         uint32 = 0x03
	MsgQuit                  uint32 = 0x04
	MsgMapClientEventToEvent uint32 = 0x05
	MsgTransmitClientEvent   uint32 = 0x06
	MsgDataDefinition        uint32 = 0x07
	MsgDataRequest           uint32 = 0x08
)

// ProtocolVersion is the SimConnect protocol version stamped in every header.
const ProtocolVersion uint32 = 4

// HeaderSize is the fixed frame header length.
const HeaderSize = 16

// Header is the 16-byte frame prefix: total size including the header,
// protocol version, message id and a per-connection send index.
type Header struct {
	Size    uint32
	Version uint32
	ID      uint32
	Index   uint32
}

// Encode prepends a header to the payload, producing one wire frame.
func Encode(id, index uint32, payload []byte) ([]byte, error) {
	total := HeaderSize + len(payload)
	if total > session.MaxFrameBytes {
		return nil, session.ErrFrameTooLarge
	}
	frame := make([]byte, total)
	binary.LittleEndian.PutUint32(frame[0:], uint32(total))
	binary.LittleEndian.PutUint32(frame[4:], ProtocolVersion)
	binary.LittleEndian.PutUint32(frame[8:], id)
	binary.LittleEndian.PutUint32(frame[12:], index)
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Decode splits one wire frame into header and payload.
func Decode(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: simconnect frame %d bytes", session.ErrProtocol, len(frame))
	}
	h := Header{
		Size:    binary.LittleEndian.Uint32(frame[0:]),
		Version: binary.LittleEndian.Uint32(frame[4:]),
		ID:      binary.LittleEndian.Uint32(frame[8:]),
		Index:   binary.LittleEndian.Uint32(frame[12:]),
	}
	if int(h.Size) != len(frame) {
		return Header{}, nil, fmt.Errorf("%w: simconnect size %d != frame %d", session.ErrProtocol, h.Size, len(frame))
	}
	return h, frame[HeaderSize:], nil
}

// Framing reads SimConnect frames off a byte stream: the leading u32 size
// covers the whole message including its header.
type Framing struct{}

func (Framing) ReadFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[:4])
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: simconnect size %d", session.ErrProtocol, size)
	}
	if size > session.MaxFrameBytes {
		return nil, session.ErrFrameTooLarge
	}
	frame := make([]byte, size)
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func (Framing) WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > session.MaxFrameBytes {
		return session.ErrFrameTooLarge
	}
	_, err := w.Write(frame)
	return err
}

// SimObjectData is the decoded payload of a SIMOBJECT_DATA message holding
// the position/velocity data definition: thirteen f64 fields in a fixed
// order.
type SimObjectData struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
	PitchDeg     float64
	BankDeg      float64
	HeadingDeg   float64
	SpeedMPS     float64
	VerticalMPS  float64
	ThrottlePct  float64
	FuelPct      float64
	EngineRPM    float64
	GearDown     float64
	OnGround     float64
}

const simObjectFields = 13

// DecodeSimObjectData parses the fixed f64 data block of a SIMOBJECT_DATA
// payload. The payload leads with two u32s (request id, object id).
func DecodeSimObjectData(payload []byte) (SimObjectData, error) {
	want := 8 + simObjectFields*8
	if len(payload) < want {
		return SimObjectData{}, fmt.Errorf("%w: simobject payload %d bytes, want %d", session.ErrProtocol, len(payload), want)
	}
	vals := make([]float64, simObjectFields)
	for i := range vals {
		bits := binary.LittleEndian.Uint64(payload[8+i*8:])
		vals[i] = math.Float64frombits(bits)
	}
	return SimObjectData{
		LatitudeDeg:  vals[0],
		LongitudeDeg: vals[1],
		AltitudeM:    vals[2],
		PitchDeg:     vals[3],
		BankDeg:      vals[4],
		HeadingDeg:   vals[5],
		SpeedMPS:     vals[6],
		VerticalMPS:  vals[7],
		ThrottlePct:  vals[8],
		FuelPct:      vals[9],
		EngineRPM:    vals[10],
		GearDown:     vals[11],
		OnGround:     vals[12],
	}, nil
}

// EncodeSimObjectData builds the payload DecodeSimObjectData parses, for the
// mock generator and tests.
func EncodeSimObjectData(requestID, objectID uint32, d SimObjectData) []byte {
	vals := []float64{
		d.LatitudeDeg, d.LongitudeDeg, d.AltitudeM,
		d.PitchDeg, d.BankDeg, d.HeadingDeg,
		d.SpeedMPS, d.VerticalMPS,
		d.ThrottlePct, d.FuelPct, d.EngineRPM,
		d.GearDown, d.OnGround,
	}
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(vals)*8))
	binary.Write(buf, binary.LittleEndian, requestID)
	binary.Write(buf, binary.LittleEndian, objectID)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// ToFrame normalizes a data block into the canonical telemetry frame.
func (d SimObjectData) ToFrame(timestampNS uint64, sequence uint32, sourceID string) telemetry.TelemetryFrame {
	headingRad := d.HeadingDeg * math.Pi / 180
	return telemetry.TelemetryFrame{
		TimestampNS: timestampNS,
		Sequence:    sequence,
		SourceID:    sourceID,
		SourceType:  string(telemetry.TypeTelemetry),
		Simulator:   telemetry.SimMSFS,
		Vehicle: telemetry.Vehicle{
			Position: telemetry.Vec3{d.LatitudeDeg, d.LongitudeDeg, d.AltitudeM},
			Velocity: telemetry.Vec3{
				d.SpeedMPS * math.Sin(headingRad),
				d.SpeedMPS * math.Cos(headingRad),
				d.VerticalMPS,
			},
			Rotation:   eulerToQuat(d.PitchDeg, d.BankDeg, d.HeadingDeg),
			HeadingDeg: d.HeadingDeg,
		},
		Controls: telemetry.Controls{Throttle: d.ThrottlePct},
		Performance: telemetry.FramePerformance{
			SpeedMPS:  d.SpeedMPS,
			FuelPct:   d.FuelPct,
			EngineRPM: d.EngineRPM,
		},
	}
}

func eulerToQuat(pitchDeg, bankDeg, headingDeg float64) telemetry.Quat {
	p := pitchDeg * math.Pi / 360
	b := bankDeg * math.Pi / 360
	h := headingDeg * math.Pi / 360
	cp, sp := math.Cos(p), math.Sin(p)
	cb, sb := math.Cos(b), math.Sin(b)
	ch, sh := math.Cos(h), math.Sin(h)
	return telemetry.Quat{
		sp*ch*cb - cp*sh*sb,
		cp*sh*cb + sp*ch*sb,
		cp*ch*sb - sp*sh*cb,
		cp*ch*cb + sp*sh*sb,
	}
}
