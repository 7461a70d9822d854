// Package xplane speaks the X-Plane UDP dataref protocol on port 49000:
// RREF subscriptions for telemetry pull and DREF writes for the command
// path. Frame emission is paced to at most 60 Hz.
package xplane

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
)

// DefaultPort is the simulator's UDP command port.
const DefaultPort = 49000

const (
	rrefPathLen = 400
	drefPathLen = 500
)

// Subscribed datarefs, keyed by the index used in RREF requests.
const (
	refLatitude = iota + 1
	refLongitude
	refElevation
	refVX
	refVY
	refVZ
	refPitch
	refRoll
	refHeading
	refGroundSpeed
	refThrottle
	refGearDown
	refFuelTotal
	refEngineRPM
)

// Datarefs maps subscription indices to dataref paths.
var Datarefs = map[int]string{
	refLatitude:    "sim/flightmodel/position/latitude",
	refLongitude:   "sim/flightmodel/position/longitude",
	refElevation:   "sim/flightmodel/position/elevation",
	refVX:          "sim/flightmodel/position/local_vx",
	refVY:          "sim/flightmodel/position/local_vy",
	refVZ:          "sim/flightmodel/position/local_vz",
	refPitch:       "sim/flightmodel/position/theta",
	refRoll:        "sim/flightmodel/position/phi",
	refHeading:     "sim/flightmodel/position/psi",
	refGroundSpeed: "sim/flightmodel/position/groundspeed",
	refThrottle:    "sim/cockpit2/engine/actuators/throttle_ratio_all",
	refGearDown:    "sim/cockpit2/controls/gear_handle_down",
	refFuelTotal:   "sim/cockpit2/fuel/fuel_quantity_total",
	refEngineRPM:   "sim/cockpit2/engine/indicators/engine_speed_rpm",
}

// EncodeRREF builds one dataref subscription request at the given frequency
// (per second; the simulator honors up to 60).
func EncodeRREF(freqHz, index int, dataref string) ([]byte, error) {
	if len(dataref) >= rrefPathLen {
		return nil, fmt.Errorf("%w: dataref path too long", session.ErrProtocol)
	}
	buf := make([]byte, 5+4+4+rrefPathLen)
	copy(buf, "RREF\x00")
	binary.LittleEndian.PutUint32(buf[5:], uint32(freqHz))
	binary.LittleEndian.PutUint32(buf[9:], uint32(index))
	copy(buf[13:], dataref)
	return buf, nil
}

// RefValue is one (index, value) pair from an RREF response.
type RefValue struct {
	Index int
	Value float64
}

// DecodeRREF parses an RREF response datagram: the 5-byte marker followed by
// 8-byte index/value pairs.
func DecodeRREF(datagram []byte) ([]RefValue, error) {
	if len(datagram) < 5 || !bytes.HasPrefix(datagram, []byte("RREF")) {
		return nil, fmt.Errorf("%w: not an RREF datagram", session.ErrProtocol)
	}
	body := datagram[5:]
	if len(body)%8 != 0 {
		return nil, fmt.Errorf("%w: RREF body %d bytes", session.ErrProtocol, len(body))
	}
	out := make([]RefValue, 0, len(body)/8)
	for off := 0; off+8 <= len(body); off += 8 {
		idx := int(int32(binary.LittleEndian.Uint32(body[off:])))
		bits := binary.LittleEndian.Uint32(body[off+4:])
		out = append(out, RefValue{Index: idx, Value: float64(math.Float32frombits(bits))})
	}
	return out, nil
}

// EncodeRREFResponse builds a response datagram, for the mock generator and
// tests.
func EncodeRREFResponse(values []RefValue) []byte {
	buf := make([]byte, 5+len(values)*8)
	copy(buf, "RREF,")
	for i, v := range values {
		off := 5 + i*8
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(v.Index)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(v.Value)))
	}
	return buf
}

// EncodeDREF builds a dataref write request.
func EncodeDREF(value float64, dataref string) ([]byte, error) {
	if len(dataref) >= drefPathLen {
		return nil, fmt.Errorf("%w: dataref path too long", session.ErrProtocol)
	}
	buf := make([]byte, 5+4+drefPathLen)
	copy(buf, "DREF\x00")
	binary.LittleEndian.PutUint32(buf[5:], math.Float32bits(float32(value)))
	copy(buf[9:], dataref)
	return buf, nil
}
