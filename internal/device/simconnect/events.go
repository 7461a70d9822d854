package simconnect

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Client event names mapped from command actions. Scaled actions convert the
// [0,1] command parameter into the simulator's 0..16383 axis range.
var eventTable = map[string]struct {
	event  string
	scaled bool
}{
	"throttle_set":  {"THROTTLE_SET", true},
	"flaps_set":     {"FLAPS_SET", true},
	"elevator_set":  {"ELEVATOR_SET", true},
	"aileron_set":   {"AILERON_SET", true},
	"rudder_set":    {"RUDDER_SET", true},
	"gear_toggle":   {"GEAR_TOGGLE", false},
	"parking_brake": {"PARKING_BRAKES", false},
	"ap_master":     {"AP_MASTER", false},
	"pause_toggle":  {"PAUSE_TOGGLE", false},
}

const axisMax = 16383

// Mapper translates commands into MAP_CLIENT_EVENT_TO_SIM_EVENT and
// TRANSMIT_CLIENT_EVENT frames. Event ids are assigned on first use and the
// mapping frame is sent once per event per connection.
type Mapper struct {
	index  atomic.Uint32
	nextID atomic.Uint32
	mapped map[string]uint32
}

func NewMapper() *Mapper {
	return &Mapper{mapped: make(map[string]uint32)}
}

// Reset forgets sent mappings, for use after a reconnect.
func (m *Mapper) Reset() {
	m.mapped = make(map[string]uint32)
}

// Map implements session.CommandMapper.
func (m *Mapper) Map(cmd telemetry.Command) ([][]byte, error) {
	entry, ok := eventTable[cmd.Action]
	if !ok {
		return nil, session.ErrUnsupportedCommand
	}

	var frames [][]byte
	id, known := m.mapped[entry.event]
	if !known {
		id = m.nextID.Add(1)
		m.mapped[entry.event] = id
		f, err := Encode(MsgMapClientEventToEvent, m.index.Add(1), encodeMapEvent(id, entry.event))
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	value := cmd.Param("value", 0)
	var data uint32
	if entry.scaled {
		data = uint32(math.Round(clamp01(value) * axisMax))
	} else {
		data = uint32(value)
	}
	f, err := Encode(MsgTransmitClientEvent, m.index.Add(1), encodeTransmit(id, data))
	if err != nil {
		return nil, err
	}
	return append(frames, f), nil
}

func encodeMapEvent(id uint32, name string) []byte {
	payload := make([]byte, 4+len(name)+1)
	binary.LittleEndian.PutUint32(payload, id)
	copy(payload[4:], name)
	return payload
}

func encodeTransmit(id, data uint32) []byte {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:], 0) // SIMCONNECT_OBJECT_ID_USER
	binary.LittleEndian.PutUint32(payload[4:], id)
	binary.LittleEndian.PutUint32(payload[8:], data)
	return payload
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
