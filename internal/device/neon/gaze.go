// Package neon speaks the Pupil Neon eye tracker protocol: an HTTP control
// API on port 8080 and a JSON websocket stream on /websocket carrying gaze,
// imu and event topics at 200 Hz.
package neon

import (
	"encoding/json"
	"fmt"

	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Stream topics carried on the websocket.
const (
	TopicGaze   = "gaze"
	TopicVideo  = "video"
	TopicIMU    = "imu"
	TopicEvents = "events"
)

// Message is the websocket envelope.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// EyeState is one eye's measurement inside a gaze message.
type EyeState struct {
	Center struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"center"`
	PupilDiameterMM float64 `json:"pupilDiameter_mm"`
}

// Gaze is the 200 Hz gaze sample schema. Coordinates are normalized scene
// camera coordinates in [0,1].
type Gaze struct {
	TimestampNS uint64  `json:"timestamp_ns"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Confidence  float64 `json:"confidence"`
	Worn        bool    `json:"worn"`
	EyeStates   struct {
		Left  EyeState `json:"left"`
		Right EyeState `json:"right"`
	} `json:"eyeStates"`
}

// DecodeMessage parses one websocket frame into its envelope.
func DecodeMessage(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("decode neon message: %w", err)
	}
	return m, nil
}

// DecodeGaze parses the data block of a gaze-topic message.
func DecodeGaze(data json.RawMessage) (Gaze, error) {
	var g Gaze
	if err := json.Unmarshal(data, &g); err != nil {
		return Gaze{}, fmt.Errorf("decode gaze: %w", err)
	}
	if g.TimestampNS == 0 {
		return Gaze{}, fmt.Errorf("gaze missing timestamp")
	}
	return g, nil
}

// ToSample converts a gaze reading into a human/behavioral sample. The
// timestamps are runtime monotonic values supplied by the caller, which owns
// the device clock normalization.
func (g Gaze) ToSample(timestamp, ingested int64) telemetry.Sample {
	mean := (g.EyeStates.Left.PupilDiameterMM + g.EyeStates.Right.PupilDiameterMM) / 2
	p := telemetry.Behavioral{
		GazeX:      g.X,
		GazeY:      g.Y,
		Confidence: g.Confidence,
		Worn:       g.Worn,
	}
	if mean > 0 {
		p.PupilDiameterMM = telemetry.Opt(mean)
	}
	return telemetry.NewSample(p, timestamp, ingested)
}
