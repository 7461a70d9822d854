package simconnect

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// DefaultAddress is the SimConnect TCP endpoint.
const DefaultAddress = "127.0.0.1:500"

// NamedPipe is the Windows transport path, recorded for configs that carry
// it; this adapter dials TCP.
const NamedPipe = `\\.\pipe\Microsoft Flight Simulator\SimConnect`

// NewTransport builds the framed TCP transport for a SimConnect endpoint.
func NewTransport(address string) *session.TCPTransport {
	if address == "" {
		address = DefaultAddress
	}
	return session.NewTCPTransport(session.TCPConfig{Address: address, Framing: Framing{}})
}

// Adapter turns raw SimConnect frames into canonical telemetry frames. Wire
// it as the session's frame handler.
type Adapter struct {
	sourceID string
	clk      clock.Clock
	seq      atomic.Uint32
	onFrame  func(telemetry.TelemetryFrame)
	onQuit   func()
}

func NewAdapter(sourceID string, clk clock.Clock, onFrame func(telemetry.TelemetryFrame)) *Adapter {
	if clk == nil {
		clk = clock.System()
	}
	return &Adapter{sourceID: sourceID, clk: clk, onFrame: onFrame}
}

// OnQuit registers a handler for the simulator's QUIT message.
func (a *Adapter) OnQuit(fn func()) { a.onQuit = fn }

// HandleFrame decodes one wire frame and forwards SIMOBJECT_DATA messages.
// Other message kinds are control traffic and only logged.
func (a *Adapter) HandleFrame(frame []byte) {
	h, payload, err := Decode(frame)
	if err != nil {
		log.Warn().Err(err).Str("source", a.sourceID).Msg("simconnect frame rejected")
		return
	}
	switch h.ID {
	case MsgSimObjectData:
		data, err := DecodeSimObjectData(payload)
		if err != nil {
			log.Warn().Err(err).Str("source", a.sourceID).Msg("simconnect data rejected")
			return
		}
		if a.onFrame != nil {
			tf := data.ToFrame(uint64(a.clk.WallNS()), a.seq.Add(1), a.sourceID)
			a.onFrame(tf)
		}
	case MsgOpen:
		log.Info().Str("source", a.sourceID).Uint32("version", h.Version).Msg("simconnect session open")
	case MsgException:
		log.Warn().Str("source", a.sourceID).Msg("simconnect exception")
	case MsgQuit:
		log.Info().Str("source", a.sourceID).Msg("simulator quit")
		if a.onQuit != nil {
			a.onQuit()
		}
	default:
		log.Debug().Uint32("id", h.ID).Str("source", a.sourceID).Msg("simconnect message ignored")
	}
}
