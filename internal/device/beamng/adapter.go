package beamng

import (
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Adapter turns bridge frames into canonical telemetry frames. Wire
// HandleFrame as the session's frame handler.
type Adapter struct {
	sourceID string
	clk      clock.Clock
	seq      atomic.Uint32
	onFrame  func(telemetry.TelemetryFrame)
}

func NewAdapter(sourceID string, clk clock.Clock, onFrame func(telemetry.TelemetryFrame)) *Adapter {
	if clk == nil {
		clk = clock.System()
	}
	return &Adapter{sourceID: sourceID, clk: clk, onFrame: onFrame}
}

// HandleFrame decodes one line frame. DataResponse messages become frames;
// the rest is control traffic.
func (a *Adapter) HandleFrame(frame []byte) {
	env, err := DecodeMessage(frame)
	if err != nil {
		log.Warn().Err(err).Str("source", a.sourceID).Msg("beamng frame rejected")
		return
	}
	switch env.Type {
	case TypeDataResponse:
		var d DataResponse
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Warn().Err(err).Str("source", a.sourceID).Msg("beamng data rejected")
			return
		}
		if a.onFrame != nil {
			a.onFrame(d.ToFrame(uint64(a.clk.WallNS()), a.seq.Add(1), a.sourceID))
		}
	case TypeHello:
		log.Info().Str("source", a.sourceID).Msg("beamng bridge connected")
	case TypeError:
		var we WireError
		_ = json.Unmarshal(env.Data, &we)
		log.Warn().Str("source", a.sourceID).Str("code", we.Code).Str("detail", we.Message).Msg("beamng bridge error")
	default:
		log.Debug().Str("type", env.Type).Str("source", a.sourceID).Msg("beamng message ignored")
	}
}
