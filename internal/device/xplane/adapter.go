package xplane

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// Adapter accumulates RREF responses into a dataref snapshot and emits one
// canonical frame per completed update, rate-limited to 60 Hz regardless of
// how the simulator batches its datagrams.
type Adapter struct {
	sourceID string
	clk      clock.Clock
	limiter  *rate.Limiter
	onFrame  func(telemetry.TelemetryFrame)

	mu     sync.Mutex
	values map[int]float64
	seq    uint32
}

func NewAdapter(sourceID string, clk clock.Clock, onFrame func(telemetry.TelemetryFrame)) *Adapter {
	if clk == nil {
		clk = clock.System()
	}
	return &Adapter{
		sourceID: sourceID,
		clk:      clk,
		limiter:  rate.NewLimiter(rate.Limit(60), 1),
		onFrame:  onFrame,
		values:   make(map[int]float64, len(Datarefs)),
	}
}

// HandleFrame folds one datagram into the snapshot and emits a frame when
// the snapshot covers the position refs and the limiter admits it.
func (a *Adapter) HandleFrame(datagram []byte) {
	refs, err := DecodeRREF(datagram)
	if err != nil {
		log.Warn().Err(err).Str("source", a.sourceID).Msg("xplane datagram rejected")
		return
	}

	a.mu.Lock()
	for _, rv := range refs {
		a.values[rv.Index] = rv.Value
	}
	ready := a.hasPositionLocked()
	var snapshot map[int]float64
	var seq uint32
	if ready && a.limiter.Allow() {
		snapshot = make(map[int]float64, len(a.values))
		for k, v := range a.values {
			snapshot[k] = v
		}
		a.seq++
		seq = a.seq
	}
	a.mu.Unlock()

	if snapshot != nil && a.onFrame != nil {
		a.onFrame(frameFromRefs(snapshot, uint64(a.clk.WallNS()), seq, a.sourceID))
	}
}

func (a *Adapter) hasPositionLocked() bool {
	for _, idx := range []int{refLatitude, refLongitude, refElevation} {
		if _, ok := a.values[idx]; !ok {
			return false
		}
	}
	return true
}

func frameFromRefs(v map[int]float64, timestampNS uint64, sequence uint32, sourceID string) telemetry.TelemetryFrame {
	heading := v[refHeading]
	return telemetry.TelemetryFrame{
		TimestampNS: timestampNS,
		Sequence:    sequence,
		SourceID:    sourceID,
		SourceType:  string(telemetry.TypeTelemetry),
		Simulator:   telemetry.SimXPlane,
		Vehicle: telemetry.Vehicle{
			Position:   telemetry.Vec3{v[refLatitude], v[refLongitude], v[refElevation]},
			Velocity:   telemetry.Vec3{v[refVX], v[refVY], v[refVZ]},
			Rotation:   quatFromEuler(v[refPitch], v[refRoll], heading),
			HeadingDeg: heading,
		},
		Controls: telemetry.Controls{
			Throttle: v[refThrottle],
			Custom:   map[string]float64{"gearDown": v[refGearDown]},
		},
		Performance: telemetry.FramePerformance{
			SpeedMPS:  v[refGroundSpeed],
			FuelPct:   v[refFuelTotal],
			EngineRPM: v[refEngineRPM],
		},
	}
}

func quatFromEuler(pitchDeg, rollDeg, headingDeg float64) telemetry.Quat {
	p := pitchDeg * math.Pi / 360
	r := rollDeg * math.Pi / 360
	h := headingDeg * math.Pi / 360
	cp, sp := math.Cos(p), math.Sin(p)
	cr, sr := math.Cos(r), math.Sin(r)
	ch, sh := math.Cos(h), math.Sin(h)
	return telemetry.Quat{
		sp*ch*cr - cp*sh*sr,
		cp*sh*cr + sp*ch*sr,
		cp*ch*sr - sp*sh*cr,
		cp*ch*cr + sp*sh*sr,
	}
}

// Mapper translates commands into DREF writes.
type Mapper struct{}

var drefActions = map[string]string{
	"throttle_set": "sim/cockpit2/engine/actuators/throttle_ratio_all",
	"gear_toggle":  "sim/cockpit2/controls/gear_handle_down",
	"flaps_set":    "sim/cockpit2/controls/flap_ratio",
	"ap_master":    "sim/cockpit2/autopilot/servos_on",
}

// Map implements session.CommandMapper.
func (Mapper) Map(cmd telemetry.Command) ([][]byte, error) {
	path, ok := drefActions[cmd.Action]
	if !ok {
		return nil, session.ErrUnsupportedCommand
	}
	f, err := EncodeDREF(cmd.Param("value", 0), path)
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

// Probe sends one throwaway subscription to confirm the simulator is
// reachable; UDP has no handshake, so reachability means a socket write
// succeeded.
func Probe(ctx context.Context, address string) error {
	tr := NewUDPTransport(address, 1)
	if err := tr.Open(ctx); err != nil {
		return err
	}
	return tr.Close()
}
