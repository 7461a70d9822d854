// Package runtime assembles the full pipeline from configuration: device
// sessions feed per-source stream nodes, enriched samples flow into the sync
// and fusion engines, and results fan out on the distributor's topic bus.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/config"
	"github.com/michaelhil/synopticon-api-sub016/internal/device/beamng"
	"github.com/michaelhil/synopticon-api-sub016/internal/device/neon"
	"github.com/michaelhil/synopticon-api-sub016/internal/device/simconnect"
	"github.com/michaelhil/synopticon-api-sub016/internal/device/vatsim"
	"github.com/michaelhil/synopticon-api-sub016/internal/device/xplane"
	"github.com/michaelhil/synopticon-api-sub016/internal/discovery"
	"github.com/michaelhil/synopticon-api-sub016/internal/distributor"
	"github.com/michaelhil/synopticon-api-sub016/internal/fusion"
	"github.com/michaelhil/synopticon-api-sub016/internal/metrics"
	"github.com/michaelhil/synopticon-api-sub016/internal/quality"
	"github.com/michaelhil/synopticon-api-sub016/internal/session"
	"github.com/michaelhil/synopticon-api-sub016/internal/stream"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
	"github.com/michaelhil/synopticon-api-sub016/internal/timesync"
)

var ErrAlreadyStarted = errors.New("runtime already started")

// Topics on the distributor bus.
const (
	TopicGaze          = "gaze"
	TopicFusionPrefix  = "fusion."
	TopicTelemetryBase = "telemetry."
)

// device bundles one configured source: its stream node plus either a
// session-owned transport or, for the VATSIM feed, a poller.
type device struct {
	cfg     config.DeviceConfig
	node    *stream.Node
	topic   string
	sess    *session.Session
	poller  *vatsim.Poller
	batcher *stream.AdaptiveBatcher[outFrame]
}

// outFrame is one pending distributor publish.
type outFrame struct {
	topic   string
	quality float64
	payload []byte
}

// sampleEnvelope is the JSON shape published for every enriched sample.
type sampleEnvelope struct {
	Key       string            `json:"key"`
	Source    string            `json:"source_id"`
	Sequence  uint64            `json:"sequence"`
	Timestamp int64             `json:"timestamp_ns"`
	Quality   telemetry.Quality `json:"quality"`
	Data      telemetry.Payload `json:"data"`
}

// Runtime owns every component's lifecycle. Start and Stop are idempotent;
// Stop is bounded by the configured drain timeout.
type Runtime struct {
	cfg  config.Config
	clk  clock.Clock
	met  *metrics.Metrics
	skew *clock.SkewCorrector

	dist       *distributor.Distributor
	fus        *fusion.Engine
	aligner    *timesync.Engine
	disc       *discovery.Service
	devices    map[string]*device
	extraSinks []distributor.Sink

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// Option overrides a constructed component, mainly for tests.
type Option func(*Runtime)

// WithClock substitutes the runtime clock.
func WithClock(clk clock.Clock) Option {
	return func(r *Runtime) { r.clk = clk }
}

// WithSink adds a distributor egress sink before the distributor is built.
func WithSink(s distributor.Sink) Option {
	return func(r *Runtime) { r.extraSinks = append(r.extraSinks, s) }
}

// New wires every component from the validated configuration. Redis egress
// is connected here, so an unreachable broker fails fast.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{
		cfg:     cfg,
		clk:     clock.System(),
		devices: make(map[string]*device, len(cfg.Devices)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.met = metrics.New()
	r.skew = clock.NewSkewCorrector(r.clk)

	sinks := r.extraSinks
	if cfg.Distributor.Redis.Enabled {
		sink, err := distributor.NewRedisSink(distributor.RedisConfig{Addr: cfg.Distributor.Redis.Addr})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	r.dist = distributor.New(distributor.Config{
		MaxClients:    cfg.Distributor.MaxClients,
		HighWatermark: cfg.Distributor.PerSubscriberHighwater,
		Compression:   cfg.Distributor.Compression,
		Sinks:         sinks,
		Clock:         r.clk,
	})

	assessor := quality.NewAssessor(quality.Config{})
	r.fus = fusion.NewEngine(fusion.Config{
		EnableTemporalAnalysis:  cfg.Fusion.EnableTemporalAnalysis,
		EnableQualityAssessment: cfg.Fusion.EnableQualityAssessment,
		Thresholds: fusion.Thresholds{
			Human:         cfg.Fusion.Thresholds.Human,
			Environmental: cfg.Fusion.Thresholds.Environmental,
			Situational:   cfg.Fusion.Thresholds.Situational,
		},
		MaxHistory:    cfg.Fusion.MaxHistory,
		TriggerWindow: cfg.Fusion.TriggerWindow(),
		Assessor:      assessor,
		Clock:         r.clk,
		OnEvent:       r.onFusionEvent,
	})

	r.aligner = timesync.NewEngine(timesync.Config{
		Tolerance:  cfg.Sync.Tolerance(),
		Strategy:   timesync.Strategy(cfg.Sync.Strategy),
		BufferSize: cfg.Sync.BufferSize,
		Clock:      r.clk,
	})

	r.disc = discovery.NewService(discovery.Config{
		Service:  cfg.Discovery.Service,
		Window:   cfg.Discovery.Window(),
		MockMode: cfg.Discovery.MockMode,
		Clock:    r.clk,
		OnEvent: func(e discovery.Event) {
			log.Info().Str("event", string(e.Type)).Str("device", e.Device.ID).
				Str("address", e.Device.Address).Msg("discovery")
		},
	})

	for _, dc := range cfg.Devices {
		dev, err := r.buildDevice(dc, assessor)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}
		r.devices[dc.ID] = dev
		r.aligner.AddStream(dc.ID)
	}
	return r, nil
}

func (r *Runtime) buildDevice(dc config.DeviceConfig, assessor *quality.Assessor) (*device, error) {
	dev := &device{cfg: dc}
	dev.node = stream.NewNode(stream.NodeConfig{
		Name:       dc.ID,
		BufferSize: r.cfg.Stream.BufferSize,
		RingSize:   r.cfg.Stream.BufferSize,
		Window:     r.cfg.Stream.Window(),
		Assessor:   assessor,
		Clock:      r.clk,
		OnEvent:    r.onNodeEvent,
	})

	address := fmt.Sprintf("%s:%d", dc.Address, dc.Port)
	mock := r.cfg.Session.MockMode
	reconnect := session.ReconnectConfig{
		Enabled:     r.cfg.Session.AutoReconnect,
		Base:        time.Duration(r.cfg.Session.ReconnectIntervalMS) * time.Millisecond,
		Max:         time.Duration(r.cfg.Session.MaxIntervalMS) * time.Millisecond,
		Multiplier:  r.cfg.Session.BackoffMultiplier,
		MaxAttempts: r.cfg.Session.MaxReconnectAttempts,
	}

	switch dc.Kind {
	case config.KindNeon:
		var tr session.Transport
		if mock {
			tr = session.NewMockTransport(session.MockConfig{
				RateHz:    float64(r.cfg.Stream.SampleRateHz),
				Generator: r.mockGazeFrame,
			})
		} else {
			tr = neon.NewStreamTransport(address)
		}
		dev.sess = session.New(session.Config{
			DeviceID:  dc.ID,
			Transport: tr,
			Reconnect: reconnect,
			Clock:     r.clk,
			OnFrame:   func(frame []byte) { r.handleNeonFrame(dev, frame) },
			OnState:   r.onSessionState,
		})

	case config.KindMSFS:
		var tr session.Transport
		if mock {
			tr = session.NewMockTransport(session.MockConfig{
				RateHz:    float64(r.cfg.Stream.SampleRateHz),
				Generator: mockSimObjectFrame,
			})
		} else {
			tr = simconnect.NewTransport(address)
		}
		adapter := simconnect.NewAdapter(dc.ID, r.clk, func(tf telemetry.TelemetryFrame) {
			r.handleTelemetryFrame(dev, tf)
		})
		dev.sess = session.New(session.Config{
			DeviceID:  dc.ID,
			Transport: tr,
			Reconnect: reconnect,
			Mapper:    simconnect.NewMapper(),
			Clock:     r.clk,
			OnFrame:   adapter.HandleFrame,
			OnState:   r.onSessionState,
		})

	case config.KindBeamNG:
		var tr session.Transport
		if mock {
			tr = session.NewMockTransport(session.MockConfig{
				RateHz:    float64(r.cfg.Stream.SampleRateHz),
				Generator: mockBeamNGFrame,
			})
		} else {
			tr = beamng.NewTransport(address)
		}
		adapter := beamng.NewAdapter(dc.ID, r.clk, func(tf telemetry.TelemetryFrame) {
			r.handleTelemetryFrame(dev, tf)
		})
		heartbeat, err := beamng.EncodeMessage(beamng.TypeDataRequest,
			beamng.DataRequest{RateHz: float64(r.cfg.Stream.SampleRateHz)})
		if err != nil {
			return nil, err
		}
		dev.sess = session.New(session.Config{
			DeviceID:       dc.ID,
			Transport:      tr,
			Reconnect:      reconnect,
			Mapper:         beamng.Mapper{},
			HeartbeatFrame: heartbeat,
			Clock:          r.clk,
			OnFrame:        adapter.HandleFrame,
			OnState:        r.onSessionState,
		})

	case config.KindXPlane:
		var tr session.Transport
		if mock {
			tr = session.NewMockTransport(session.MockConfig{
				RateHz:    float64(r.cfg.Stream.SampleRateHz),
				Generator: mockRREFFrame,
			})
		} else {
			tr = xplane.NewUDPTransport(address, r.cfg.Stream.SampleRateHz)
		}
		adapter := xplane.NewAdapter(dc.ID, r.clk, func(tf telemetry.TelemetryFrame) {
			r.handleTelemetryFrame(dev, tf)
		})
		dev.sess = session.New(session.Config{
			DeviceID:  dc.ID,
			Transport: tr,
			Reconnect: reconnect,
			Mapper:    xplane.Mapper{},
			Clock:     r.clk,
			OnFrame:   adapter.HandleFrame,
			OnState:   r.onSessionState,
		})

	case config.KindVATSIM:
		dev.poller = vatsim.NewPoller(vatsim.Config{
			URL:      dc.Options["url"],
			Callsign: dc.Options["callsign"],
			SourceID: dc.ID,
			Clock:    r.clk,
			Skew:     r.skew,
			OnFrame:  func(tf telemetry.TelemetryFrame) { r.handleVATSIMFrame(dev, tf) },
			OnTraffic: func(s telemetry.Sample) {
				dev.node.Process(s)
			},
		})

	default:
		return nil, fmt.Errorf("unknown device kind %q", dc.Kind)
	}

	dev.topic = topicFor(dc.Kind)
	if r.cfg.Stream.EnableAdaptiveBatching {
		dev.batcher = stream.NewAdaptiveBatcher(stream.BatcherConfig{
			Clock: r.clk,
		}, func(items []outFrame) {
			r.met.BatchSize.Observe(float64(len(items)))
			for _, it := range items {
				r.publishFrame(it)
			}
		})
	}
	return dev, nil
}

func (r *Runtime) publishFrame(f outFrame) {
	err := r.dist.Publish(f.topic, f.quality, f.payload, distributor.Options{
		Compress: r.cfg.Distributor.Compression,
	})
	if err == nil {
		r.met.DistributorFrames.WithLabelValues(f.topic).Inc()
	}
}

func topicFor(kind config.DeviceKind) string {
	switch kind {
	case config.KindNeon:
		return TopicGaze
	case config.KindMSFS:
		return TopicTelemetryBase + telemetry.SimMSFS
	case config.KindBeamNG:
		return TopicTelemetryBase + telemetry.SimBeamNG
	case config.KindXPlane:
		return TopicTelemetryBase + telemetry.SimXPlane
	case config.KindVATSIM:
		return TopicTelemetryBase + telemetry.SimVATSIM
	}
	return "telemetry.unknown"
}

// Start launches every component. The call returns once everything is
// running; component failures surface through Wait.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	r.mu.Unlock()

	if err := r.aligner.Start(ctx); err != nil {
		return err
	}
	r.group.Go(func() error { return r.consumeTuples(ctx) })

	if err := r.disc.Start(ctx); err != nil {
		return err
	}

	for _, dev := range r.devices {
		dev := dev
		if err := dev.node.Start(ctx); err != nil {
			return err
		}
		if dev.batcher != nil {
			if err := dev.batcher.Start(ctx); err != nil {
				return err
			}
		}
		ch, err := dev.node.Subscribe("runtime")
		if err != nil {
			return err
		}
		r.group.Go(func() error { return r.fanout(ctx, dev, ch) })

		switch {
		case dev.poller != nil:
			r.group.Go(func() error { return dev.poller.Run(ctx) })
		case dev.sess != nil:
			if err := dev.sess.Connect(ctx); err != nil {
				// The reconnect machinery owns retries from here.
				log.Warn().Err(err).Str("device", dev.cfg.ID).Msg("initial connect failed")
			}
		}
	}
	log.Info().Int("devices", len(r.devices)).Msg("runtime started")
	return nil
}

// Wait blocks until every background task has finished.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	g := r.group
	r.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop tears everything down. Safe to call more than once.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cancel := r.cancel
		r.started = false
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		for _, dev := range r.devices {
			if dev.sess != nil {
				dev.sess.Disconnect()
			}
			dev.node.Stop()
			if dev.batcher != nil {
				dev.batcher.Stop()
			}
		}
		r.disc.Stop()
		r.aligner.Stop()
		if err := r.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("runtime shutdown")
		}
		r.fus.Close()
		r.dist.Close()
		log.Info().Msg("runtime stopped")
	})
}

// Distributor exposes the topic bus for local subscribers.
func (r *Runtime) Distributor() *distributor.Distributor { return r.dist }

// Metrics exposes the prometheus registry owner.
func (r *Runtime) Metrics() *metrics.Metrics { return r.met }

// Fusion exposes the fusion engine for result queries.
func (r *Runtime) Fusion() *fusion.Engine { return r.fus }

// Dispatch routes a command to a device session.
func (r *Runtime) Dispatch(deviceID string, cmd telemetry.Command) telemetry.CommandResult {
	dev, ok := r.devices[deviceID]
	if !ok || dev.sess == nil {
		return telemetry.CommandResult{
			Code:    telemetry.CodeNotConnected,
			Message: fmt.Sprintf("no session for device %q", deviceID),
		}
	}
	return dev.sess.Dispatch(cmd)
}

// DeviceStatus is one device's health in a status report.
type DeviceStatus struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	FramesIn   uint64 `json:"frames_in"`
	Reconnects uint64 `json:"reconnects"`
}

// Status is the runtime-wide health report.
type Status struct {
	Running     bool              `json:"running"`
	Devices     []DeviceStatus    `json:"devices"`
	Sync        timesync.Stats    `json:"sync"`
	Fusion      fusion.Stats      `json:"fusion"`
	Distributor distributor.Stats `json:"distributor"`
	Discovered  int               `json:"discovered"`
}

func (r *Runtime) Status() Status {
	r.mu.Lock()
	running := r.started
	r.mu.Unlock()

	st := Status{
		Running:     running,
		Sync:        r.aligner.Stats(),
		Fusion:      r.fus.Stats(),
		Distributor: r.dist.Stats(),
		Discovered:  len(r.disc.Devices()),
	}
	for _, dev := range r.devices {
		ds := DeviceStatus{ID: dev.cfg.ID, Kind: string(dev.cfg.Kind)}
		switch {
		case dev.sess != nil:
			ss := dev.sess.Stats()
			ds.State = string(ss.State)
			ds.FramesIn = ss.FramesIn
			ds.Reconnects = ss.Reconnects
		case dev.poller != nil:
			ps := dev.poller.Stats()
			ds.State = "polling/" + ps.BreakerState
			ds.FramesIn = ps.Frames
		}
		st.Devices = append(st.Devices, ds)
	}
	return st
}

// fanout consumes one node's enriched output and feeds fusion, sync and the
// topic bus.
func (r *Runtime) fanout(ctx context.Context, dev *device, ch <-chan telemetry.EnrichedSample) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case es, ok := <-ch:
			if !ok {
				return nil
			}
			r.met.SamplesIngested.WithLabelValues(dev.cfg.ID, string(es.Type)).Inc()
			r.met.QualityScore.WithLabelValues(dev.cfg.ID, string(es.Type)).Set(es.Quality.Quality)

			if err := r.fus.IngestEnriched(es); err != nil {
				r.met.SamplesDropped.WithLabelValues("fusion_reject").Inc()
				log.Debug().Err(err).Str("device", dev.cfg.ID).Msg("fusion rejected sample")
			}
			r.aligner.Submit(dev.cfg.ID, es)

			payload, err := json.Marshal(sampleEnvelope{
				Key:       es.Key(),
				Source:    dev.cfg.ID,
				Sequence:  es.Sequence,
				Timestamp: es.Timestamp,
				Quality:   es.Quality,
				Data:      es.Payload,
			})
			if err != nil {
				continue
			}
			out := outFrame{topic: dev.topic, quality: es.Quality.Quality, payload: payload}
			if dev.batcher != nil {
				dev.batcher.Submit(out)
			} else {
				r.publishFrame(out)
			}
		}
	}
}

func (r *Runtime) consumeTuples(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tuple, ok := <-r.aligner.Tuples():
			if !ok {
				return nil
			}
			r.met.SyncTuples.Inc()
			r.met.SyncTupleQuality.Observe(tuple.Quality)
		}
	}
}

func (r *Runtime) handleNeonFrame(dev *device, frame []byte) {
	msg, err := neon.DecodeMessage(frame)
	if err != nil {
		r.met.SamplesDropped.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Str("device", dev.cfg.ID).Msg("neon frame rejected")
		return
	}
	switch msg.Topic {
	case neon.TopicGaze:
		g, err := neon.DecodeGaze(msg.Data)
		if err != nil {
			r.met.SamplesDropped.WithLabelValues("malformed").Inc()
			return
		}
		ts, ok := r.skew.Normalize(dev.cfg.ID, int64(g.TimestampNS))
		if !ok {
			r.met.SamplesDropped.WithLabelValues("implausible_timestamp").Inc()
			return
		}
		dev.node.Process(g.ToSample(ts, r.clk.NowNS()))
	default:
		// IMU and event topics are accepted but not modeled yet.
	}
}

// handleTelemetryFrame takes adapter output stamped with the local wall
// clock and moves it onto the monotonic axis.
func (r *Runtime) handleTelemetryFrame(dev *device, tf telemetry.TelemetryFrame) {
	ts, ok := r.skew.Normalize(dev.cfg.ID, int64(tf.TimestampNS))
	if !ok {
		r.met.SamplesDropped.WithLabelValues("implausible_timestamp").Inc()
		return
	}
	dev.node.Process(tf.ToSample(ts, r.clk.NowNS()))
}

// handleVATSIMFrame takes poller output whose timestamps are already
// normalized.
func (r *Runtime) handleVATSIMFrame(dev *device, tf telemetry.TelemetryFrame) {
	dev.node.Process(tf.ToSample(int64(tf.TimestampNS), r.clk.NowNS()))
}

func (r *Runtime) onFusionEvent(ev fusion.Event) {
	if ev.Type != fusion.EventFusionCompleted || ev.Result == nil {
		return
	}
	r.met.Fusions.WithLabelValues(string(ev.Result.Type)).Inc()
	payload, err := json.Marshal(ev.Result)
	if err != nil {
		return
	}
	topic := TopicFusionPrefix + string(ev.Result.Type)
	if err := r.dist.Publish(topic, ev.Result.Confidence, payload, distributor.Options{
		Priority: 1,
		Compress: r.cfg.Distributor.Compression,
	}); err == nil {
		r.met.DistributorFrames.WithLabelValues(topic).Inc()
	}
}

func (r *Runtime) onNodeEvent(e stream.Event) {
	switch e.Type {
	case stream.EventBackpressure:
		r.met.SamplesDropped.WithLabelValues("backpressure").Inc()
	case stream.EventDegraded:
		log.Warn().Str("node", e.Node).Msg("stream node degraded")
	case stream.EventRecovered:
		log.Info().Str("node", e.Node).Msg("stream node recovered")
	}
}

var stateValues = map[session.State]float64{
	session.StateDisconnected:  0,
	session.StateConnecting:    1,
	session.StateConnected:     2,
	session.StateDisconnecting: 3,
	session.StateError:         4,
	session.StateFailed:        5,
}

func (r *Runtime) onSessionState(tr session.Transition) {
	r.met.SessionState.WithLabelValues(tr.Device).Set(stateValues[tr.To])
	if tr.From == session.StateError && tr.To == session.StateConnecting {
		r.met.SessionReconnects.WithLabelValues(tr.Device).Inc()
	}
	log.Info().Str("device", tr.Device).Str("from", string(tr.From)).
		Str("to", string(tr.To)).Str("reason", tr.Reason).Msg("session state")
}

// mockGazeFrame emits the deterministic gaze pattern used when no hardware
// is attached.
func (r *Runtime) mockGazeFrame(seq uint64) []byte {
	g := neon.MockGaze(seq, uint64(r.clk.WallNS()))
	data, _ := json.Marshal(g)
	frame, _ := json.Marshal(neon.Message{Topic: neon.TopicGaze, Data: data})
	return frame
}

func mockSimObjectFrame(seq uint64) []byte {
	t := float64(seq) / 50
	payload := simconnect.EncodeSimObjectData(1, 1, simconnect.SimObjectData{
		LatitudeDeg:  47.43 + 0.0001*t,
		LongitudeDeg: -122.3,
		AltitudeM:    900 + 10*t,
		HeadingDeg:   180,
		SpeedMPS:     70,
		ThrottlePct:  0.6,
		FuelPct:      0.8,
		EngineRPM:    2200,
	})
	frame, _ := simconnect.Encode(simconnect.MsgSimObjectData, uint32(seq), payload)
	return frame
}

func mockBeamNGFrame(seq uint64) []byte {
	t := float64(seq) / 50
	var d beamng.DataResponse
	d.TimeS = t
	d.Position = [3]float64{10 * t, 0, 0.5}
	d.Velocity = [3]float64{10, 0, 0}
	d.Rotation = [4]float64{0, 0, 0, 1}
	d.SpeedMPS = 10
	d.FuelPct = 0.9
	d.EngineRPM = 3000
	d.Controls.Throttle = 0.4
	d.Controls.Gear = 3
	frame, _ := beamng.EncodeMessage(beamng.TypeDataResponse, d)
	return frame
}

func mockRREFFrame(seq uint64) []byte {
	t := float64(seq) / 50
	// Indices follow the subscription order in xplane.Datarefs: 1 latitude,
	// 2 longitude, 3 elevation, 9 heading, 10 groundspeed.
	return xplane.EncodeRREFResponse([]xplane.RefValue{
		{Index: 1, Value: 59.9 + 0.0001*t},
		{Index: 2, Value: 10.6},
		{Index: 3, Value: 300 + t},
		{Index: 9, Value: 90},
		{Index: 10, Value: 65},
	})
}
