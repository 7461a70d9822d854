package fusion

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/quality"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
	"github.com/michaelhil/synopticon-api-sub016/internal/temporal"
)

var (
	ErrNoTimestamp = errors.New("sample has no timestamp")
	ErrOutOfWindow = errors.New("sample timestamp outside ingest window")
	ErrClosed      = errors.New("fusion engine closed")
)

const (
	ingestWindowNS     = int64(5 * time.Minute)
	forecastHorizon    = 30 * time.Second
	minTrendConfidence = 0.3
	emaAlpha           = 0.1
)

// Thresholds gate trigger evaluation by sample quality.
type Thresholds struct {
	Human         float64 `yaml:"human"`
	Environmental float64 `yaml:"environmental"`
	Situational   float64 `yaml:"situational"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Human: 0.3, Environmental: 0.2, Situational: 0.5}
}

// EventType names the engine's notification kinds.
type EventType string

const (
	EventDataIngested     EventType = "data_ingested"
	EventFusionCompleted  EventType = "fusion_completed"
	EventPredictionUpdate EventType = "prediction_update"
)

// Event is one engine notification. Handlers run on the ingesting or timer
// goroutine and must be quick and goroutine-safe; Result and Forecast are
// shared and must be treated as read-only.
type Event struct {
	Type     EventType
	Key      string
	Result   *Result
	Forecast *temporal.Forecast
	At       int64
}

// Annotator attaches optional context to a result before it is stored and
// published.
type Annotator interface {
	Annotate(r *Result)
}

// Config tunes the engine. The zero value fires triggers synchronously with
// no quality gates; DefaultConfig returns the production settings.
type Config struct {
	EnableTemporalAnalysis  bool
	EnableQualityAssessment bool
	Thresholds              Thresholds
	MaxHistory              int
	// TriggerWindow coalesces trigger evaluations: a burst of ingests
	// within the window yields one fire. Zero fires on every ingest.
	TriggerWindow time.Duration
	Assessor      *quality.Assessor
	Store         *temporal.Store
	Clock         clock.Clock
	Annotators    []Annotator
	OnEvent       func(Event)
}

func DefaultConfig() Config {
	return Config{
		EnableTemporalAnalysis:  true,
		EnableQualityAssessment: true,
		Thresholds:              DefaultThresholds(),
		MaxHistory:              temporal.DefaultCapacity,
		TriggerWindow:           50 * time.Millisecond,
	}
}

// Engine holds the latest enriched sample per stream key and the latest
// result per fusion type, re-evaluating triggers on every ingest. It owns no
// goroutine of its own; work happens on caller and timer goroutines.
type Engine struct {
	cfg      Config
	clk      clock.Clock
	assessor *quality.Assessor
	store    *temporal.Store

	mu      sync.Mutex
	latest  map[string]telemetry.EnrichedSample
	results map[ResultType]Result
	lastTS  map[ResultType]int64
	timers  map[ResultType]*time.Timer
	perType map[ResultType]uint64
	emaMS   float64

	ingested  atomic.Uint64
	rejected  atomic.Uint64
	discarded atomic.Uint64
	fusions   atomic.Uint64

	closed atomic.Bool
}

func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = temporal.DefaultCapacity
	}
	if cfg.Assessor == nil {
		cfg.Assessor = quality.NewAssessor(quality.Config{})
	}
	if cfg.Store == nil {
		cfg.Store = temporal.NewStore(cfg.Clock, cfg.MaxHistory)
	}
	return &Engine{
		cfg:      cfg,
		clk:      cfg.Clock,
		assessor: cfg.Assessor,
		store:    cfg.Store,
		latest:   make(map[string]telemetry.EnrichedSample),
		results:  make(map[ResultType]Result),
		lastTS:   make(map[ResultType]int64),
		timers:   make(map[ResultType]*time.Timer),
		perType:  make(map[ResultType]uint64),
	}
}

// Store exposes the temporal store backing the engine's series.
func (e *Engine) Store() *temporal.Store { return e.store }

// Close stops pending trigger timers. Further ingests are rejected.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	for t, timer := range e.timers {
		timer.Stop()
		delete(e.timers, t)
	}
	e.mu.Unlock()
}

// Ingest assesses one raw sample, stores it as its stream's latest and
// evaluates fusion triggers. The enriched sample is returned so callers can
// forward it downstream.
func (e *Engine) Ingest(s telemetry.Sample) (telemetry.EnrichedSample, error) {
	var q telemetry.Quality
	if e.cfg.EnableQualityAssessment {
		q = e.assessor.Assess(s, e.clk.NowNS())
	} else {
		q = telemetry.Quality{Quality: 1, Confidence: 1, Staleness: 1, Completeness: 1, Consistency: 1, Plausibility: 1}
	}
	es := telemetry.EnrichedSample{Sample: s, Quality: q}
	if err := e.IngestEnriched(es); err != nil {
		return telemetry.EnrichedSample{}, err
	}
	return es, nil
}

// IngestEnriched accepts a sample already annotated upstream, skipping the
// engine's own assessment.
func (e *Engine) IngestEnriched(es telemetry.EnrichedSample) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if es.Timestamp == 0 {
		e.rejected.Add(1)
		return ErrNoTimestamp
	}
	now := e.clk.NowNS()
	age := now - es.Timestamp
	if age < 0 {
		age = -age
	}
	if age > ingestWindowNS {
		e.discarded.Add(1)
		return ErrOutOfWindow
	}

	start := time.Now()
	key := es.Key()
	e.mu.Lock()
	e.latest[key] = es
	e.mu.Unlock()

	if e.cfg.EnableTemporalAnalysis {
		if v, ok := es.Payload.PrimaryValue(); ok {
			e.store.Append(key, temporal.Point{Value: v, Quality: es.Quality.Quality, TS: es.Timestamp})
		}
	}
	e.ingested.Add(1)
	e.emit(Event{Type: EventDataIngested, Key: key, At: now})
	e.maybeTrigger()
	e.observe(start)
	return nil
}

// Latest returns the freshest enriched sample for a stream key.
func (e *Engine) Latest(key string) (telemetry.EnrichedSample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	es, ok := e.latest[key]
	return es, ok
}

// Result returns the latest result of one fusion type.
func (e *Engine) Result(t ResultType) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.results[t]
	return r, ok
}

// Stats is a point-in-time snapshot of engine throughput.
type Stats struct {
	Ingested        uint64
	Rejected        uint64
	Discarded       uint64
	Fusions         uint64
	PerType         map[ResultType]uint64
	AvgProcessingMS float64
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	per := make(map[ResultType]uint64, len(e.perType))
	for t, n := range e.perType {
		per[t] = n
	}
	ema := e.emaMS
	e.mu.Unlock()
	return Stats{
		Ingested:        e.ingested.Load(),
		Rejected:        e.rejected.Load(),
		Discarded:       e.discarded.Load(),
		Fusions:         e.fusions.Load(),
		PerType:         per,
		AvgProcessingMS: ema,
	}
}

var fusionOrder = []ResultType{ResultHumanState, ResultEnvironmental, ResultSituationalAwareness}

func (e *Engine) maybeTrigger() {
	for _, t := range fusionOrder {
		if e.conditionHolds(t) {
			e.schedule(t)
		}
	}
}

func (e *Engine) conditionHolds(t ResultType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conditionLocked(t)
}

// Trigger membership: any of these firing the human-state trigger. The
// self-report modality joins the blend when present but does not fire it.
var humanTriggerTypes = []telemetry.Type{
	telemetry.TypePhysiological,
	telemetry.TypeBehavioral,
	telemetry.TypePerformance,
}

func (e *Engine) conditionLocked(t ResultType) bool {
	switch t {
	case ResultHumanState:
		inputs := e.humanInputsLocked()
		for _, ht := range humanTriggerTypes {
			if _, ok := inputs[ht]; ok {
				return true
			}
		}
		return false
	case ResultEnvironmental:
		return len(e.envInputsLocked()) > 0
	case ResultSituationalAwareness:
		_, human := e.results[ResultHumanState]
		_, env := e.results[ResultEnvironmental]
		_, tele := e.latest[telemetry.Kind{Source: telemetry.SourceSimulator, Type: telemetry.TypeTelemetry}.Key()]
		return human && env && tele
	}
	return false
}

func (e *Engine) humanInputsLocked() map[telemetry.Type]telemetry.EnrichedSample {
	out := make(map[telemetry.Type]telemetry.EnrichedSample, len(humanModalityOrder))
	for _, t := range humanModalityOrder {
		key := telemetry.Kind{Source: telemetry.SourceHuman, Type: t}.Key()
		if es, ok := e.latest[key]; ok && es.Quality.Quality >= e.cfg.Thresholds.Human {
			out[t] = es
		}
	}
	return out
}

func (e *Engine) envInputsLocked() map[telemetry.Type]telemetry.EnrichedSample {
	out := make(map[telemetry.Type]telemetry.EnrichedSample, len(envFactorOrder))
	for _, t := range envFactorOrder {
		key := telemetry.Kind{Source: telemetry.SourceExternal, Type: t}.Key()
		if es, ok := e.latest[key]; ok && es.Quality.Quality >= e.cfg.Thresholds.Environmental {
			out[t] = es
		}
	}
	return out
}

func (e *Engine) schedule(t ResultType) {
	if e.cfg.TriggerWindow <= 0 {
		e.fire(t)
		return
	}
	e.mu.Lock()
	if _, pending := e.timers[t]; pending {
		e.mu.Unlock()
		return
	}
	e.timers[t] = time.AfterFunc(e.cfg.TriggerWindow, func() { e.fire(t) })
	e.mu.Unlock()
}

func (e *Engine) fire(t ResultType) {
	if e.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("fusion", string(t)).Msg("fusion fire aborted")
		}
	}()

	e.mu.Lock()
	delete(e.timers, t)
	if !e.conditionLocked(t) {
		e.mu.Unlock()
		return
	}

	var r Result
	switch t {
	case ResultHumanState:
		inputs := e.humanInputsLocked()
		e.mu.Unlock()
		hs, conf := ComputeHumanState(inputs)
		r = Result{Type: t, Confidence: conf, Human: &hs}
	case ResultEnvironmental:
		inputs := e.envInputsLocked()
		e.mu.Unlock()
		env, conf := ComputeEnvironmental(inputs)
		r = Result{Type: t, Confidence: conf, Env: &env}
	case ResultSituationalAwareness:
		human := e.results[ResultHumanState]
		env := e.results[ResultEnvironmental]
		tele := e.latest[telemetry.Kind{Source: telemetry.SourceSimulator, Type: telemetry.TypeTelemetry}.Key()]
		e.mu.Unlock()
		sa, conf := ComputeSituationalAwareness(*human.Human, *env.Env, tele, human.Confidence, env.Confidence)
		r = Result{Type: t, Confidence: conf, SA: &sa}
	default:
		e.mu.Unlock()
		return
	}

	e.finish(r)
}

func (e *Engine) finish(r Result) {
	now := e.clk.NowNS()
	e.mu.Lock()
	ts := now
	if last := e.lastTS[r.Type]; ts <= last {
		ts = last + 1
	}
	e.lastTS[r.Type] = ts
	e.mu.Unlock()
	r.Timestamp = ts

	key := "fusion/" + string(r.Type)
	if e.cfg.EnableTemporalAnalysis {
		if v, ok := r.PrimaryValue(); ok {
			e.store.Append(key, temporal.Point{Value: v, Quality: r.Confidence, TS: ts})
			if tr, err := e.store.Trend(key, 0); err == nil && tr.Direction != temporal.DirectionInsufficient {
				if r.Context == nil {
					r.Context = make(map[string]string, 1)
				}
				r.Context["trend"] = string(tr.Direction)
			}
		}
	}
	for _, a := range e.cfg.Annotators {
		a.Annotate(&r)
	}

	e.mu.Lock()
	e.results[r.Type] = r
	e.perType[r.Type]++
	e.mu.Unlock()
	e.fusions.Add(1)

	e.emit(Event{Type: EventFusionCompleted, Key: key, Result: &r, At: ts})

	if e.cfg.EnableTemporalAnalysis {
		if fc, err := e.store.Predict(key, forecastHorizon, minTrendConfidence); err == nil {
			e.emit(Event{Type: EventPredictionUpdate, Key: key, Forecast: &fc, At: e.clk.NowNS()})
		}
	}

	// A fresh human or environmental result can satisfy the situational
	// awareness trigger. In synchronous mode the ingest path's own trigger
	// sweep evaluates situational awareness after the other types, so
	// re-triggering here would fire it twice for one ingest.
	if e.cfg.TriggerWindow > 0 && r.Type != ResultSituationalAwareness && e.conditionHolds(ResultSituationalAwareness) {
		e.schedule(ResultSituationalAwareness)
	}
}

func (e *Engine) observe(start time.Time) {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	e.mu.Lock()
	if e.emaMS == 0 {
		e.emaMS = ms
	} else {
		e.emaMS = (1-emaAlpha)*e.emaMS + emaAlpha*ms
	}
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	if e.cfg.OnEvent != nil {
		e.cfg.OnEvent(ev)
	}
}
