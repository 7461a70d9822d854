// Package timesync aligns samples across registered streams: every new
// sample is treated as an anchor, the closest sample within tolerance is
// picked from each other stream, and a tuple is emitted when the whole set
// spans no more than the tolerance.
package timesync

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

var ErrEngineRunning = errors.New("sync engine already running")

// Strategy selects which timestamp a sample is aligned on.
type Strategy string

const (
	// StrategyHardware aligns on the sample's source timestamp.
	StrategyHardware Strategy = "hardware_timestamp"
	// StrategySoftware aligns on the sample's ingestion time.
	StrategySoftware Strategy = "software_timestamp"
	// StrategyArrival aligns on receipt order at the engine.
	StrategyArrival Strategy = "arrival_time"
)

const (
	defaultTolerance  = 10 * time.Millisecond
	defaultBufferSize = 100
	defaultQueueSize  = 256
	defaultOutSize    = 64
	dedupeCap         = 1024
)

// Config tunes the engine. Zero values get defaults.
type Config struct {
	Tolerance  time.Duration // default 10ms
	Strategy   Strategy      // default software_timestamp
	BufferSize int           // per-stream ordered buffer, default 100
	QueueSize  int           // matcher inbox, default 256
	OutSize    int           // tuple channel, default 64
	Clock      clock.Clock
}

// Tuple is one cross-stream alignment: the anchor sample plus the closest
// sample from every other registered stream, all within the tolerance.
type Tuple struct {
	AnchorStream string
	AnchorTS     int64
	Samples      map[string]telemetry.EnrichedSample
	Quality      float64
	SpanNS       int64
	EmittedAt    int64
}

// Stats is a point-in-time snapshot of engine throughput.
type Stats struct {
	Submitted    uint64
	Matched      uint64
	DroppedInbox uint64
	ShedTuples   uint64
	Streams      int
}

type inbound struct {
	stream  string
	sample  telemetry.EnrichedSample
	arrival int64
}

type entry struct {
	ts int64
	es telemetry.EnrichedSample
}

// buffer keeps entries ordered by alignment timestamp, evicting the oldest
// once full.
type buffer struct {
	entries []entry
	cap     int
}

func (b *buffer) insert(e entry) {
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].ts > e.ts })
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	if len(b.entries) > b.cap {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
}

func (b *buffer) closest(ts, tolNS int64) (entry, bool) {
	if len(b.entries) == 0 {
		return entry{}, false
	}
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].ts >= ts })
	best, bestDist := entry{}, int64(-1)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(b.entries) {
			continue
		}
		dist := b.entries[j].ts - ts
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolNS && (bestDist < 0 || dist < bestDist) {
			best, bestDist = b.entries[j], dist
		}
	}
	return best, bestDist >= 0
}

// Engine matches samples across streams on a single matcher goroutine fed by
// a bounded inbox. Producers never block: a full inbox drops the incoming
// sample and counts it.
type Engine struct {
	cfg   Config
	clk   clock.Clock
	tolNS int64

	mu      sync.Mutex
	buffers map[string]*buffer

	in  chan inbound
	out chan Tuple

	// Dedupe state is touched only by the matcher goroutine.
	seen  map[string]struct{}
	seenQ []string

	submitted atomic.Uint64
	matched   atomic.Uint64
	dropped   atomic.Uint64
	shed      atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEngine(cfg Config) *Engine {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySoftware
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.OutSize <= 0 {
		cfg.OutSize = defaultOutSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &Engine{
		cfg:     cfg,
		clk:     cfg.Clock,
		tolNS:   cfg.Tolerance.Nanoseconds(),
		buffers: make(map[string]*buffer),
		in:      make(chan inbound, cfg.QueueSize),
		out:     make(chan Tuple, cfg.OutSize),
		seen:    make(map[string]struct{}, dedupeCap),
	}
}

// AddStream registers a stream for alignment. Adding an existing stream is a
// no-op.
func (e *Engine) AddStream(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buffers[name]; !ok {
		e.buffers[name] = &buffer{cap: e.cfg.BufferSize}
	}
}

// RemoveStream drops a stream's buffer and its participation in future
// tuples. Tuples already emitted are not revoked.
func (e *Engine) RemoveStream(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.buffers, name)
}

// Streams lists registered streams in sorted order.
func (e *Engine) Streams() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.buffers))
	for name := range e.buffers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Submit queues one sample for matching and reports whether it was accepted.
// It never blocks: a full inbox rejects the sample.
func (e *Engine) Submit(stream string, es telemetry.EnrichedSample) bool {
	e.submitted.Add(1)
	select {
	case e.in <- inbound{stream: stream, sample: es, arrival: e.clk.NowNS()}:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Tuples exposes the emitted tuple stream. The channel is never closed.
func (e *Engine) Tuples() <-chan Tuple { return e.out }

// Start launches the matcher goroutine.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
	return nil
}

// Stop halts matching. Queued samples are discarded.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	streams := len(e.buffers)
	e.mu.Unlock()
	return Stats{
		Submitted:    e.submitted.Load(),
		Matched:      e.matched.Load(),
		DroppedInbox: e.dropped.Load(),
		ShedTuples:   e.shed.Load(),
		Streams:      streams,
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-e.in:
			e.match(in)
		}
	}
}

func (e *Engine) alignTS(in inbound) int64 {
	switch e.cfg.Strategy {
	case StrategyHardware:
		return in.sample.Timestamp
	case StrategyArrival:
		return in.arrival
	default:
		return in.sample.Ingested
	}
}

func (e *Engine) match(in inbound) {
	ts := e.alignTS(in)

	e.mu.Lock()
	buf, ok := e.buffers[in.stream]
	if !ok {
		e.mu.Unlock()
		return
	}
	buf.insert(entry{ts: ts, es: in.sample})

	samples := map[string]telemetry.EnrichedSample{in.stream: in.sample}
	lo, hi := ts, ts
	complete := len(e.buffers) >= 2
	for name, other := range e.buffers {
		if name == in.stream {
			continue
		}
		ent, hit := other.closest(ts, e.tolNS)
		if !hit {
			complete = false
			break
		}
		samples[name] = ent.es
		if ent.ts < lo {
			lo = ent.ts
		}
		if ent.ts > hi {
			hi = ent.ts
		}
	}
	e.mu.Unlock()

	if !complete {
		return
	}
	// Per-stream distances within tolerance do not bound the tuple itself:
	// two hits on opposite sides of the anchor can span up to twice the
	// tolerance, so the span is checked again.
	span := hi - lo
	if span > e.tolNS {
		return
	}

	key := in.stream + ":" + strconv.FormatInt(ts, 10)
	if _, dup := e.seen[key]; dup {
		return
	}
	e.remember(key)

	quality := 1 - float64(span)/float64(e.tolNS)
	if quality < 0 {
		quality = 0
	}
	tuple := Tuple{
		AnchorStream: in.stream,
		AnchorTS:     ts,
		Samples:      samples,
		Quality:      quality,
		SpanNS:       span,
		EmittedAt:    e.clk.NowNS(),
	}
	e.matched.Add(1)
	select {
	case e.out <- tuple:
	default:
		e.shed.Add(1)
		log.Debug().Str("stream", in.stream).Msg("sync tuple shed, consumer behind")
	}
}

func (e *Engine) remember(key string) {
	if len(e.seenQ) >= dedupeCap {
		delete(e.seen, e.seenQ[0])
		e.seenQ = e.seenQ[1:]
	}
	e.seen[key] = struct{}{}
	e.seenQ = append(e.seenQ, key)
}
