package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/quality"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

var (
	ErrNodeRunning  = errors.New("stream node already running")
	ErrDuplicateSub = errors.New("duplicate subscriber id")
	ErrUnknownSub   = errors.New("unknown subscriber id")
)

// Processor is one stage of a node's ordered chain. An error aborts the
// pipeline for that sample only.
type Processor interface {
	Name() string
	Process(s telemetry.Sample) (telemetry.Sample, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc struct {
	ID string
	Fn func(telemetry.Sample) (telemetry.Sample, error)
}

func (p ProcessorFunc) Name() string { return p.ID }

func (p ProcessorFunc) Process(s telemetry.Sample) (telemetry.Sample, error) { return p.Fn(s) }

// EventType classifies node diagnostics.
type EventType string

const (
	EventBackpressure      EventType = "backpressure"
	EventError             EventType = "error"
	EventDegraded          EventType = "degraded"
	EventRecovered         EventType = "recovered"
	EventSubscriberDropped EventType = "subscriber-dropped"
)

// Event is a node diagnostic, delivered to the configured hook on the
// processing goroutine.
type Event struct {
	Type   EventType
	Node   string
	Detail string
	Err    error
	At     int64
}

// Degradation window: a node is degraded when more than half of the last
// outcomeWindow samples errored; no judgement before minOutcomes samples.
const (
	outcomeWindow = 200
	minOutcomes   = 20
)

// NodeConfig configures a stream node. Zero values get defaults.
type NodeConfig struct {
	Name             string
	BufferSize       int           // input queue capacity, default 256
	RingSize         int           // history ring capacity, default 1000
	Window           time.Duration // history admission window, default 10s
	SubscriberBuffer int           // per-subscriber queue, default 64
	Processors       []Processor
	Assessor         *quality.Assessor // nil skips quality annotation
	Clock            clock.Clock
	OnEvent          func(Event)
}

type subscriber struct {
	id string
	ch chan telemetry.EnrichedSample
}

// Node ingests raw samples for one (source, type) stream, runs the processor
// chain, annotates quality and fans the result out to its ring buffer and
// subscribers. The producer never blocks: when the input queue is full the
// oldest queued sample is dropped.
type Node struct {
	cfg  NodeConfig
	clk  clock.Clock
	in   chan telemetry.Sample
	ring *Ring

	mu   sync.RWMutex
	subs []*subscriber

	outMu    sync.Mutex
	outcomes [outcomeWindow]bool
	outIdx   int
	outLen   int
	outErrs  int

	seq       atomic.Uint64
	processed atomic.Uint64
	drops     atomic.Uint64
	errs      atomic.Uint64
	degraded  atomic.Bool
	running   atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewNode(cfg NodeConfig) *Node {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 1000
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &Node{
		cfg:  cfg,
		clk:  cfg.Clock,
		in:   make(chan telemetry.Sample, cfg.BufferSize),
		ring: NewRing(cfg.Clock, cfg.RingSize, cfg.Window),
	}
}

// Name returns the node's stream name.
func (n *Node) Name() string { return n.cfg.Name }

// Ring exposes the node's history buffer.
func (n *Node) Ring() *Ring { return n.ring }

// Start launches the processing goroutine.
func (n *Node) Start(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrNodeRunning
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.run(ctx)
	return nil
}

// Stop halts processing. Queued samples are discarded.
func (n *Node) Stop() {
	if !n.running.CompareAndSwap(true, false) {
		return
	}
	n.cancel()
	<-n.done
}

// Process enqueues a raw sample without ever blocking the producer. When the
// queue is full the oldest queued sample is dropped and counted.
func (n *Node) Process(s telemetry.Sample) {
	select {
	case n.in <- s:
		return
	default:
	}
	// Queue full: drop the oldest, then retry once. The retry can still lose
	// a race against other producers; the sample is dropped in that case.
	select {
	case <-n.in:
		n.noteDrop("queue full, dropped oldest")
	default:
	}
	select {
	case n.in <- s:
	default:
		n.noteDrop("queue full, dropped incoming")
	}
}

// Subscribe registers a consumer. The returned channel is never closed; a
// subscriber that falls behind its buffer is removed from the node.
func (n *Node) Subscribe(id string) (<-chan telemetry.EnrichedSample, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		if s.id == id {
			return nil, ErrDuplicateSub
		}
	}
	sub := &subscriber{id: id, ch: make(chan telemetry.EnrichedSample, n.cfg.SubscriberBuffer)}
	next := make([]*subscriber, len(n.subs), len(n.subs)+1)
	copy(next, n.subs)
	n.subs = append(next, sub)
	return sub.ch, nil
}

// Unsubscribe removes a consumer.
func (n *Node) Unsubscribe(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s.id == id {
			next := make([]*subscriber, 0, len(n.subs)-1)
			next = append(next, n.subs[:i]...)
			next = append(next, n.subs[i+1:]...)
			n.subs = next
			return nil
		}
	}
	return ErrUnknownSub
}

// NodeStats is a point-in-time snapshot of node health.
type NodeStats struct {
	Processed   uint64
	Dropped     uint64
	Errors      uint64
	Degraded    bool
	Subscribers int
	RingLen     int
}

func (n *Node) Stats() NodeStats {
	n.mu.RLock()
	subs := len(n.subs)
	n.mu.RUnlock()
	return NodeStats{
		Processed:   n.processed.Load(),
		Dropped:     n.drops.Load(),
		Errors:      n.errs.Load(),
		Degraded:    n.degraded.Load(),
		Subscribers: subs,
		RingLen:     n.ring.Len(),
	}
}

func (n *Node) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-n.in:
			n.handle(s)
		}
	}
}

func (n *Node) handle(s telemetry.Sample) {
	for _, p := range n.cfg.Processors {
		var err error
		s, err = p.Process(s)
		if err != nil {
			n.errs.Add(1)
			n.recordOutcome(false)
			n.emit(Event{Type: EventError, Node: n.cfg.Name, Detail: p.Name(), Err: err, At: n.clk.NowNS()})
			return
		}
	}

	es := telemetry.EnrichedSample{Sample: s, Sequence: n.seq.Add(1)}
	if n.cfg.Assessor != nil {
		es.Quality = n.cfg.Assessor.Assess(s, n.clk.NowNS())
	}

	n.ring.Insert(es)
	n.fanout(es)
	n.processed.Add(1)
	n.recordOutcome(true)
}

func (n *Node) fanout(es telemetry.EnrichedSample) {
	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()

	var evict []string
	for _, sub := range subs {
		select {
		case sub.ch <- es:
		default:
			evict = append(evict, sub.id)
		}
	}
	for _, id := range evict {
		if err := n.Unsubscribe(id); err == nil {
			log.Warn().Str("node", n.cfg.Name).Str("subscriber", id).Msg("dropping slow subscriber")
			n.emit(Event{Type: EventSubscriberDropped, Node: n.cfg.Name, Detail: id, At: n.clk.NowNS()})
		}
	}
}

func (n *Node) recordOutcome(ok bool) {
	n.outMu.Lock()
	if n.outLen == outcomeWindow {
		if !n.outcomes[n.outIdx] {
			n.outErrs--
		}
	} else {
		n.outLen++
	}
	n.outcomes[n.outIdx] = ok
	if !ok {
		n.outErrs++
	}
	n.outIdx = (n.outIdx + 1) % outcomeWindow
	frac := 0.0
	if n.outLen > 0 {
		frac = float64(n.outErrs) / float64(n.outLen)
	}
	judged := n.outLen >= minOutcomes
	n.outMu.Unlock()

	if !judged {
		return
	}
	if frac > 0.5 {
		if n.degraded.CompareAndSwap(false, true) {
			n.emit(Event{Type: EventDegraded, Node: n.cfg.Name, At: n.clk.NowNS()})
		}
	} else if n.degraded.CompareAndSwap(true, false) {
		n.emit(Event{Type: EventRecovered, Node: n.cfg.Name, At: n.clk.NowNS()})
	}
}

func (n *Node) noteDrop(detail string) {
	n.drops.Add(1)
	n.emit(Event{Type: EventBackpressure, Node: n.cfg.Name, Detail: detail, At: n.clk.NowNS()})
}

func (n *Node) emit(e Event) {
	if n.cfg.OnEvent != nil {
		n.cfg.OnEvent(e)
	}
}
