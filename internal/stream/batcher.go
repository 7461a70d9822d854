package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
)

var ErrBatcherRunning = errors.New("batcher already running")

// BatchFunc consumes one drained batch. It runs on the batcher's tick
// goroutine, so it must not block for long.
type BatchFunc[T any] func(items []T)

// BatcherConfig tunes the adaptive batcher. Zero values get defaults sized
// for a 200 Hz stream.
type BatcherConfig struct {
	MaxBatchSize  int           // default 32
	Interval      time.Duration // tick period, default 5ms
	TargetLatency time.Duration // mean in-queue latency target, default 10ms
	QueueCap      int           // default 1024
	Clock         clock.Clock
}

// BatcherStats is a snapshot of batcher throughput.
type BatcherStats struct {
	Batches      uint64
	Items        uint64
	Dropped      uint64
	AvgBatch     float64
	AvgLatencyMS float64
	CurrentSize  int
}

type queued[T any] struct {
	item T
	at   int64
}

// AdaptiveBatcher coalesces a high-rate stream into batches whose size
// tracks a latency target: when the observed mean in-queue latency exceeds
// the target the batch size shrinks by one, and when it stays below half the
// target it grows by one.
type AdaptiveBatcher[T any] struct {
	cfg BatcherConfig
	fn  BatchFunc[T]
	clk clock.Clock

	mu        sync.Mutex
	queue     []queued[T]
	batchSize int

	batches uint64
	items   uint64
	dropped uint64
	latEMA  float64 // EMA of per-batch mean latency, alpha 0.1

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewAdaptiveBatcher[T any](cfg BatcherConfig, fn BatchFunc[T]) *AdaptiveBatcher[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Millisecond
	}
	if cfg.TargetLatency <= 0 {
		cfg.TargetLatency = 10 * time.Millisecond
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &AdaptiveBatcher[T]{
		cfg:       cfg,
		fn:        fn,
		clk:       cfg.Clock,
		batchSize: cfg.MaxBatchSize,
	}
}

// Submit queues one item, dropping the oldest queued item when the queue is
// full. It never blocks and reports whether the item was accepted.
func (b *AdaptiveBatcher[T]) Submit(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.cfg.QueueCap {
		copy(b.queue, b.queue[1:])
		b.queue = b.queue[:len(b.queue)-1]
		b.dropped++
	}
	b.queue = append(b.queue, queued[T]{item: item, at: b.clk.NowNS()})
	return true
}

// Start launches the tick goroutine.
func (b *AdaptiveBatcher[T]) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrBatcherRunning
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.run(ctx)
	return nil
}

// Stop halts ticking and flushes whatever is queued.
func (b *AdaptiveBatcher[T]) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.cancel()
	<-b.done
	b.flushAll()
}

// Stats returns a snapshot of throughput counters.
func (b *AdaptiveBatcher[T]) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	avgBatch := 0.0
	if b.batches > 0 {
		avgBatch = float64(b.items) / float64(b.batches)
	}
	return BatcherStats{
		Batches:      b.batches,
		Items:        b.items,
		Dropped:      b.dropped,
		AvgBatch:     avgBatch,
		AvgLatencyMS: b.latEMA,
		CurrentSize:  b.batchSize,
	}
}

func (b *AdaptiveBatcher[T]) run(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *AdaptiveBatcher[T]) tick() {
	now := b.clk.NowNS()

	b.mu.Lock()
	n := b.batchSize
	if n > len(b.queue) {
		n = len(b.queue)
	}
	if n == 0 {
		b.mu.Unlock()
		return
	}
	drained := b.queue[:n]
	items := make([]T, n)
	latSum := int64(0)
	for i, q := range drained {
		items[i] = q.item
		latSum += now - q.at
	}
	b.queue = append(b.queue[:0], b.queue[n:]...)

	meanLat := time.Duration(latSum / int64(n))
	switch {
	case meanLat > b.cfg.TargetLatency && b.batchSize > 1:
		b.batchSize--
	case meanLat < b.cfg.TargetLatency/2 && b.batchSize < b.cfg.MaxBatchSize:
		b.batchSize++
	}

	b.batches++
	b.items += uint64(n)
	meanMS := float64(meanLat) / float64(time.Millisecond)
	if b.batches == 1 {
		b.latEMA = meanMS
	} else {
		b.latEMA = 0.9*b.latEMA + 0.1*meanMS
	}
	b.mu.Unlock()

	b.fn(items)
}

func (b *AdaptiveBatcher[T]) flushAll() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		n := b.batchSize
		if n > len(b.queue) {
			n = len(b.queue)
		}
		items := make([]T, n)
		for i, q := range b.queue[:n] {
			items[i] = q.item
		}
		b.queue = append(b.queue[:0], b.queue[n:]...)
		b.batches++
		b.items += uint64(n)
		b.mu.Unlock()

		b.fn(items)
	}
}
