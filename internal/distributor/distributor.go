// Package distributor fans frames out to external consumers over a typed
// topic bus. Subscriptions hold bounded queues: best-effort topics drop to
// slow consumers, guaranteed topics queue to a high-watermark and then close
// the subscription. Egress sinks mirror published frames out of process.
package distributor

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
)

var (
	ErrNoTopics       = errors.New("subscription needs at least one topic")
	ErrTooManyClients = errors.New("max clients reached")
	ErrUnknownSub     = errors.New("unknown subscription")
	ErrClosed         = errors.New("distributor closed")
)

// Reliability selects the delivery contract for one publish.
type Reliability int

const (
	// BestEffort drops the frame for subscribers whose queue is full.
	BestEffort Reliability = iota
	// Guaranteed queues to the high-watermark, then closes the subscription
	// as a slow consumer.
	Guaranteed
)

// CloseReason explains why a subscription ended.
type CloseReason string

const (
	ReasonUnsubscribed CloseReason = "unsubscribed"
	ReasonSlowConsumer CloseReason = "slow-consumer"
	ReasonShutdown     CloseReason = "shutdown"
)

// Frame is one delivered message. Payload bytes are shared between
// subscribers and must be treated as read-only.
type Frame struct {
	Topic       string  `json:"topic"`
	Payload     []byte  `json:"payload"`
	ContentType string  `json:"content_type"`
	Quality     float64 `json:"quality"`
	Priority    int     `json:"priority"`
	Compressed  bool    `json:"compressed"`
	Sequence    uint64  `json:"sequence"`
	PublishedAt int64   `json:"published_at"`
}

// Options tunes one publish call.
type Options struct {
	Priority    int
	Reliability Reliability
	Compress    bool
}

// SubStats is the per-subscription delivery ledger.
type SubStats struct {
	Frames         uint64
	Bytes          uint64
	Drops          uint64
	LastDeliveryNS int64
}

// Subscription is one consumer's handle: a bounded frame channel plus the
// token used to unsubscribe.
type Subscription struct {
	ID         string
	ClientID   string
	Topics     []string
	MinQuality float64

	ch     chan Frame
	frames atomic.Uint64
	bytes  atomic.Uint64
	drops  atomic.Uint64
	lastNS atomic.Int64

	closeOnce sync.Once
	reason    CloseReason
}

// Frames is the delivery channel. It closes when the subscription ends.
func (s *Subscription) Frames() <-chan Frame { return s.ch }

// Reason reports why the subscription closed, empty while live.
func (s *Subscription) Reason() CloseReason { return s.reason }

func (s *Subscription) Stats() SubStats {
	return SubStats{
		Frames:         s.frames.Load(),
		Bytes:          s.bytes.Load(),
		Drops:          s.drops.Load(),
		LastDeliveryNS: s.lastNS.Load(),
	}
}

func (s *Subscription) close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.ch)
	})
}

// matches reports whether a topic falls under the subscription. Patterns are
// exact names or "prefix.*".
func (s *Subscription) matches(topic string) bool {
	for _, t := range s.Topics {
		if t == topic {
			return true
		}
		if prefix, ok := strings.CutSuffix(t, ".*"); ok && strings.HasPrefix(topic, prefix+".") {
			return true
		}
	}
	return false
}

// Config tunes the distributor.
type Config struct {
	MaxClients int // default 64
	// HighWatermark is the per-subscription queue capacity. Default 1024.
	HighWatermark int
	// Compression enables gzip for publishes that ask for it.
	Compression bool
	Sinks       []Sink
	Clock       clock.Clock
	// OnClose observes subscription closures (slow consumers included).
	OnClose func(sub *Subscription, reason CloseReason)
}

// Stats is a distributor-wide snapshot.
type Stats struct {
	Published     uint64
	Delivered     uint64
	Dropped       uint64
	Filtered      uint64
	SlowConsumers uint64
	SinkErrors    uint64
	Subscriptions int
}

// Distributor is the typed topic bus. Subscriber lists are copy-on-write;
// publishers iterate a snapshot and never hold the lock across deliveries.
type Distributor struct {
	cfg Config
	clk clock.Clock

	mu   sync.Mutex
	subs []*Subscription
	seq  uint64

	published  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	filtered   atomic.Uint64
	slow       atomic.Uint64
	sinkErrors atomic.Uint64
	closed     atomic.Bool
}

func New(cfg Config) *Distributor {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 64
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &Distributor{cfg: cfg, clk: cfg.Clock}
}

// Subscribe registers a consumer for a topic set. Frames below minQuality
// are filtered out before delivery.
func (d *Distributor) Subscribe(topics []string, clientID string, minQuality float64) (*Subscription, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	sub := &Subscription{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		Topics:     append([]string(nil), topics...),
		MinQuality: minQuality,
		ch:         make(chan Frame, d.cfg.HighWatermark),
	}

	d.mu.Lock()
	if len(d.subs) >= d.cfg.MaxClients {
		d.mu.Unlock()
		return nil, ErrTooManyClients
	}
	next := make([]*Subscription, len(d.subs), len(d.subs)+1)
	copy(next, d.subs)
	d.subs = append(next, sub)
	d.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a subscription by token and closes its channel.
func (d *Distributor) Unsubscribe(id string) error {
	sub, err := d.remove(id)
	if err != nil {
		return err
	}
	sub.close(ReasonUnsubscribed)
	return nil
}

func (d *Distributor) remove(id string) (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.ID == id {
			next := make([]*Subscription, 0, len(d.subs)-1)
			next = append(next, d.subs[:i]...)
			next = append(next, d.subs[i+1:]...)
			d.subs = next
			return s, nil
		}
	}
	return nil, ErrUnknownSub
}

// Publish delivers a payload to every matching subscription and mirrors it
// to the egress sinks. Sink failures are counted, never propagated.
func (d *Distributor) Publish(topic string, quality float64, payload []byte, opts Options) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.published.Add(1)

	compressed := false
	if opts.Compress && d.cfg.Compression {
		if gz, err := gzipBytes(payload); err == nil && len(gz) < len(payload) {
			payload = gz
			compressed = true
		}
	}

	d.mu.Lock()
	subs := d.subs
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	frame := Frame{
		Topic:       topic,
		Payload:     payload,
		ContentType: "application/json",
		Quality:     quality,
		Priority:    opts.Priority,
		Compressed:  compressed,
		Sequence:    seq,
		PublishedAt: d.clk.NowNS(),
	}

	var evict []*Subscription
	for _, sub := range subs {
		if !sub.matches(topic) {
			continue
		}
		if quality < sub.MinQuality {
			d.filtered.Add(1)
			continue
		}
		select {
		case sub.ch <- frame:
			sub.frames.Add(1)
			sub.bytes.Add(uint64(len(payload)))
			sub.lastNS.Store(frame.PublishedAt)
			d.delivered.Add(1)
		default:
			if opts.Reliability == Guaranteed {
				evict = append(evict, sub)
			} else {
				sub.drops.Add(1)
				d.dropped.Add(1)
			}
		}
	}
	for _, sub := range evict {
		if _, err := d.remove(sub.ID); err == nil {
			d.slow.Add(1)
			sub.close(ReasonSlowConsumer)
			log.Warn().Str("client", sub.ClientID).Str("sub", sub.ID).Msg("closing slow consumer")
			if d.cfg.OnClose != nil {
				d.cfg.OnClose(sub, ReasonSlowConsumer)
			}
		}
	}

	for _, sink := range d.cfg.Sinks {
		if err := sink.Publish(topic, frame); err != nil {
			d.sinkErrors.Add(1)
			log.Debug().Err(err).Str("topic", topic).Msg("sink publish failed")
		}
	}
	return nil
}

// Close ends every subscription and closes the sinks.
func (d *Distributor) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()
	for _, sub := range subs {
		sub.close(ReasonShutdown)
	}
	for _, sink := range d.cfg.Sinks {
		if err := sink.Close(); err != nil {
			log.Debug().Err(err).Msg("sink close failed")
		}
	}
}

func (d *Distributor) Stats() Stats {
	d.mu.Lock()
	n := len(d.subs)
	d.mu.Unlock()
	return Stats{
		Published:     d.published.Load(),
		Delivered:     d.delivered.Load(),
		Dropped:       d.dropped.Load(),
		Filtered:      d.filtered.Load(),
		SlowConsumers: d.slow.Load(),
		SinkErrors:    d.sinkErrors.Load(),
		Subscriptions: n,
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GunzipPayload inflates a compressed frame payload.
func GunzipPayload(f Frame) ([]byte, error) {
	if !f.Compressed {
		return f.Payload, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(f.Payload))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gz); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
