package session

import (
	"context"
	"sync"
	"time"
)

// Generator produces the deterministic frame for one tick of a mock device.
// It must be a pure function of the sequence number so test runs replay
// identically.
type Generator func(seq uint64) []byte

// MockConfig tunes a mock transport. Rate defaults to 30 Hz, the aircraft
// telemetry default; eye trackers configure 200.
type MockConfig struct {
	RateHz    float64
	Generator Generator
	// FailOpens makes the first N Open calls fail, for reconnect tests.
	FailOpens int
}

// MockTransport is an in-process Transport producing generated frames at a
// fixed rate. It stands in for a real device in mock mode and in tests.
type MockTransport struct {
	cfg MockConfig

	mu        sync.Mutex
	onMsg     func([]byte)
	onDown    func(error)
	open      bool
	opens     int
	sent      [][]byte
	seq       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	openTimes []time.Time
}

func NewMockTransport(cfg MockConfig) *MockTransport {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 30
	}
	return &MockTransport{cfg: cfg}
}

func (m *MockTransport) OnMessage(fn func([]byte)) {
	m.mu.Lock()
	m.onMsg = fn
	m.mu.Unlock()
}

func (m *MockTransport) OnClose(fn func(error)) {
	m.mu.Lock()
	m.onDown = fn
	m.mu.Unlock()
}

func (m *MockTransport) Open(ctx context.Context) error {
	m.mu.Lock()
	m.opens++
	m.openTimes = append(m.openTimes, time.Now())
	if m.opens <= m.cfg.FailOpens {
		m.mu.Unlock()
		return ErrTransportClosed
	}
	if m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = true
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()
	go m.run(runCtx, done)
	return nil
}

func (m *MockTransport) Send(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return false
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.sent = append(m.sent, cp)
	return true
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	cancel, done := m.cancel, m.done
	fn := m.onDown
	m.mu.Unlock()

	cancel()
	<-done
	if fn != nil {
		fn(nil)
	}
	return nil
}

// Drop simulates a transport failure: generation stops and the close handler
// fires with the given error.
func (m *MockTransport) Drop(err error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	cancel, done := m.cancel, m.done
	fn := m.onDown
	m.mu.Unlock()

	cancel()
	<-done
	if fn != nil {
		fn(err)
	}
}

// Opens reports how many times Open was called.
func (m *MockTransport) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// OpenTimes returns the wall times of every Open call, for backoff tests.
func (m *MockTransport) OpenTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.openTimes))
	copy(out, m.openTimes)
	return out
}

// Sent returns every frame written through the transport.
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockTransport) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	if m.cfg.Generator == nil {
		<-ctx.Done()
		return
	}
	period := time.Duration(float64(time.Second) / m.cfg.RateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			seq := m.seq
			m.seq++
			fn := m.onMsg
			m.mu.Unlock()
			if fn != nil {
				fn(m.cfg.Generator(seq))
			}
		}
	}
}
