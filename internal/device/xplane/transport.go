package xplane

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
)

// maxDatagram bounds one UDP read. X-Plane datagrams are far smaller.
const maxDatagram = 8192

var _ session.Transport = (*UDPTransport)(nil)

// UDPTransport is a session.Transport over the simulator's UDP port. Open
// subscribes the dataref set at the configured pull rate; each received
// datagram is delivered as one frame.
type UDPTransport struct {
	address string
	rateHz  int

	mu     sync.Mutex
	conn   *net.UDPConn
	onMsg  func([]byte)
	onDown func(error)
	closed bool
	done   chan struct{}
}

// NewUDPTransport builds a transport for host:port. The pull rate is capped
// at 60 Hz.
func NewUDPTransport(address string, rateHz int) *UDPTransport {
	if rateHz <= 0 || rateHz > 60 {
		rateHz = 60
	}
	return &UDPTransport{address: address, rateHz: rateHz}
}

func (t *UDPTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMsg = fn
	t.mu.Unlock()
}

func (t *UDPTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onDown = fn
	t.mu.Unlock()
}

func (t *UDPTransport) Open(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", t.address)
	if err != nil {
		return fmt.Errorf("xplane resolve %s: %w", t.address, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("xplane dial %s: %w", t.address, err)
	}

	// Subscribe every dataref in index order.
	indices := make([]int, 0, len(Datarefs))
	for idx := range Datarefs {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		req, err := EncodeRREF(t.rateHz, idx, Datarefs[idx])
		if err != nil {
			conn.Close()
			return err
		}
		if _, err := conn.Write(req); err != nil {
			conn.Close()
			return fmt.Errorf("xplane subscribe: %w", err)
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()
	go t.readLoop(conn, done)
	log.Info().Str("addr", t.address).Int("rate_hz", t.rateHz).Int("datarefs", len(indices)).Msg("xplane subscribed")
	return nil
}

func (t *UDPTransport) Send(frame []byte) bool {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return false
	}
	_, err := conn.Write(frame)
	return err == nil
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	done := t.done

	// Unsubscribe by resubscribing at 0 Hz.
	for idx, path := range Datarefs {
		if req, err := EncodeRREF(0, idx, path); err == nil {
			conn.Write(req)
		}
	}
	t.mu.Unlock()

	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

func (t *UDPTransport) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxDatagram)
	var cause error
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.mu.Lock()
			expected := t.closed
			t.mu.Unlock()
			if !expected {
				cause = err
			}
			break
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.mu.Lock()
		fn := t.onMsg
		t.mu.Unlock()
		if fn != nil {
			fn(frame)
		}
	}

	t.mu.Lock()
	t.closed = true
	fn := t.onDown
	t.mu.Unlock()
	if fn != nil {
		fn(cause)
	}
}
