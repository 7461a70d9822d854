package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxFrameBytes caps a single protocol frame. Oversize frames are a protocol
// error and fail the session without reconnect.
const MaxFrameBytes = 1 << 20

var (
	// ErrFrameTooLarge marks an oversize frame; wrapped by ErrProtocol.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrProtocol)
	// ErrProtocol marks malformed or out-of-contract wire data. Sessions
	// treat it as fatal: no reconnect is scheduled.
	ErrProtocol = errors.New("protocol error")
	// ErrTransportClosed is returned from operations on a closed transport.
	ErrTransportClosed = errors.New("transport closed")
)

// Transport is the byte-level link a session owns. Implementations call the
// registered message handler from their own read goroutine and the close
// handler exactly once when the link drops, passing the causing error (nil on
// orderly close).
type Transport interface {
	Open(ctx context.Context) error
	Send(frame []byte) bool
	OnMessage(fn func(frame []byte))
	OnClose(fn func(err error))
	Close() error
}

// Framing splits a byte stream into protocol frames and writes frames back.
// ReadFrame returns the next whole frame; implementations buffer partial
// reads and must return an error wrapping ErrProtocol for oversize or
// malformed frames.
type Framing interface {
	ReadFrame(r *bufio.Reader) ([]byte, error)
	WriteFrame(w io.Writer, frame []byte) error
}

// LineFraming delimits frames by newline, for JSON-lines protocols. The
// trailing newline is stripped from reads and appended on writes.
type LineFraming struct{}

func (LineFraming) ReadFrame(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > MaxFrameBytes {
			return nil, ErrFrameTooLarge
		}
		if err == nil {
			return bytes.TrimRight(buf, "\r\n"), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return nil, err
	}
}

func (LineFraming) WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// LengthPrefixFraming prefixes each frame with its byte length as u32
// little-endian.
type LengthPrefixFraming struct{}

func (LengthPrefixFraming) ReadFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	if size > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (LengthPrefixFraming) WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// TCPConfig tunes a TCPTransport. Zero values get defaults.
type TCPConfig struct {
	Address        string
	Framing        Framing       // default LineFraming
	ConnectTimeout time.Duration // default 5s
	ReadTimeout    time.Duration // per-frame read deadline, default 30s
	WriteTimeout   time.Duration // default 5s
}

// TCPTransport is a framed stream over a TCP connection. One read goroutine
// delivers frames to the message handler; a read error or remote close fires
// the close handler once.
type TCPTransport struct {
	cfg TCPConfig

	mu     sync.Mutex
	conn   net.Conn
	onMsg  func([]byte)
	onDown func(error)
	closed bool
	done   chan struct{}
}

func NewTCPTransport(cfg TCPConfig) *TCPTransport {
	if cfg.Framing == nil {
		cfg.Framing = LineFraming{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &TCPTransport{cfg: cfg}
}

func (t *TCPTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMsg = fn
	t.mu.Unlock()
}

func (t *TCPTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onDown = fn
	t.mu.Unlock()
}

func (t *TCPTransport) Open(ctx context.Context) error {
	dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.Address, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()
	go t.readLoop(conn, done)
	return nil
}

// Send writes one frame and reports success. It never blocks beyond the
// write deadline.
func (t *TCPTransport) Send(frame []byte) bool {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := t.cfg.Framing.WriteFrame(conn, frame); err != nil {
		log.Debug().Err(err).Str("addr", t.cfg.Address).Msg("tcp send failed")
		return false
	}
	return true
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

func (t *TCPTransport) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	r := bufio.NewReaderSize(conn, 64*1024)
	var cause error
	for {
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
		frame, err := t.cfg.Framing.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				cause = err
			}
			break
		}
		t.mu.Lock()
		fn := t.onMsg
		t.mu.Unlock()
		if fn != nil {
			fn(frame)
		}
	}

	t.mu.Lock()
	expected := t.closed
	t.closed = true
	fn := t.onDown
	t.mu.Unlock()
	_ = conn.Close()
	if fn != nil {
		if expected {
			fn(nil)
		} else {
			fn(cause)
		}
	}
}
