package neon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/session"
)

// Status is the device's control API health report.
type Status struct {
	DeviceID    string  `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	Worn        bool    `json:"worn"`
	BatteryPct  float64 `json:"battery_pct"`
	Recording   bool    `json:"recording"`
	Calibrated  bool    `json:"calibrated"`
	GazeRateHz  float64 `json:"gaze_rate_hz"`
	APIVersion  string  `json:"api_version"`
	SerialNo    string  `json:"serial,omitempty"`
	WorldCamera bool    `json:"world_camera"`
}

// Client drives the HTTP control API on port 8080.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a control client for host:port, e.g. "192.168.1.40:8080".
func NewClient(address string) *Client {
	return &Client{
		baseURL: "http://" + address,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// GetStatus fetches the device status.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("neon status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("neon status: http %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("neon status decode: %w", err)
	}
	return st, nil
}

// StartRecording begins an on-device recording.
func (c *Client) StartRecording(ctx context.Context) error {
	return c.post(ctx, "/recording/start")
}

// StopRecording ends the current recording.
func (c *Client) StopRecording(ctx context.Context) error {
	return c.post(ctx, "/recording/stop")
}

// StartCalibration begins gaze calibration.
func (c *Client) StartCalibration(ctx context.Context) error {
	return c.post(ctx, "/calibration/start")
}

// StopCalibration ends gaze calibration.
func (c *Client) StopCalibration(ctx context.Context) error {
	return c.post(ctx, "/calibration/stop")
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("neon %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("neon %s: http %d", path, resp.StatusCode)
	}
	return nil
}

// StreamTransport is a session.Transport over the device websocket. Each
// delivered frame is one JSON topic message.
type StreamTransport struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	onMsg  func([]byte)
	onDown func(error)
	closed bool
	done   chan struct{}
}

// NewStreamTransport builds a websocket transport for host:port.
func NewStreamTransport(address string) *StreamTransport {
	return &StreamTransport{url: "ws://" + address + "/websocket"}
}

func (t *StreamTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMsg = fn
	t.mu.Unlock()
}

func (t *StreamTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	t.onDown = fn
	t.mu.Unlock()
}

func (t *StreamTransport) Open(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("neon websocket dial %s: %w", t.url, err)
	}
	conn.SetReadLimit(session.MaxFrameBytes)
	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()
	go t.readLoop(conn, done)
	return nil
}

func (t *StreamTransport) Send(frame []byte) bool {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Debug().Err(err).Str("url", t.url).Msg("neon send failed")
		return false
	}
	return true
}

func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

func (t *StreamTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	var cause error
	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
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
	conn.Close()
	if fn != nil {
		if expected {
			fn(nil)
		} else {
			fn(cause)
		}
	}
}
