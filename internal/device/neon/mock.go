package neon

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// MockDeviceConfig tunes the simulated eye tracker.
type MockDeviceConfig struct {
	DeviceName string
	GazeRateHz float64 // default 200
	Address    string  // listen address, default 127.0.0.1:0
}

// MockDevice is an in-process Neon device: the control API on mux routes and
// a /websocket endpoint streaming deterministic gaze. Used in mock mode and
// in tests.
type MockDevice struct {
	cfg      MockDeviceConfig
	id       string
	upgrader websocket.Upgrader

	mu          sync.Mutex
	recording   bool
	calibrating bool
	calibrated  bool

	server *http.Server
	ln     net.Listener
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMockDevice(cfg MockDeviceConfig) *MockDevice {
	if cfg.GazeRateHz <= 0 {
		cfg.GazeRateHz = 200
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "Neon Mock"
	}
	return &MockDevice{
		cfg:      cfg,
		id:       uuid.NewString(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
}

// ID returns the synthetic device id.
func (d *MockDevice) ID() string { return d.id }

// Address returns the bound host:port, valid after Start.
func (d *MockDevice) Address() string { return d.ln.Addr().String() }

// Start binds the listener and serves until Stop.
func (d *MockDevice) Start() error {
	ln, err := net.Listen("tcp", d.cfg.Address)
	if err != nil {
		return fmt.Errorf("mock neon listen: %w", err)
	}
	d.ln = ln
	d.ctx, d.cancel = context.WithCancel(context.Background())

	r := mux.NewRouter()
	r.HandleFunc("/status", d.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/recording/start", d.handleRecording(true)).Methods(http.MethodPost)
	r.HandleFunc("/recording/stop", d.handleRecording(false)).Methods(http.MethodPost)
	r.HandleFunc("/calibration/start", d.handleCalibration(true)).Methods(http.MethodPost)
	r.HandleFunc("/calibration/stop", d.handleCalibration(false)).Methods(http.MethodPost)
	r.HandleFunc("/websocket", d.handleStream)

	d.server = &http.Server{Handler: r}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("mock neon server")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Float64("rate_hz", d.cfg.GazeRateHz).Msg("mock neon device up")
	return nil
}

// Stop shuts the server down and waits for stream goroutines.
func (d *MockDevice) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		d.server.Shutdown(ctx)
		cancel()
	}
	d.wg.Wait()
}

func (d *MockDevice) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	st := Status{
		DeviceID:    d.id,
		DeviceName:  d.cfg.DeviceName,
		Worn:        true,
		BatteryPct:  87,
		Recording:   d.recording,
		Calibrated:  d.calibrated,
		GazeRateHz:  d.cfg.GazeRateHz,
		APIVersion:  "2.0",
		WorldCamera: true,
	}
	d.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (d *MockDevice) handleRecording(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.recording = on
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (d *MockDevice) handleCalibration(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.calibrating = on
		if !on {
			d.calibrated = true
		}
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (d *MockDevice) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer conn.Close()
		d.stream(conn)
	}()
}

func (d *MockDevice) stream(conn *websocket.Conn) {
	period := time.Duration(float64(time.Second) / d.cfg.GazeRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := json.Marshal(Message{
			Topic: TopicGaze,
			Data:  mustRaw(MockGaze(seq, uint64(time.Now().UnixNano()))),
		})
		if err != nil {
			return
		}
		seq++
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// MockGaze generates the deterministic gaze reading for one sequence number:
// a smooth lissajous scan with constant confidence.
func MockGaze(seq, timestampNS uint64) Gaze {
	t := float64(seq) / 200
	var g Gaze
	g.TimestampNS = timestampNS
	g.X = 0.5 + 0.3*math.Sin(2*math.Pi*0.25*t)
	g.Y = 0.5 + 0.2*math.Sin(2*math.Pi*0.33*t+math.Pi/4)
	g.Confidence = 0.95
	g.Worn = true
	g.EyeStates.Left.Center.X = g.X - 0.03
	g.EyeStates.Left.Center.Y = g.Y
	g.EyeStates.Left.PupilDiameterMM = 3.5 + 0.5*math.Sin(2*math.Pi*0.05*t)
	g.EyeStates.Right.Center.X = g.X + 0.03
	g.EyeStates.Right.Center.Y = g.Y
	g.EyeStates.Right.PupilDiameterMM = 3.6 + 0.5*math.Sin(2*math.Pi*0.05*t)
	return g
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
