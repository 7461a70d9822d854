package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

var (
	// ErrDisconnecting rejects a Connect racing an in-progress Disconnect.
	ErrDisconnecting = errors.New("session disconnecting")
)

// CommandMapper translates a device-bound command into protocol frames.
// Unsupported actions return ErrUnsupportedCommand.
type CommandMapper interface {
	Map(cmd telemetry.Command) ([][]byte, error)
}

// ErrUnsupportedCommand is returned by mappers for unmapped actions.
var ErrUnsupportedCommand = errors.New("unsupported command")

// ReconnectConfig controls the backoff schedule after transport loss.
type ReconnectConfig struct {
	Enabled     bool
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultReconnect returns the production backoff settings.
func DefaultReconnect() ReconnectConfig {
	return ReconnectConfig{
		Enabled:     true,
		Base:        5 * time.Second,
		Max:         30 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 10,
	}
}

// Config assembles one device session. Transport is required; zero durations
// get defaults.
type Config struct {
	DeviceID  string
	Transport Transport
	Reconnect ReconnectConfig

	// HeartbeatInterval is the supervision period T: silence for 2·T counts
	// as a heartbeat miss and drops the link. Default 5s.
	HeartbeatInterval time.Duration
	// HeartbeatFrame, when set, is sent every interval to solicit traffic.
	HeartbeatFrame []byte
	ConnectTimeout time.Duration // default 5s
	// DrainTimeout bounds how long Disconnect waits for the heartbeat task
	// before force-closing the transport. Default 2s.
	DrainTimeout time.Duration

	Mapper  CommandMapper
	Clock   clock.Clock
	OnFrame func(frame []byte)
	OnState func(tr Transition)
}

// Stats is a point-in-time snapshot of session health.
type Stats struct {
	State         State
	Attempts      int
	Reconnects    uint64
	FramesIn      uint64
	FramesOut     uint64
	LastTrafficNS int64
}

// Session drives one device link through the connection state machine. It
// exclusively owns its transport and the heartbeat goroutine; at most one
// reconnect timer exists at any time, and Disconnect cancels it.
type Session struct {
	cfg Config
	clk clock.Clock

	mu          sync.Mutex
	state       State
	attempts    int
	lastTraffic int64
	reconnects  uint64
	framesIn    uint64
	framesOut   uint64
	retryTimer  *time.Timer
	hbStop      chan struct{}
	hbDone      chan struct{}
	generation  uint64
}

func New(cfg Config) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	s := &Session{cfg: cfg, clk: cfg.Clock, state: StateDisconnected}
	cfg.Transport.OnMessage(s.handleFrame)
	cfg.Transport.OnClose(s.handleClose)
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:         s.state,
		Attempts:      s.attempts,
		Reconnects:    s.reconnects,
		FramesIn:      s.framesIn,
		FramesOut:     s.framesOut,
		LastTrafficNS: s.lastTraffic,
	}
}

// Connect opens the transport. Calling it while Connected or Connecting is a
// no-op; calling it from Failed resets the attempt counter and starts over.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected, StateConnecting:
		s.mu.Unlock()
		return nil
	case StateDisconnecting:
		s.mu.Unlock()
		return ErrDisconnecting
	case StateFailed:
		s.attempts = 0
	}
	s.cancelRetryLocked()
	s.setStateLocked(StateConnecting, "connect")
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	err := s.cfg.Transport.Open(dialCtx)
	cancel()

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect won the race; drop whatever we opened.
		s.mu.Unlock()
		if err == nil {
			_ = s.cfg.Transport.Close()
		}
		return ErrDisconnecting
	}
	if err != nil {
		s.setStateLocked(StateError, err.Error())
		s.scheduleRetryLocked()
		s.mu.Unlock()
		return err
	}
	s.attempts = 0
	s.lastTraffic = s.clk.NowNS()
	s.setStateLocked(StateConnected, "transport open")
	s.startHeartbeatLocked()
	s.mu.Unlock()
	return nil
}

// Disconnect stops the session: any pending reconnect timer is cancelled,
// the heartbeat task is drained (bounded) and the transport closed. It is
// idempotent and safe to call from any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnecting || s.state == StateDisconnected {
		s.cancelRetryLocked()
		s.mu.Unlock()
		return
	}
	s.cancelRetryLocked()
	s.setStateLocked(StateDisconnecting, "disconnect")
	hbStop, hbDone := s.hbStop, s.hbDone
	s.hbStop, s.hbDone = nil, nil
	s.mu.Unlock()

	if hbStop != nil {
		close(hbStop)
		select {
		case <-hbDone:
		case <-time.After(s.cfg.DrainTimeout):
			log.Warn().Str("device", s.cfg.DeviceID).Msg("heartbeat task drain timed out, force closing")
		}
	}
	_ = s.cfg.Transport.Close()

	s.mu.Lock()
	s.setStateLocked(StateDisconnected, "disconnected")
	s.mu.Unlock()
}

// Dispatch translates a command into protocol frames and sends them.
func (s *Session) Dispatch(cmd telemetry.Command) telemetry.CommandResult {
	if s.State() != StateConnected {
		return telemetry.CommandResult{Success: false, Code: telemetry.CodeNotConnected}
	}
	if s.cfg.Mapper == nil {
		return telemetry.Unsupported(cmd.Action)
	}
	frames, err := s.cfg.Mapper.Map(cmd)
	if err != nil {
		if errors.Is(err, ErrUnsupportedCommand) {
			return telemetry.Unsupported(cmd.Action)
		}
		return telemetry.CommandResult{Success: false, Code: telemetry.CodeSendFailed, Message: err.Error()}
	}
	for _, f := range frames {
		if !s.cfg.Transport.Send(f) {
			return telemetry.CommandResult{Success: false, Code: telemetry.CodeSendFailed}
		}
		s.mu.Lock()
		s.framesOut++
		s.mu.Unlock()
	}
	return telemetry.CommandResult{Success: true, Code: telemetry.CodeOK}
}

func (s *Session) handleFrame(frame []byte) {
	s.mu.Lock()
	s.framesIn++
	s.lastTraffic = s.clk.NowNS()
	s.mu.Unlock()
	if s.cfg.OnFrame != nil {
		s.cfg.OnFrame(frame)
	}
}

func (s *Session) handleClose(err error) {
	s.mu.Lock()
	if s.state == StateDisconnecting || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	if err != nil && errors.Is(err, ErrProtocol) {
		// Malformed wire data: reconnecting would only replay the fault.
		s.setStateLocked(StateFailed, err.Error())
		s.mu.Unlock()
		log.Error().Err(err).Str("device", s.cfg.DeviceID).Msg("protocol error, session failed")
		return
	}
	reason := "transport lost"
	if err != nil {
		reason = err.Error()
	}
	s.setStateLocked(StateError, reason)
	s.scheduleRetryLocked()
	s.mu.Unlock()
}

// scheduleRetryLocked arms the single reconnect timer, or parks the session
// in Failed when attempts are exhausted.
func (s *Session) scheduleRetryLocked() {
	if !s.cfg.Reconnect.Enabled {
		s.setStateLocked(StateDisconnected, "reconnect disabled")
		return
	}
	if s.attempts >= s.cfg.Reconnect.MaxAttempts {
		s.setStateLocked(StateFailed, "reconnect attempts exhausted")
		return
	}
	if s.retryTimer != nil {
		return
	}
	delay := s.backoff(s.attempts)
	s.attempts++
	gen := s.generation
	s.retryTimer = time.AfterFunc(delay, func() { s.retry(gen) })
	log.Debug().Str("device", s.cfg.DeviceID).Dur("delay", delay).Int("attempt", s.attempts).Msg("reconnect scheduled")
}

func (s *Session) retry(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.retryTimer == nil {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	if s.state != StateError {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateConnecting, "reconnect")
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	err := s.cfg.Transport.Open(dialCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		if err == nil {
			go s.cfg.Transport.Close()
		}
		return
	}
	if err != nil {
		s.setStateLocked(StateError, err.Error())
		s.scheduleRetryLocked()
		return
	}
	s.attempts = 0
	s.reconnects++
	s.lastTraffic = s.clk.NowNS()
	s.setStateLocked(StateConnected, "reconnected")
	s.startHeartbeatLocked()
}

func (s *Session) backoff(attempt int) time.Duration {
	c := s.cfg.Reconnect
	d := time.Duration(float64(c.Base) * math.Pow(c.Multiplier, float64(attempt)))
	if d > c.Max || d <= 0 {
		d = c.Max
	}
	return d
}

// cancelRetryLocked stops any pending reconnect timer and invalidates timers
// already fired but not yet run.
func (s *Session) cancelRetryLocked() {
	s.generation++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) startHeartbeatLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.hbStop, s.hbDone = stop, done
	go s.heartbeat(stop, done)
}

func (s *Session) stopHeartbeatLocked() {
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop, s.hbDone = nil, nil
	}
}

// heartbeat supervises link liveness: it optionally solicits traffic every
// interval and drops the link after 2 intervals of silence, which feeds the
// normal reconnect path.
func (s *Session) heartbeat(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if s.cfg.HeartbeatFrame != nil {
			s.cfg.Transport.Send(s.cfg.HeartbeatFrame)
		}
		s.mu.Lock()
		silent := s.clk.NowNS()-s.lastTraffic > 2*s.cfg.HeartbeatInterval.Nanoseconds()
		connected := s.state == StateConnected
		s.mu.Unlock()
		if connected && silent {
			log.Warn().Str("device", s.cfg.DeviceID).Msg("heartbeat miss, dropping link")
			_ = s.cfg.Transport.Close()
			return
		}
	}
}

func (s *Session) setStateLocked(to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.cfg.OnState != nil {
		s.cfg.OnState(Transition{
			Device: s.cfg.DeviceID,
			From:   from,
			To:     to,
			Reason: reason,
			At:     s.clk.NowNS(),
		})
	}
}
