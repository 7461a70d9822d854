// Package discovery enumerates devices over mDNS. It is pure discovery: it
// reports found/updated/lost records and never connects to anything.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
)

// DefaultService is the eye tracker's mDNS service name.
const DefaultService = "_pupil-mobile._tcp"

const (
	defaultWindow = 8 * time.Second
	// lostAfter is how long a device may go unseen before it is reported
	// lost.
	lostAfter  = 60 * time.Second
	sweepEvery = 5 * time.Second
)

var ErrServiceRunning = errors.New("discovery already running")

// Device is one discovered record.
type Device struct {
	ID           string
	Name         string
	Address      string
	Port         int
	Capabilities []string
	Info         map[string]string
	LastSeenNS   int64
	Mock         bool
}

// EventType classifies discovery notifications.
type EventType string

const (
	EventFound   EventType = "found"
	EventUpdated EventType = "updated"
	EventLost    EventType = "lost"
)

// Event is one discovery notification.
type Event struct {
	Type   EventType
	Device Device
}

// Browser produces raw service records. The zeroconf implementation is the
// production one; tests inject their own.
type Browser interface {
	// Browse streams records for the service until the context ends.
	Browse(ctx context.Context, service string, found chan<- Device) error
}

// ZeroconfBrowser browses via multicast DNS.
type ZeroconfBrowser struct{}

func (ZeroconfBrowser) Browse(ctx context.Context, service string, found chan<- Device) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for entry := range entries {
			dev, ok := deviceFromEntry(entry)
			if !ok {
				continue
			}
			select {
			case found <- dev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return resolver.Browse(ctx, service, "local.", entries)
}

func deviceFromEntry(entry *zeroconf.ServiceEntry) (Device, bool) {
	if entry == nil {
		return Device{}, false
	}
	var addr string
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		addr = entry.AddrIPv6[0].String()
	}
	if addr == "" {
		return Device{}, false
	}
	info := make(map[string]string, len(entry.Text))
	var caps []string
	for _, txt := range entry.Text {
		k, v, found := strings.Cut(txt, "=")
		if !found {
			continue
		}
		if k == "capabilities" {
			caps = strings.Split(v, ",")
			continue
		}
		info[k] = v
	}
	return Device{
		ID:           entry.Instance,
		Name:         entry.Instance,
		Address:      addr,
		Port:         entry.Port,
		Capabilities: caps,
		Info:         info,
	}, true
}

// Config tunes the discovery service.
type Config struct {
	Service string        // default _pupil-mobile._tcp
	Window  time.Duration // browse window, default 8s
	// MockMode synthesizes one mock device when the window closes empty.
	MockMode bool
	// SweepInterval is how often the expiry sweeper runs. Default 5s.
	SweepInterval time.Duration
	Browser       Browser
	Clock         clock.Clock
	OnEvent       func(Event)
}

// Service runs discovery rounds and tracks record lifecycles. Devices unseen
// for a minute are reported lost.
type Service struct {
	cfg     Config
	clk     clock.Clock
	browser Browser

	mu      sync.Mutex
	devices map[string]Device

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewService(cfg Config) *Service {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = sweepEvery
	}
	if cfg.Browser == nil {
		cfg.Browser = ZeroconfBrowser{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	return &Service{
		cfg:     cfg,
		clk:     cfg.Clock,
		browser: cfg.Browser,
		devices: make(map[string]Device),
	}
}

// Start launches the browse round and the expiry sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServiceRunning
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.run(ctx)
	return nil
}

// Stop aborts discovery cleanly.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done
}

// Devices lists current records sorted by id.
func (s *Service) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	found := make(chan Device, 16)
	browseCtx, browseCancel := context.WithTimeout(ctx, s.cfg.Window)
	defer browseCancel()

	browseDone := make(chan error, 1)
	go func() { browseDone <- s.browser.Browse(browseCtx, s.cfg.Service, found) }()

	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()

	windowOpen := true
	for {
		select {
		case <-ctx.Done():
			return
		case dev := <-found:
			s.observe(dev)
		case err := <-browseDone:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				log.Warn().Err(err).Str("service", s.cfg.Service).Msg("mdns browse failed")
			}
			if windowOpen {
				windowOpen = false
				s.closeWindow()
			}
		case <-browseCtx.Done():
			if windowOpen {
				windowOpen = false
				s.closeWindow()
			}
		case <-sweep.C:
			s.expire()
		}
	}
}

// closeWindow runs once when the browse window ends: with nothing found and
// mock mode on, one synthetic device is reported.
func (s *Service) closeWindow() {
	s.mu.Lock()
	empty := len(s.devices) == 0
	s.mu.Unlock()
	if !empty || !s.cfg.MockMode {
		return
	}
	mock := Device{
		ID:           "mock-" + uuid.NewString()[:8],
		Name:         "Mock Neon Device",
		Address:      "127.0.0.1",
		Port:         8080,
		Capabilities: []string{"gaze", "imu", "events"},
		Info:         map[string]string{"mock": "true"},
		Mock:         true,
	}
	log.Info().Str("device", mock.ID).Msg("no devices discovered, synthesizing mock")
	s.observe(mock)
}

func (s *Service) observe(dev Device) {
	dev.LastSeenNS = s.clk.NowNS()
	s.mu.Lock()
	prev, known := s.devices[dev.ID]
	s.devices[dev.ID] = dev
	s.mu.Unlock()

	switch {
	case !known:
		s.emit(Event{Type: EventFound, Device: dev})
	case prev.Address != dev.Address || prev.Port != dev.Port:
		s.emit(Event{Type: EventUpdated, Device: dev})
	}
}

func (s *Service) expire() {
	cutoff := s.clk.NowNS() - lostAfter.Nanoseconds()
	var lost []Device
	s.mu.Lock()
	for id, d := range s.devices {
		if !d.Mock && d.LastSeenNS < cutoff {
			delete(s.devices, id)
			lost = append(lost, d)
		}
	}
	s.mu.Unlock()
	for _, d := range lost {
		s.emit(Event{Type: EventLost, Device: d})
	}
}

func (s *Service) emit(e Event) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(e)
	}
}
