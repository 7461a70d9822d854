// Package vatsim pulls the public VATSIM v3 data feed over HTTPS at roughly
// five-second intervals and normalizes the tracked pilot into canonical
// telemetry frames. The feed stamps with its own wall clock, so timestamps
// go through the runtime skew corrector.
package vatsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/michaelhil/synopticon-api-sub016/internal/clock"
	"github.com/michaelhil/synopticon-api-sub016/internal/telemetry"
)

// DefaultURL is the public v3 feed endpoint.
const DefaultURL = "https://data.vatsim.net/v3/vatsim-data.json"

// defaultInterval is the pull period; the feed itself updates every ~15s.
const defaultInterval = 5 * time.Second

// ErrPilotNotFound is returned when the tracked callsign is absent from the
// feed.
var ErrPilotNotFound = errors.New("pilot not found in feed")

// Pilot is one pilot record from the feed.
type Pilot struct {
	CID            int     `json:"cid"`
	Callsign       string  `json:"callsign"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AltitudeFt     float64 `json:"altitude"`
	GroundspeedKts float64 `json:"groundspeed"`
	Heading        float64 `json:"heading"`
	Transponder    string  `json:"transponder"`
	LastUpdated    string  `json:"last_updated"`
}

// Feed is the subset of the v3 document the poller reads.
type Feed struct {
	General struct {
		UpdateTimestamp string `json:"update_timestamp"`
	} `json:"general"`
	Pilots []Pilot `json:"pilots"`
}

// Config tunes a Poller. Zero values get defaults.
type Config struct {
	URL      string
	Callsign string        // tracked pilot; empty tracks the first pilot
	Interval time.Duration // default 5s
	SourceID string
	Clock    clock.Clock
	Skew     *clock.SkewCorrector
	OnFrame  func(telemetry.TelemetryFrame)
	// OnTraffic receives the surrounding-traffic sample derived from each
	// feed snapshot.
	OnTraffic func(telemetry.Sample)
	HTTP      *http.Client
}

// Stats is a snapshot of poller health.
type Stats struct {
	Polls        uint64
	Failures     uint64
	Frames       uint64
	BreakerState string
}

// Poller pulls the feed on a limiter-paced loop guarded by a circuit
// breaker: repeated upstream failures open the breaker and polls are skipped
// until its timeout elapses.
type Poller struct {
	cfg     Config
	clk     clock.Clock
	skew    *clock.SkewCorrector
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	http    *http.Client
	seq     atomic.Uint32

	polls    atomic.Uint64
	failures atomic.Uint64
	frames   atomic.Uint64
}

func NewPoller(cfg Config) *Poller {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "vatsim"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Skew == nil {
		cfg.Skew = clock.NewSkewCorrector(cfg.Clock)
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	return &Poller{
		cfg:     cfg,
		clk:     cfg.Clock,
		skew:    cfg.Skew,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "vatsim",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("vatsim breaker state change")
			},
		}),
		http: cfg.HTTP,
	}
}

// Run polls until the context is cancelled. Cancellation is not an error.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			// Wait wraps deadline overruns in its own error type, so check
			// the context rather than the error chain.
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("vatsim poll failed")
		}
	}
}

// PollOnce performs a single breaker-guarded fetch and dispatch.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.polls.Add(1)
	res, err := p.breaker.Execute(func() (any, error) { return p.fetch(ctx) })
	if err != nil {
		p.failures.Add(1)
		return err
	}
	feed := res.(*Feed)
	return p.dispatch(feed)
}

func (p *Poller) Stats() Stats {
	return Stats{
		Polls:        p.polls.Load(),
		Failures:     p.failures.Load(),
		Frames:       p.frames.Load(),
		BreakerState: p.breaker.State().String(),
	}
}

func (p *Poller) fetch(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vatsim fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("vatsim fetch: http %d", resp.StatusCode)
	}
	var feed Feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("vatsim decode: %w", err)
	}
	return &feed, nil
}

func (p *Poller) dispatch(feed *Feed) error {
	pilot, err := p.selectPilot(feed)
	if err == nil && p.cfg.OnFrame != nil {
		ts, ok := p.normalizeTimestamp(pilot.LastUpdated)
		if ok {
			p.frames.Add(1)
			p.cfg.OnFrame(pilot.ToFrame(ts, p.seq.Add(1), p.cfg.SourceID))
		} else {
			log.Debug().Str("callsign", pilot.Callsign).Msg("vatsim pilot timestamp implausible, dropped")
		}
	}

	if p.cfg.OnTraffic != nil {
		now := p.clk.NowNS()
		p.cfg.OnTraffic(trafficSample(feed, pilot, now))
	}
	if err != nil && !errors.Is(err, ErrPilotNotFound) {
		return err
	}
	return nil
}

func (p *Poller) selectPilot(feed *Feed) (*Pilot, error) {
	if len(feed.Pilots) == 0 {
		return nil, ErrPilotNotFound
	}
	if p.cfg.Callsign == "" {
		return &feed.Pilots[0], nil
	}
	for i := range feed.Pilots {
		if strings.EqualFold(feed.Pilots[i].Callsign, p.cfg.Callsign) {
			return &feed.Pilots[i], nil
		}
	}
	return nil, ErrPilotNotFound
}

// normalizeTimestamp runs the pilot's wall timestamp through the skew
// corrector. Unparseable stamps fall back to now.
func (p *Poller) normalizeTimestamp(stamp string) (int64, bool) {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return p.clk.NowNS(), true
	}
	return p.skew.Normalize("vatsim", t.UnixNano())
}

const (
	ktsToMPS = 0.514444
	ftToM    = 0.3048
)

// ToFrame normalizes a pilot record into the canonical telemetry frame.
func (pl *Pilot) ToFrame(timestampNS int64, sequence uint32, sourceID string) telemetry.TelemetryFrame {
	headingRad := pl.Heading * math.Pi / 180
	speed := pl.GroundspeedKts * ktsToMPS
	return telemetry.TelemetryFrame{
		TimestampNS: uint64(timestampNS),
		Sequence:    sequence,
		SourceID:    sourceID,
		SourceType:  string(telemetry.TypeTelemetry),
		Simulator:   telemetry.SimVATSIM,
		Vehicle: telemetry.Vehicle{
			Position: telemetry.Vec3{pl.Latitude, pl.Longitude, pl.AltitudeFt * ftToM},
			Velocity: telemetry.Vec3{
				speed * math.Sin(headingRad),
				speed * math.Cos(headingRad),
				0,
			},
			Rotation:   telemetry.Quat{0, 0, 0, 1},
			HeadingDeg: pl.Heading,
		},
		Performance: telemetry.FramePerformance{SpeedMPS: speed},
	}
}

// trafficSample summarizes the feed into an external/traffic sample centered
// on the tracked pilot (global counts when no pilot is tracked).
func trafficSample(feed *Feed, center *Pilot, nowNS int64) telemetry.Sample {
	p := telemetry.Traffic{AircraftCount: float64(len(feed.Pilots))}
	if center != nil {
		closest := math.Inf(1)
		var nearby float64
		for i := range feed.Pilots {
			o := &feed.Pilots[i]
			if o == center {
				continue
			}
			d := haversineNM(center.Latitude, center.Longitude, o.Latitude, o.Longitude)
			if d < closest {
				closest = d
			}
			if d <= 40 {
				nearby++
			}
		}
		if !math.IsInf(closest, 1) {
			p.ClosestNM = telemetry.Opt(closest)
		}
		// Density over the 40 NM surveillance disc, in aircraft per 1000 km².
		area := math.Pi * 40 * 40 * 1.852 * 1.852 / 1000
		p.DensityPerKM2 = telemetry.Opt(nearby / area)
	}
	return telemetry.NewSample(p, nowNS, nowNS)
}

const earthRadiusNM = 3440.065

func haversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusNM * math.Asin(math.Sqrt(a))
}
