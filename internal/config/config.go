// Package config loads and validates the runtime's YAML configuration.
// Unset fields get defaults; Validate rejects out-of-range values before
// anything is wired up.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceKind names a supported device adapter.
type DeviceKind string

const (
	KindNeon   DeviceKind = "neon"
	KindMSFS   DeviceKind = "msfs"
	KindBeamNG DeviceKind = "beamng"
	KindXPlane DeviceKind = "xplane"
	KindVATSIM DeviceKind = "vatsim"
)

var deviceKinds = map[DeviceKind]bool{
	KindNeon: true, KindMSFS: true, KindBeamNG: true, KindXPlane: true, KindVATSIM: true,
}

// FusionConfig tunes the fusion engine.
type FusionConfig struct {
	EnableTemporalAnalysis  bool             `yaml:"enable_temporal_analysis"`
	EnableQualityAssessment bool             `yaml:"enable_quality_assessment"`
	Thresholds              ThresholdsConfig `yaml:"fusion_thresholds"`
	MaxHistory              int              `yaml:"max_history"`
	TriggerWindowMS         int              `yaml:"trigger_window_ms"`
}

type ThresholdsConfig struct {
	Human         float64 `yaml:"human"`
	Environmental float64 `yaml:"environmental"`
	Situational   float64 `yaml:"situational"`
}

// StreamConfig tunes per-source stream nodes.
type StreamConfig struct {
	SampleRateHz             int  `yaml:"sample_rate_hz"`
	BufferSize               int  `yaml:"buffer_size"`
	WindowMS                 int  `yaml:"window_ms"`
	EnableMemoryOptimization bool `yaml:"enable_memory_optimization"`
	EnableAdaptiveBatching   bool `yaml:"enable_adaptive_batching"`
}

// SessionConfig tunes device session reconnect behavior.
type SessionConfig struct {
	AutoReconnect        bool    `yaml:"auto_reconnect"`
	ReconnectIntervalMS  int     `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts int     `yaml:"max_reconnect_attempts"`
	BackoffMultiplier    float64 `yaml:"backoff_multiplier"`
	MaxIntervalMS        int     `yaml:"max_interval_ms"`
	MockMode             bool    `yaml:"mock_mode"`
}

// SyncConfig tunes the cross-stream alignment engine.
type SyncConfig struct {
	ToleranceMS int    `yaml:"tolerance_ms"`
	Strategy    string `yaml:"strategy"`
	BufferSize  int    `yaml:"buffer_size"`
}

// DistributorConfig tunes the topic bus and its egress.
type DistributorConfig struct {
	MaxClients             int         `yaml:"max_clients"`
	Compression            bool        `yaml:"compression"`
	PerSubscriberHighwater int         `yaml:"per_subscriber_highwatermark"`
	Redis                  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// DiscoveryConfig tunes mDNS device discovery.
type DiscoveryConfig struct {
	Service  string `yaml:"service"`
	WindowMS int    `yaml:"window_ms"`
	MockMode bool   `yaml:"mock_mode"`
}

// DeviceConfig declares one device to connect at startup.
type DeviceConfig struct {
	ID      string            `yaml:"id"`
	Kind    DeviceKind        `yaml:"kind"`
	Address string            `yaml:"address"`
	Port    int               `yaml:"port"`
	Options map[string]string `yaml:"options"`
}

// Config is the full runtime configuration.
type Config struct {
	Fusion      FusionConfig      `yaml:"fusion"`
	Stream      StreamConfig      `yaml:"stream"`
	Session     SessionConfig     `yaml:"session"`
	Sync        SyncConfig        `yaml:"sync"`
	Distributor DistributorConfig `yaml:"distributor"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Devices     []DeviceConfig    `yaml:"devices"`
	LogLevel    string            `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Fusion: FusionConfig{
			EnableTemporalAnalysis:  true,
			EnableQualityAssessment: true,
			Thresholds:              ThresholdsConfig{Human: 0.3, Environmental: 0.2, Situational: 0.5},
			MaxHistory:              1000,
			TriggerWindowMS:         50,
		},
		Stream: StreamConfig{
			SampleRateHz:             200,
			BufferSize:               1000,
			WindowMS:                 10000,
			EnableMemoryOptimization: true,
			EnableAdaptiveBatching:   true,
		},
		Session: SessionConfig{
			AutoReconnect:        true,
			ReconnectIntervalMS:  5000,
			MaxReconnectAttempts: 10,
			BackoffMultiplier:    1.5,
			MaxIntervalMS:        30000,
		},
		Sync: SyncConfig{
			ToleranceMS: 10,
			Strategy:    "software_timestamp",
			BufferSize:  100,
		},
		Distributor: DistributorConfig{
			MaxClients:             64,
			Compression:            true,
			PerSubscriberHighwater: 1024,
			Redis:                  RedisConfig{Addr: "localhost:6379", ChannelPrefix: "synopticon."},
		},
		Discovery: DiscoveryConfig{
			Service:  "_pupil-mobile._tcp",
			WindowMS: 8000,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config read: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var syncStrategies = map[string]bool{
	"hardware_timestamp": true, "software_timestamp": true, "arrival_time": true,
}

// Validate rejects values outside their documented ranges.
func (c *Config) Validate() error {
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"fusion.fusion_thresholds.human", c.Fusion.Thresholds.Human},
		{"fusion.fusion_thresholds.environmental", c.Fusion.Thresholds.Environmental},
		{"fusion.fusion_thresholds.situational", c.Fusion.Thresholds.Situational},
	} {
		if th.v < 0 || th.v > 1 {
			return fmt.Errorf("%s: %v out of range [0,1]", th.name, th.v)
		}
	}
	if c.Fusion.MaxHistory <= 0 {
		return fmt.Errorf("fusion.max_history must be positive, got %d", c.Fusion.MaxHistory)
	}
	if c.Fusion.TriggerWindowMS < 0 {
		return fmt.Errorf("fusion.trigger_window_ms must be non-negative, got %d", c.Fusion.TriggerWindowMS)
	}
	if c.Stream.SampleRateHz <= 0 {
		return fmt.Errorf("stream.sample_rate_hz must be positive, got %d", c.Stream.SampleRateHz)
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("stream.buffer_size must be positive, got %d", c.Stream.BufferSize)
	}
	if c.Stream.WindowMS <= 0 {
		return fmt.Errorf("stream.window_ms must be positive, got %d", c.Stream.WindowMS)
	}
	if c.Session.ReconnectIntervalMS <= 0 {
		return fmt.Errorf("session.reconnect_interval_ms must be positive, got %d", c.Session.ReconnectIntervalMS)
	}
	if c.Session.MaxReconnectAttempts < 0 {
		return fmt.Errorf("session.max_reconnect_attempts must be non-negative, got %d", c.Session.MaxReconnectAttempts)
	}
	if c.Session.BackoffMultiplier < 1 {
		return fmt.Errorf("session.backoff_multiplier must be >= 1, got %v", c.Session.BackoffMultiplier)
	}
	if c.Session.MaxIntervalMS < c.Session.ReconnectIntervalMS {
		return fmt.Errorf("session.max_interval_ms %d below reconnect_interval_ms %d",
			c.Session.MaxIntervalMS, c.Session.ReconnectIntervalMS)
	}
	if c.Sync.ToleranceMS <= 0 {
		return fmt.Errorf("sync.tolerance_ms must be positive, got %d", c.Sync.ToleranceMS)
	}
	if !syncStrategies[c.Sync.Strategy] {
		return fmt.Errorf("sync.strategy %q unknown", c.Sync.Strategy)
	}
	if c.Sync.BufferSize <= 0 {
		return fmt.Errorf("sync.buffer_size must be positive, got %d", c.Sync.BufferSize)
	}
	if c.Distributor.MaxClients <= 0 {
		return fmt.Errorf("distributor.max_clients must be positive, got %d", c.Distributor.MaxClients)
	}
	if c.Distributor.PerSubscriberHighwater <= 0 {
		return fmt.Errorf("distributor.per_subscriber_highwatermark must be positive, got %d",
			c.Distributor.PerSubscriberHighwater)
	}
	if c.Discovery.WindowMS <= 0 {
		return fmt.Errorf("discovery.window_ms must be positive, got %d", c.Discovery.WindowMS)
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("log_level %q unknown", c.LogLevel)
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if !deviceKinds[d.Kind] {
			return fmt.Errorf("devices[%d] %s: kind %q unknown", i, d.ID, d.Kind)
		}
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("devices[%d] %s: port %d out of range", i, d.ID, d.Port)
		}
	}
	return nil
}

// TriggerWindow converts the fusion coalescing window to a duration.
func (c *FusionConfig) TriggerWindow() time.Duration {
	return time.Duration(c.TriggerWindowMS) * time.Millisecond
}

// Window converts the stream admission window to a duration.
func (c *StreamConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

// Tolerance converts the sync tolerance to a duration.
func (c *SyncConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMS) * time.Millisecond
}

// Window converts the browse window to a duration.
func (c *DiscoveryConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}
