package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Sync.ToleranceMS)
	assert.Equal(t, "software_timestamp", cfg.Sync.Strategy)
	assert.Equal(t, 1024, cfg.Distributor.PerSubscriberHighwater)
	assert.Equal(t, 1.5, cfg.Session.BackoffMultiplier)
	assert.Equal(t, "_pupil-mobile._tcp", cfg.Discovery.Service)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
fusion:
  fusion_thresholds:
    human: 0.4
sync:
  tolerance_ms: 25
  strategy: hardware_timestamp
session:
  mock_mode: true
devices:
  - id: sim-1
    kind: msfs
    address: 127.0.0.1
    port: 500
  - id: eye-1
    kind: neon
    address: 192.168.1.10
    port: 8080
    options:
      topics: gaze,events
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, cfg.Fusion.Thresholds.Human, 1e-9)
	// Untouched keys keep defaults.
	assert.InDelta(t, 0.2, cfg.Fusion.Thresholds.Environmental, 1e-9)
	assert.Equal(t, 25*time.Millisecond, cfg.Sync.Tolerance())
	assert.Equal(t, "hardware_timestamp", cfg.Sync.Strategy)
	assert.True(t, cfg.Session.MockMode)
	assert.True(t, cfg.Session.AutoReconnect)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, KindMSFS, cfg.Devices[0].Kind)
	assert.Equal(t, "gaze,events", cfg.Devices[1].Options["topics"])
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "fusion: [not a map"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Fusion.Thresholds.Human = 1.5 }},
		{"threshold negative", func(c *Config) { c.Fusion.Thresholds.Situational = -0.1 }},
		{"zero max history", func(c *Config) { c.Fusion.MaxHistory = 0 }},
		{"zero sample rate", func(c *Config) { c.Stream.SampleRateHz = 0 }},
		{"backoff below one", func(c *Config) { c.Session.BackoffMultiplier = 0.5 }},
		{"max interval below base", func(c *Config) { c.Session.MaxIntervalMS = 100 }},
		{"zero tolerance", func(c *Config) { c.Sync.ToleranceMS = 0 }},
		{"unknown strategy", func(c *Config) { c.Sync.Strategy = "vibes" }},
		{"zero max clients", func(c *Config) { c.Distributor.MaxClients = 0 }},
		{"zero highwatermark", func(c *Config) { c.Distributor.PerSubscriberHighwater = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"device missing id", func(c *Config) { c.Devices = []DeviceConfig{{Kind: KindNeon}} }},
		{"device unknown kind", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "d", Kind: "flightgear"}}
		}},
		{"device duplicate id", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "d", Kind: KindNeon}, {ID: "d", Kind: KindMSFS}}
		}},
		{"device port out of range", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "d", Kind: KindNeon, Port: 70000}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 50*time.Millisecond, cfg.Fusion.TriggerWindow())
	assert.Equal(t, 10*time.Second, cfg.Stream.Window())
	assert.Equal(t, 8*time.Second, cfg.Discovery.Window())
}
