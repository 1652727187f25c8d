package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Identity.SetSeed(1)
	return cfg
}

func TestNewConfig_RequiresSeed(t *testing.T) {
	err := NewConfig().Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "identity.seed", cfgErr.Field)

	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"no security", func(c *Config) { c.Security.Protocols = nil }, "security.protocols"},
		{"unknown security", func(c *Config) { c.Security.Protocols = []string{"ssl"} }, "security.protocols"},
		{"duplicate security", func(c *Config) { c.Security.Protocols = []string{"tls", "tls"} }, "security.protocols"},
		{"ping interval", func(c *Config) { c.Ping.Interval = 0 }, "ping.interval"},
		{"ping failures", func(c *Config) { c.Ping.MaxFailures = 0 }, "ping.max_failures"},
		{"small window", func(c *Config) { c.Muxer.MaxStreamWindowSize = 1024 }, "muxer.max_stream_window_size"},
		{"relay circuits", func(c *Config) { c.Relay.MaxCircuits = 0 }, "relay.max_circuits"},
		{"relay bandwidth", func(c *Config) { c.Relay.Bandwidth = -1 }, "relay.bandwidth"},
		{"identify version", func(c *Config) { c.Identify.ProtocolVersion = "" }, "identify.protocol_version"},
		{"metrics addr", func(c *Config) { c.Metrics.ListenAddr = "nope" }, "metrics.listen_addr"},
		{"log level", func(c *Config) { c.Log.Level = "relay=loud" }, "log.level"},
		{"external set", func(c *Config) { c.EventLoop.MaxAddrsPerPeer = 0 }, "event_loop.max_addrs_per_peer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mut(cfg)
			err := cfg.Validate()
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestFromJSON_MergesDefaults(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"identity": {"seed": 42},
		"transport": {"port": 4001, "use_ipv6": true},
		"ping": {"interval": "5s"},
		"relay": {"max_circuits": 3}
	}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint8(42), *cfg.Identity.Seed)
	assert.Equal(t, uint16(4001), cfg.Transport.Port)
	assert.True(t, cfg.Transport.UseIPv6)
	assert.Equal(t, 5*time.Second, cfg.Ping.Interval.Duration())
	assert.Equal(t, DefaultPingConfig().Timeout, cfg.Ping.Timeout)
	assert.Equal(t, 3, cfg.Relay.MaxCircuits)
	assert.Equal(t, "/TODO/0.0.1", cfg.Identify.ProtocolVersion)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"ping": {"interval": "soon"}}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.json")
	data, err := validConfig().ToJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := FromFile(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
