package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-relay/config"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"--secret-key-seed", "7",
		"--port", "4001",
		"--use-ipv6",
		"--enable-quic",
		"--metrics-addr", "127.0.0.1:9090",
	}, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, cfg.Identity.Seed)
	assert.Equal(t, uint8(7), *cfg.Identity.Seed)
	assert.Equal(t, uint16(4001), cfg.Transport.Port)
	assert.True(t, cfg.Transport.UseIPv6)
	assert.True(t, cfg.Transport.EnableQUIC)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.ListenAddr)
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"missing seed", []string{"--port", "4001"}, "identity.seed"},
		{"seed out of range", []string{"--secret-key-seed", "256", "--port", "4001"}, "identity.seed"},
		{"missing port", []string{"--secret-key-seed", "1"}, "transport.port"},
		{"port out of range", []string{"--secret-key-seed", "1", "--port", "70000"}, "transport.port"},
		{"bad metrics addr", []string{"--secret-key-seed", "1", "--port", "1", "--metrics-addr", "nope"}, "metrics.listen_addr"},
		{"unknown flag", []string{"--bogus"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, io.Discard)
			var ce *config.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParseConfig_FileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"identity": {"seed": 3},
		"transport": {"port": 5000},
		"relay": {"max_circuits": 4}
	}`), 0o600))

	cfg, err := parseConfig([]string{"--config", path}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), *cfg.Identity.Seed)
	assert.Equal(t, uint16(5000), cfg.Transport.Port)
	assert.Equal(t, 4, cfg.Relay.MaxCircuits)

	cfg, err = parseConfig([]string{"--config", path, "--port", "6000", "--secret-key-seed", "9"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), *cfg.Identity.Seed)
	assert.Equal(t, uint16(6000), cfg.Transport.Port)
}

func TestRun_ConfigErrorExitCode(t *testing.T) {
	assert.Equal(t, exitConfigError, run([]string{"--port", "4001"}, io.Discard))
	assert.Equal(t, exitConfigError, run([]string{"--secret-key-seed", "1", "--port", "1", "--config", "/nonexistent.json"}, io.Discard))
	assert.Equal(t, exitOK, run([]string{"-h"}, io.Discard))
}
