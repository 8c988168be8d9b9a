package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hybridrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.WindowSize)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "race.log", cfg.Storage.LogPath)
	assert.Equal(t, "race.count", cfg.Storage.CountPath)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
window_size: 8
capture_origin: true
metrics_namespace: myrace
log_level: debug
storage:
  backend: badger
  badger_dir: /tmp/races
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WindowSize)
	assert.True(t, cfg.CaptureOrigin)
	assert.Equal(t, "myrace", cfg.MetricsNamespace)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/races", cfg.Storage.BadgerDir)
	assert.Equal(t, "race.log", cfg.Storage.LogPath, "unset keys keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "window_size: 8\n")
	t.Setenv("HYBRIDRACE_WINDOW", "3")
	t.Setenv("HYBRIDRACE_LOG", "/var/run/r.log")
	t.Setenv("HYBRIDRACE_COUNT", "/var/run/r.count")
	t.Setenv("HYBRIDRACE_LOG_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.WindowSize)
	assert.Equal(t, "/var/run/r.log", cfg.Storage.LogPath)
	assert.Equal(t, "/var/run/r.count", cfg.Storage.CountPath)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestBadEnvWindow(t *testing.T) {
	t.Setenv("HYBRIDRACE_WINDOW", "many")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMalformedFile(t *testing.T) {
	path := writeConfig(t, "window_size: [1, 2\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"file without log path", func(c *Config) { c.Storage.LogPath = "" }},
		{"file without count path", func(c *Config) { c.Storage.CountPath = "" }},
		{"same log and count path", func(c *Config) { c.Storage.CountPath = c.Storage.LogPath }},
		{"badger without dir", func(c *Config) {
			c.Storage.Backend = BackendBadger
			c.Storage.BadgerDir = ""
		}},
		{"bad namespace", func(c *Config) { c.MetricsNamespace = "my-race" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.Storage = StorageConfig{Backend: BackendMemory}
	assert.NoError(t, cfg.Validate(), "memory backend needs no paths")
}
