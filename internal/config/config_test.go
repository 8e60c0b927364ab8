package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend = "opencl"
build_options = "-cl-fast-relaxed-math"
cache_dir = "/tmp/clcore"
finish_timeout = "5s"
log_level = "debug"
trace = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "opencl", cfg.Backend)
	assert.Equal(t, "-cl-fast-relaxed-math", cfg.BuildOptions)
	assert.Equal(t, "/tmp/clcore", cfg.CacheDir)
	assert.True(t, cfg.Trace)

	timeout, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `backnd = "sim"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backnd")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"gpu alias", func(c *Config) { c.Backend = "gpu" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "metal" }, true},
		{"bad timeout", func(c *Config) { c.FinishTimeout = "soon" }, true},
		{"negative timeout", func(c *Config) { c.FinishTimeout = "-1s" }, true},
		{"no timeout", func(c *Config) { c.FinishTimeout = "" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.CacheDir = "cache"
	data, err := cfg.Marshal()
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
