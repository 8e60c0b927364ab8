// Package config loads clcore settings from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cwbudde/clcore/internal/backend"
)

// Config holds the settings shared by every clcore command. Flags override
// values loaded from file.
type Config struct {
	Backend       string `toml:"backend"`
	BuildOptions  string `toml:"build_options"`
	CacheDir      string `toml:"cache_dir"`
	FinishTimeout string `toml:"finish_timeout"`
	LogLevel      string `toml:"log_level"`
	MetricsAddr   string `toml:"metrics_addr"`
	Trace         bool   `toml:"trace"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:       string(backend.BackendSim),
		FinishTimeout: "30s",
		LogLevel:      "info",
	}
}

// Load reads path over Default. A missing file is not an error when path is
// empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if !backend.Valid(c.Backend) {
		return fmt.Errorf("%w: %s (supported: %v)", backend.ErrUnknownBackend, c.Backend, backend.Supported())
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Timeout parses FinishTimeout. Zero means wait without a deadline.
func (c Config) Timeout() (time.Duration, error) {
	if c.FinishTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.FinishTimeout)
	if err != nil {
		return 0, fmt.Errorf("finish_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("finish_timeout: negative duration %s", d)
	}
	return d, nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// Marshal renders c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
