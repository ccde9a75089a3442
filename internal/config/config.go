package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/crosslink/internal/bus"
)

var ErrInvalidConfig = fmt.Errorf("%w: config", bus.ErrConfiguration)

// Config is the runtime configuration of one crosslink context.
type Config struct {
	// BridgeTimeout bounds the relay handshake (BRIDGE_TIMEOUT). The env
	// value is milliseconds, -1 for no timeout.
	BridgeTimeout time.Duration `env:"CROSSLINK_BRIDGE_TIMEOUT"`
	// SendTimeout is the transport default for sends without an explicit
	// timeout, in milliseconds from the env.
	SendTimeout time.Duration `env:"CROSSLINK_SEND_TIMEOUT"`
	AdminAddr   string        `env:"CROSSLINK_ADMIN_ADDR"`
	LogLevel    string        `env:"CROSSLINK_LOG_LEVEL"`
}

func Default() Config {
	return Config{
		BridgeTimeout: 5 * time.Second,
		SendTimeout:   10 * time.Second,
		AdminAddr:     "127.0.0.1:7040",
		LogLevel:      "info",
	}
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	BridgeTimeoutMS int64  `toml:"bridge_timeout_ms"`
	SendTimeoutMS   int64  `toml:"send_timeout_ms"`
	AdminAddr       string `toml:"admin_addr"`
	LogLevel        string `toml:"log_level"`
}

// LoadFile overlays the keys defined in path onto Default, then the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if meta.IsDefined("bridge_timeout_ms") {
		cfg.BridgeTimeout = millis(raw.BridgeTimeoutMS)
	}
	if meta.IsDefined("send_timeout_ms") {
		cfg.SendTimeout = millis(raw.SendTimeoutMS)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// millis maps -1 to bus.NoTimeout and other values to milliseconds.
func millis(ms int64) time.Duration {
	if ms == -1 {
		return bus.NoTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// ApplyEnv overlays CROSSLINK_* environment variables onto cfg. Durations
// are read as milliseconds, like the config file keys.
func ApplyEnv(cfg *Config) error {
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseMillis,
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func parseMillis(raw string) (any, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expected milliseconds, got %q", raw)
	}
	return millis(ms), nil
}

func (c Config) Validate() error {
	var errs []error
	if c.BridgeTimeout <= 0 && c.BridgeTimeout != bus.NoTimeout {
		errs = append(errs, fmt.Errorf("%w: bridge timeout must be positive or -1, got %v", ErrInvalidConfig, c.BridgeTimeout))
	}
	if c.SendTimeout <= 0 && c.SendTimeout != bus.NoTimeout {
		errs = append(errs, fmt.Errorf("%w: send timeout must be positive or -1, got %v", ErrInvalidConfig, c.SendTimeout))
	}
	return errors.Join(errs...)
}
