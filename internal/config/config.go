// Package config provides service configuration.
//
// Configuration is resolved in three layers: built-in defaults, an
// optional HCL config file, then environment variable overrides.
// Feature switches (remote fan-out, logging disable) are explicit
// values here and are injected at construction, never read ambiently.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"quote-pricing/internal/logging"
)

// Config is the main application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `hcl:"listen_addr,optional" env:"LISTEN_ADDR"`

	// DatabasePath is the path to the reference-data SQLite database.
	DatabasePath string `hcl:"database_path,optional" env:"DATABASE_PATH"`

	// Namespace tags remote dispatch calls and audit records.
	Namespace string `hcl:"namespace,optional" env:"NAMESPACE"`

	// BaseCalculationEndpoint is the root URL of the internal
	// calculation endpoint used for remote line dispatch.
	BaseCalculationEndpoint string `hcl:"base_calculation_endpoint,optional" env:"BASE_CALCULATION_ENDPOINT"`

	// FanOut selects remote per-line dispatch instead of in-process
	// calculation.
	FanOut bool `hcl:"fan_out,optional" env:"FAN_OUT"`

	// DisableLogging turns off audit logging entirely.
	DisableLogging bool `hcl:"disable_logging,optional" env:"DISABLE_LOGGING"`

	// RedisAddr is the address of the audit queue. Empty means audit
	// records go to the application log instead.
	RedisAddr string `hcl:"redis_addr,optional" env:"REDIS_ADDR"`

	// RedisPassword authenticates against the audit queue.
	RedisPassword string `hcl:"redis_password,optional" env:"REDIS_PASSWORD"`

	// RedisQueue is the list key audit records are pushed onto.
	RedisQueue string `hcl:"redis_queue,optional" env:"REDIS_QUEUE"`

	// RequestTimeout bounds each remote line dispatch call.
	RequestTimeout time.Duration `hcl:"request_timeout,optional" env:"REQUEST_TIMEOUT"`

	// MaxParallelLines bounds the per-quote line worker pool.
	MaxParallelLines int `hcl:"max_parallel_lines,optional" env:"MAX_PARALLEL_LINES"`

	// LogLevel is the minimum application log level.
	LogLevel string `hcl:"log_level,optional" env:"LOG_LEVEL"`

	// LogFormat is the application log format (json, console).
	LogFormat string `hcl:"log_format,optional" env:"LOG_FORMAT"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ListenAddr:              ":8080",
		DatabasePath:            "./pricing.db",
		Namespace:               "master",
		BaseCalculationEndpoint: "http://localhost:44359",
		RedisQueue:              "pricing:audit",
		RequestTimeout:          30 * time.Second,
		MaxParallelLines:        4,
		LogLevel:                "info",
		LogFormat:               "console",
	}
}

// Load resolves configuration from defaults, the optional HCL file at
// path, and environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.MaxParallelLines < 1 {
		cfg.MaxParallelLines = 1
	}

	return cfg, nil
}

// Logging derives the logging configuration.
func (c Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	return lc
}
