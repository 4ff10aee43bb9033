// Package config defines the runtime configuration for the Chat Now service,
// loaded from environment variables with sensible production defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=10"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// Config holds the server configuration settings including security controls
// and storage locations.
type Config struct {
	Port            string          `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimit       RateLimitConfig
	DataDir         string          `env:"DATA_DIR,default=./data"`
	LogLevel        string          `env:"LOG_LEVEL,default=info"`
	MessagePageSize int             `env:"MESSAGE_PAGE_SIZE,default=50"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads the configuration from the process environment and applies
// defaults for any value that is missing or out of range.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return Sanitize(cfg), nil
}

// Default returns the configuration used when no environment is present.
func Default() Config {
	return Sanitize(Config{})
}

// Sanitize replaces zero or out-of-range values with their defaults.
func Sanitize(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 50
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return cfg
}

// splitOrigins expands comma-separated entries and trims whitespace. go-env
// assigns the raw ALLOWED_ORIGINS value as a single slice element, so a
// multi-origin allow-list arrives here as one string.
func splitOrigins(origins []string) []string {
	var out []string
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// Level maps the configured log level name onto a slog level. Unknown names
// fall back to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
