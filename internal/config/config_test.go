package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Load_FromEnvironment(t *testing.T) {
	req := require.New(t)

	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com,http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("DATA_DIR", "/var/lib/chatnow")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MESSAGE_PAGE_SIZE", "25")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	req.NoError(err)

	req.Equal(":9090", cfg.Port)
	req.Equal([]string{"http://a.example.com", "http://b.example.com"}, cfg.AllowedOrigins)
	req.Equal(int64(2048), cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(2*time.Second, cfg.RateLimit.RefillInterval)
	req.Equal("/var/lib/chatnow", cfg.DataDir)
	req.Equal("debug", cfg.LogLevel)
	req.Equal(25, cfg.MessagePageSize)
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
}

func Test_Sanitize_SplitsCommaSeparatedOrigins(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{AllowedOrigins: []string{" http://a.example.com , http://b.example.com ,"}})
	req.Equal([]string{"http://a.example.com", "http://b.example.com"}, cfg.AllowedOrigins)
}

func Test_Sanitize_AppliesDefaults(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{})

	req.Equal(":8080", cfg.Port)
	req.NotEmpty(cfg.AllowedOrigins)
	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal(10, cfg.RateLimit.Burst)
	req.Equal(time.Second, cfg.RateLimit.RefillInterval)
	req.Equal(50, cfg.MessagePageSize)
	req.Equal(10*time.Second, cfg.ShutdownTimeout)
}

func Test_Sanitize_RejectsOutOfRangeValues(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{
		MaxMessageSize:  -1,
		MessagePageSize: -5,
		RateLimit:       RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
	})

	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal(50, cfg.MessagePageSize)
	req.Equal(10, cfg.RateLimit.Burst)
	req.Equal(time.Second, cfg.RateLimit.RefillInterval)
}

func Test_Sanitize_KeepsExplicitValues(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{
		Port:           ":9999",
		AllowedOrigins: []string{"https://chat.example.com"},
		MaxMessageSize: 1024,
	})

	req.Equal(":9999", cfg.Port)
	req.Equal([]string{"https://chat.example.com"}, cfg.AllowedOrigins)
	req.Equal(int64(1024), cfg.MaxMessageSize)
}

func Test_Level(t *testing.T) {
	req := require.New(t)

	req.Equal(slog.LevelDebug, Config{LogLevel: "debug"}.Level())
	req.Equal(slog.LevelWarn, Config{LogLevel: "WARN"}.Level())
	req.Equal(slog.LevelError, Config{LogLevel: "error"}.Level())
	req.Equal(slog.LevelInfo, Config{LogLevel: "banana"}.Level())
}
