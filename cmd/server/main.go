package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatnow/chatnow-server/internal/api"
	"github.com/chatnow/chatnow-server/internal/config"
	"github.com/chatnow/chatnow-server/internal/presence"
	"github.com/chatnow/chatnow-server/internal/relay"
	"github.com/chatnow/chatnow-server/internal/server"
	"github.com/chatnow/chatnow-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the service lifecycle, and
// centralizes error reporting so deferred cleanup always executes before the
// process exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))

	db, stores, err := store.Open(cfg.DataDir, log, cfg.MessagePageSize)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing document store")
		_ = db.Close()
	}()

	registry := presence.NewRegistry()
	hub := relay.NewHub(log, registry, relay.Options{
		MaxMessageSize:  cfg.MaxMessageSize,
		RateLimitBurst:  cfg.RateLimit.Burst,
		RateLimitRefill: cfg.RateLimit.RefillInterval,
	})
	go hub.Run()

	crud := api.NewHandler(log, stores)
	srv := server.New(log, cfg, hub, crud)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errChan:
		return err
	}

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub shutdown incomplete", "error", err)
	}

	log.Info("server stopped cleanly")
	return nil
}
