package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/chatnow/chatnow-server/internal/api"
	"github.com/chatnow/chatnow-server/internal/config"
	"github.com/chatnow/chatnow-server/internal/relay"
)

// Server owns the HTTP listener and the WebSocket entry point into the hub.
type Server struct {
	log      *slog.Logger
	hub      *relay.Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

// New wires the routes, CORS, and the WebSocket upgrader. One allow-list
// gates both surfaces: the CORS middleware for the REST routes and the
// upgrader's origin check for /ws.
func New(log *slog.Logger, cfg config.Config, hub *relay.Hub, crud *api.Handler) *Server {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		log:     log,
		hub:     hub,
		origins: newOriginPolicy(log, cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleWelcome).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/test", s.handleTestPage).Methods(http.MethodGet)
	crud.Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowCredentials: true,
	})

	s.http = &http.Server{
		Addr:         cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening for connections. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// until the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server shutdown error", "error", err)
		return err
	}

	s.log.Info("HTTP server shutdown completed")
	return nil
}
