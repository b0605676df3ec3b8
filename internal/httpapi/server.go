// v1
// internal/httpapi/server.go

// Package httpapi exposes the recommendation engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// Config tunes the HTTP server.
type Config struct {
	Bind            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Bind == "" {
		c.Bind = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server hosts the recommendation API.
type Server struct {
	cfg    Config
	log    *slog.Logger
	http   *http.Server
	ready  atomic.Bool
	engine RecommendationEngine
}

// NewServer builds the server with all routes registered.
func NewServer(cfg Config, engine RecommendationEngine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	cfg.applyDefaults()
	s := &Server{
		cfg:    cfg,
		log:    logger.With(slog.String("component", "httpapi")),
		engine: engine,
	}
	s.http = &http.Server{
		Addr:         cfg.Bind,
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// SetReady flips the readiness probe. The main loop marks the server
// ready once the engine has loaded its persisted state.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start blocks serving requests until the listener is closed.
func (s *Server) Start() error {
	s.log.Info("http_server_starting", slog.String("bind", s.cfg.Bind))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("http_server_stopping")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
