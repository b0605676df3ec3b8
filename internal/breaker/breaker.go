// v1
// internal/breaker/breaker.go

// Package breaker provides a small circuit breaker used around the kafka
// activity writer and the room-inventory client.
package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker's lifecycle position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned on fast-fail while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Config tunes a breaker.
type Config struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
}

// Breaker wraps an operation with failure counting and open/half-open
// probing. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	log  *slog.Logger

	mu          sync.Mutex
	state       State
	recentFails int
	openedAt    time.Time
}

// New builds a closed breaker.
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.applyDefaults()
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		log:   logger.With(slog.String("component", "breaker"), slog.String("name", name)),
		state: Closed,
	}
	b.log.Info("breaker_created",
		slog.Int("max_failures", cfg.MaxFailures),
		slog.String("reset_timeout", cfg.ResetTimeout.String()),
	)
	return b
}

// Execute runs the operation unless the breaker is open and the reset
// timeout has not elapsed. The first call after the timeout probes in
// half-open state; its outcome closes or re-opens the breaker.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.mu.Unlock()
		b.log.Info("breaker_probe_start")
	default:
		b.mu.Unlock()
	}

	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	b.onFailure(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		b.log.Info("breaker_closed", slog.String("from", b.state.String()))
	}
	b.state = Closed
	b.recentFails = 0
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	if b.state == HalfOpen || b.recentFails >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = time.Now()
		b.log.Warn("breaker_opened",
			slog.Int("failures", b.recentFails),
			slog.Any("err", err),
		)
		return
	}
	b.log.Warn("operation_failure",
		slog.Int("failures", b.recentFails),
		slog.Any("err", err),
	)
}
