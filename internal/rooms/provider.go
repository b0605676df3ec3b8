// v1
// internal/rooms/provider.go

// Package rooms resolves the room category of a controlled unit from the
// building inventory service. Lookups are cached with a TTL and every
// failure mode falls back to the default category; a missing inventory
// must never block a recommendation.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/breaker"
	"nrgchamp/recommender/internal/metrics"
)

// Config tunes the provider. An empty BaseURL disables remote lookups and
// every query answers with the default category.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Breaker  breaker.Config
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
}

type cacheEntry struct {
	category string
	exp      time.Time
}

// Provider implements engine.RoomCategoryProvider against the inventory
// HTTP API. Safe for concurrent use.
type Provider struct {
	cfg Config
	log *slog.Logger
	h   *http.Client
	brk *breaker.Breaker

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a provider. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.applyDefaults()
	return &Provider{
		cfg:   cfg,
		log:   logger.With(slog.String("component", "room_provider")),
		h:     &http.Client{Timeout: cfg.Timeout},
		brk:   breaker.New("room-inventory", cfg.Breaker, logger),
		cache: make(map[string]cacheEntry),
	}
}

type roomResponse struct {
	EntityID string `json:"entityId"`
	Category string `json:"category"`
}

// RoomCategory returns the entity's room category, or the default when
// the inventory is unavailable, slow, or answers nonsense.
func (p *Provider) RoomCategory(ctx context.Context, entityID string) string {
	if p.cfg.BaseURL == "" {
		return bands.DefaultRoomCategory
	}

	p.mu.RLock()
	entry, ok := p.cache[entityID]
	p.mu.RUnlock()
	if ok && time.Now().Before(entry.exp) {
		metrics.IncRoomLookup("hit")
		return entry.category
	}

	category, err := p.fetch(ctx, entityID)
	if err != nil {
		metrics.IncRoomLookup("fallback")
		p.log.Warn("room_lookup_failed", slog.String("entity", entityID), slog.Any("err", err))
		return bands.DefaultRoomCategory
	}
	metrics.IncRoomLookup("miss")

	p.mu.Lock()
	p.cache[entityID] = cacheEntry{category: category, exp: time.Now().Add(p.cfg.CacheTTL)}
	p.mu.Unlock()
	return category
}

func (p *Provider) fetch(ctx context.Context, entityID string) (string, error) {
	u, err := url.Parse(p.cfg.BaseURL + "/rooms/" + url.PathEscape(entityID))
	if err != nil {
		return "", err
	}

	var category string
	err = p.brk.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := p.h.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("inventory returned %d", resp.StatusCode)
		}
		var body roomResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
			return fmt.Errorf("decode room response: %w", err)
		}
		category = strings.TrimSpace(strings.ToLower(body.Category))
		if category == "" {
			return fmt.Errorf("inventory returned empty category")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return category, nil
}
