// v1
// internal/rooms/provider_test.go
package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"nrgchamp/recommender/internal/bands"
)

func TestLookupAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/rooms/unit-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(roomResponse{EntityID: "unit-1", Category: "Large"})
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	if got := p.RoomCategory(ctx, "unit-1"); got != "large" {
		t.Fatalf("category = %q, want large", got)
	}
	if got := p.RoomCategory(ctx, "unit-1"); got != "large" {
		t.Fatalf("cached category = %q, want large", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("backend hits = %d, want 1 (second lookup cached)", hits.Load())
	}
}

func TestCacheExpires(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(roomResponse{Category: "small"})
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, CacheTTL: time.Nanosecond}, nil)
	ctx := context.Background()
	p.RoomCategory(ctx, "unit-1")
	time.Sleep(time.Millisecond)
	p.RoomCategory(ctx, "unit-1")
	if hits.Load() != 2 {
		t.Fatalf("backend hits = %d, want 2 after TTL expiry", hits.Load())
	}
}

func TestFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, nil)
	if got := p.RoomCategory(context.Background(), "unit-1"); got != bands.DefaultRoomCategory {
		t.Fatalf("category = %q, want default on server error", got)
	}
}

func TestFallbackOnEmptyCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(roomResponse{Category: "  "})
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, nil)
	if got := p.RoomCategory(context.Background(), "unit-1"); got != bands.DefaultRoomCategory {
		t.Fatalf("category = %q, want default on empty category", got)
	}
}

func TestDisabledProviderUsesDefault(t *testing.T) {
	p := New(Config{}, nil)
	if got := p.RoomCategory(context.Background(), "unit-1"); got != bands.DefaultRoomCategory {
		t.Fatalf("category = %q, want default when no base url", got)
	}
}

func TestFallbackWhileBreakerOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL, CacheTTL: time.Nanosecond}
	cfg.Breaker.MaxFailures = 1
	p := New(cfg, nil)
	ctx := context.Background()

	p.RoomCategory(ctx, "unit-1")
	// Breaker now open: lookups must still answer with the default.
	if got := p.RoomCategory(ctx, "unit-1"); got != bands.DefaultRoomCategory {
		t.Fatalf("category = %q, want default while breaker open", got)
	}
}
