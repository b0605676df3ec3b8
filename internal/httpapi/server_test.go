// v1
// internal/httpapi/server_test.go
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nrgchamp/recommender/internal/engine"
)

type fakeEngine struct {
	lastEntity  string
	lastOutdoor float64
	lastTarget  float64
	lastEff     *engine.EfficiencyContext
	resetCalls  []string
	rec         engine.Recommendation
	stats       engine.Statistics
}

func (f *fakeEngine) GetRecommendation(_ context.Context, entityID string, outdoorC, currentTargetC float64, eff *engine.EfficiencyContext) engine.Recommendation {
	f.lastEntity = entityID
	f.lastOutdoor = outdoorC
	f.lastTarget = currentTargetC
	f.lastEff = eff
	return f.rec
}

func (f *fakeEngine) Statistics(entityID string) engine.Statistics {
	f.lastEntity = entityID
	return f.stats
}

func (f *fakeEngine) ResetLearningData(entityID string) {
	f.resetCalls = append(f.resetCalls, entityID)
}

func newTestServer(t *testing.T, eng RecommendationEngine) *Server {
	t.Helper()
	s, err := NewServer(Config{}, eng, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("server init failed: %v", err)
	}
	return s
}

func TestPostRecommendation(t *testing.T) {
	eng := &fakeEngine{rec: engine.Recommendation{ID: "rec-1", EntityID: "unit-1", TargetC: 24, Confidence: 0.5}}
	s := newTestServer(t, eng)

	body := `{"entityId":"unit-1","outdoorTempC":30,"currentTargetC":25,"efficiency":{"powerW":900,"energyKWh":1.2}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendation", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rec engine.Recommendation
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rec.ID != "rec-1" || rec.TargetC != 24 {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
	if eng.lastOutdoor != 30 || eng.lastTarget != 25 {
		t.Fatalf("engine got outdoor=%v target=%v", eng.lastOutdoor, eng.lastTarget)
	}
	if eng.lastEff == nil || eng.lastEff.PowerW != 900 {
		t.Fatalf("efficiency context not forwarded: %+v", eng.lastEff)
	}
}

func TestPostRecommendationRejectsBadInput(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing entity", `{"outdoorTempC":20,"currentTargetC":24}`},
		{"blank entity", `{"entityId":"  ","outdoorTempC":20,"currentTargetC":24}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendation", strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		s.router().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

func TestGetStatistics(t *testing.T) {
	eng := &fakeEngine{stats: engine.Statistics{TotalRecommendations: 7, SuccessRate: 0.5}}
	s := newTestServer(t, eng)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statistics?entity=unit-3", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if eng.lastEntity != "unit-3" {
		t.Fatalf("entity filter = %q, want unit-3", eng.lastEntity)
	}
	var stats engine.Statistics
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalRecommendations != 7 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestPostReset(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(t, eng)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reset?entity=unit-9", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(eng.resetCalls) != 1 || eng.resetCalls[0] != "unit-9" {
		t.Fatalf("reset calls = %v, want [unit-9]", eng.resetCalls)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recommendation", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before ready", w.Code)
	}

	s.SetReady(true)
	w = httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 once ready", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("liveness status = %d, want 200", w.Code)
	}
}
