// v1
// internal/httpapi/router.go
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrgchamp/recommender/internal/engine"
)

// RecommendationEngine exposes the subset of the engine used by the HTTP
// handlers. A small interface keeps the router testable.
type RecommendationEngine interface {
	GetRecommendation(ctx context.Context, entityID string, outdoorC, currentTargetC float64, efficiency *engine.EfficiencyContext) engine.Recommendation
	Statistics(entityID string) engine.Statistics
	ResetLearningData(entityID string)
}

// recommendationRequest is the POST /api/v1/recommendation body.
type recommendationRequest struct {
	EntityID       string                    `json:"entityId"`
	OutdoorTempC   float64                   `json:"outdoorTempC"`
	CurrentTargetC float64                   `json:"currentTargetC"`
	Efficiency     *engine.EfficiencyContext `json:"efficiency,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/recommendation", s.postRecommendation).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/statistics", s.getStatistics).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/reset", s.postReset).Methods(http.MethodPost)
	r.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.getReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return handlers.LoggingHandler(os.Stdout, r)
}

func (s *Server) postRecommendation(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.EntityID) == "" {
		writeError(w, http.StatusBadRequest, "entityId is required")
		return
	}
	if math.IsNaN(req.OutdoorTempC) || math.IsNaN(req.CurrentTargetC) {
		writeError(w, http.StatusBadRequest, "temperatures must be numbers")
		return
	}

	rec := s.engine.GetRecommendation(r.Context(), req.EntityID, req.OutdoorTempC, req.CurrentTargetC, req.Efficiency)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	entityID := strings.TrimSpace(r.URL.Query().Get("entity"))
	writeJSON(w, http.StatusOK, s.engine.Statistics(entityID))
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	entityID := strings.TrimSpace(r.URL.Query().Get("entity"))
	s.engine.ResetLearningData(entityID)
	s.log.Info("learning_data_reset", slog.String("entity", entityID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) getReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT_READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
