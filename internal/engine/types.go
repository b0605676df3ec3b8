// v1
// internal/engine/types.go
package engine

import (
	"context"
	"time"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
)

// EfficiencyContext carries the power-consumption readings the caller may
// supply alongside a recommendation request. Its absence degrades the
// energy-saving estimate to zero but never blocks a recommendation.
type EfficiencyContext struct {
	PowerW    float64 `json:"powerW"`
	EnergyKWh float64 `json:"energyKWh"`
}

// Recommendation is the ephemeral result of one request. It is not
// persisted on its own; it is only referenced while a monitoring window
// is open for it.
type Recommendation struct {
	ID               string    `json:"id"`
	EntityID         string    `json:"entityId"`
	Adjustment       int       `json:"adjustment"`
	TargetC          float64   `json:"targetC"`
	Confidence       float64   `json:"confidence"`
	EstimatedSavings float64   `json:"estimatedSavings"`
	Context          bands.Key `json:"context"`
	Explored         bool      `json:"explored"`
	Fallback         bool      `json:"fallback"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Statistics summarizes learning progress for one entity or the whole
// engine.
type Statistics struct {
	EntityID                  string  `json:"entityId,omitempty"`
	Entities                  int     `json:"entities,omitempty"`
	TotalRecommendations      int     `json:"totalRecommendations"`
	SuccessfulRecommendations int     `json:"successfulRecommendations"`
	SuccessRate               float64 `json:"successRate"`
	ExplorationRate           float64 `json:"explorationRate"`
	ExploredContexts          int     `json:"exploredContexts"`
	ActiveWindows             int     `json:"activeWindows"`
}

// RecommendationAppliedEvent signals that the surrounding application
// pushed a recommended setpoint to the device.
type RecommendationAppliedEvent struct {
	EntityID        string    `json:"entityId"`
	RecommendedTemp float64   `json:"recommendedTemp"`
	AppliedBy       string    `json:"appliedBy"`
	At              time.Time `json:"at"`
}

// ManualAdjustmentEvent signals that a user changed the setpoint by hand.
type ManualAdjustmentEvent struct {
	EntityID     string    `json:"entityId"`
	NewTemp      float64   `json:"newTemp"`
	PreviousTemp float64   `json:"previousTemp"`
	ChangedBy    string    `json:"changedBy"`
	At           time.Time `json:"at"`
}

// EntitySelectedEvent is informational only.
type EntitySelectedEvent struct {
	EntityID string    `json:"entityId"`
	At       time.Time `json:"at"`
}

// ApplicationRecord is sent to the activity logger when a recommendation
// is applied.
type ApplicationRecord struct {
	RecommendationID string    `json:"recommendationId"`
	EntityID         string    `json:"entityId"`
	TargetC          float64   `json:"targetC"`
	Adjustment       int       `json:"adjustment"`
	AppliedBy        string    `json:"appliedBy"`
	At               time.Time `json:"at"`
}

// AdjustmentRecord is sent to the activity logger on every manual change.
type AdjustmentRecord struct {
	EntityID               string    `json:"entityId"`
	NewTemp                float64   `json:"newTemp"`
	PreviousTemp           float64   `json:"previousTemp"`
	ChangedBy              string    `json:"changedBy"`
	OverrodeRecommendation bool      `json:"overrodeRecommendation"`
	At                     time.Time `json:"at"`
}

// SuccessRecord is sent when a monitoring window expires untouched.
type SuccessRecord struct {
	RecommendationID string    `json:"recommendationId"`
	EntityID         string    `json:"entityId"`
	Adjustment       int       `json:"adjustment"`
	NewQ             float64   `json:"newQ"`
	At               time.Time `json:"at"`
}

// ActivityLogger receives engine activity records. Implementations must
// be fire-and-forget: the engine never waits on them and tolerates loss.
type ActivityLogger interface {
	LogRecommendationApplication(ctx context.Context, rec ApplicationRecord)
	LogManualAdjustment(ctx context.Context, rec AdjustmentRecord)
	LogSuccessfulRecommendation(ctx context.Context, rec SuccessRecord)
}

// NopActivityLogger discards everything. Used when activity publishing is
// disabled and in tests.
type NopActivityLogger struct{}

func (NopActivityLogger) LogRecommendationApplication(context.Context, ApplicationRecord) {}
func (NopActivityLogger) LogManualAdjustment(context.Context, AdjustmentRecord)           {}
func (NopActivityLogger) LogSuccessfulRecommendation(context.Context, SuccessRecord)      {}

// RoomCategoryProvider resolves the room category for an entity. A
// provider that cannot answer returns an empty string and the engine
// falls back to the default category.
type RoomCategoryProvider interface {
	RoomCategory(ctx context.Context, entityID string) string
}

// StaticRoomProvider always answers with a fixed category.
type StaticRoomProvider struct {
	Category string
}

func (p StaticRoomProvider) RoomCategory(context.Context, string) string { return p.Category }

// SnapshotGateway abstracts learning-state persistence. Save must not
// block the caller.
type SnapshotGateway interface {
	Load(ctx context.Context) learning.Snapshot
	Save(snap learning.Snapshot) error
}

// nopGateway keeps the engine functional when persistence is not wired.
type nopGateway struct{}

func (nopGateway) Load(context.Context) learning.Snapshot {
	return learning.Snapshot{Entities: make(map[string]learning.EntitySnapshot)}
}
func (nopGateway) Save(learning.Snapshot) error { return nil }
