// v1
// internal/engine/engine.go

// Package engine is the temperature recommendation engine: a contextual
// bandit that learns, per controlled unit, which thermostat adjustment the
// user is most likely to accept. Feedback is implicit and delayed: an
// applied recommendation arms a monitoring window, and either the window
// expires untouched (acceptance) or a manual change lands first
// (override). Collaborators are injected; the engine holds no globals.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
	"nrgchamp/recommender/internal/metrics"
	"nrgchamp/recommender/internal/monitor"
	"nrgchamp/recommender/internal/policy"
)

// Fallback recommendation constants. The fallback targets a mild offset
// from outdoor so it is never a wild setpoint.
const (
	fallbackConfidence = 0.3
	fallbackOffsetC    = 5.0
	fallbackMinC       = 22.0
	fallbackMaxC       = 26.0
)

var errNilStore = errors.New("learning store must not be nil")

// Config tunes the engine.
type Config struct {
	// WindowDuration is the monitoring countdown per applied
	// recommendation. Zero selects the 1h default.
	WindowDuration time.Duration
	// Seed fixes the exploration source; zero seeds from the clock.
	Seed int64
}

// Engine coordinates discretization, policy, reward scheduling and
// persistence. Safe for concurrent use.
type Engine struct {
	log       *slog.Logger
	store     *learning.Store
	disc      *bands.Discretizer
	selector  *policy.Selector
	scheduler *monitor.Scheduler
	gateway   SnapshotGateway
	activity  ActivityLogger
	rooms     RoomCategoryProvider

	mu      sync.Mutex
	pending map[string]Recommendation // entity id -> last issued recommendation
}

// New wires the engine. Store and discretizer are required; gateway,
// activity logger and room provider fall back to no-op implementations so
// a partially wired engine still functions.
func New(cfg Config, store *learning.Store, disc *bands.Discretizer, gateway SnapshotGateway, activity ActivityLogger, rooms RoomCategoryProvider, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errNilStore
	}
	if disc == nil {
		disc = bands.NewDiscretizer(nil, nil)
	}
	if gateway == nil {
		gateway = nopGateway{}
	}
	if activity == nil {
		activity = NopActivityLogger{}
	}
	if rooms == nil {
		rooms = StaticRoomProvider{Category: bands.DefaultRoomCategory}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		log:      logger.With(slog.String("component", "recommendation_engine")),
		store:    store,
		disc:     disc,
		selector: policy.NewSelector(seed),
		gateway:  gateway,
		activity: activity,
		rooms:    rooms,
		pending:  make(map[string]Recommendation),
	}
	scheduler, err := monitor.NewScheduler(store, logger, cfg.WindowDuration, e.onWindowResolved)
	if err != nil {
		return nil, err
	}
	e.scheduler = scheduler
	return e, nil
}

// Initialize loads persisted learning state. Persistence failures leave
// the engine fresh but functional.
func (e *Engine) Initialize(ctx context.Context) {
	snap := e.gateway.Load(ctx)
	if len(snap.Entities) > 0 || snap.Epsilon > 0 {
		e.store.Restore(snap)
	}
	metrics.SetEpsilon(e.store.Params().Epsilon())
	e.log.Info("engine_initialized",
		slog.Int("entities", len(snap.Entities)),
		slog.Float64("epsilon", e.store.Params().Epsilon()),
	)
}

// GetRecommendation is total: it always returns a usable Recommendation.
// Malformed inputs and internal failures route to the deterministic
// fallback instead of an error.
func (e *Engine) GetRecommendation(ctx context.Context, entityID string, outdoorC, currentTargetC float64, efficiency *EfficiencyContext) (rec Recommendation) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("recommendation_panic", slog.Any("panic", r))
			rec = e.fallback(entityID, outdoorC)
		}
	}()

	entityID = strings.TrimSpace(entityID)
	if entityID == "" || !validTemp(outdoorC) || !validTemp(currentTargetC) {
		e.log.Warn("recommendation_request_invalid",
			slog.String("entity", entityID),
			slog.Float64("outdoor_c", outdoorC),
			slog.Float64("target_c", currentTargetC),
		)
		return e.fallback(entityID, outdoorC)
	}

	room := e.rooms.RoomCategory(ctx, entityID)
	key := e.disc.Key(outdoorC, currentTargetC, room)
	q := e.store.QValues(entityID, key)
	epsilon := e.store.Params().Epsilon()
	action, explored := e.selector.SelectAction(q, epsilon)

	visits := e.store.ContextActionVisits(entityID, key, action)
	total, successful := e.store.Counters(entityID)

	rec = Recommendation{
		ID:               uuid.New().String(),
		EntityID:         entityID,
		Adjustment:       int(action),
		TargetC:          policy.ApplyAdjustment(currentTargetC, action),
		Confidence:       policy.Confidence(visits, total, successful),
		EstimatedSavings: policy.EnergySavings(currentTargetC, outdoorC, action, efficiency != nil),
		Context:          key,
		Explored:         explored,
		CreatedAt:        time.Now().UTC(),
	}

	e.mu.Lock()
	e.pending[entityID] = rec
	e.mu.Unlock()

	mode := "exploit"
	if explored {
		mode = "explore"
	}
	metrics.IncRecommendation(mode)
	e.log.Info("recommendation_issued",
		slog.String("entity", entityID),
		slog.String("id", rec.ID),
		slog.String("context", key.String()),
		slog.Int("adjustment", rec.Adjustment),
		slog.Float64("target_c", rec.TargetC),
		slog.Float64("confidence", rec.Confidence),
		slog.Bool("explored", explored),
	)
	return rec
}

// fallback builds the deterministic degraded recommendation.
func (e *Engine) fallback(entityID string, outdoorC float64) Recommendation {
	target := outdoorC + fallbackOffsetC
	if !validTemp(outdoorC) {
		target = fallbackMinC
	}
	if target < fallbackMinC {
		target = fallbackMinC
	}
	if target > fallbackMaxC {
		target = fallbackMaxC
	}
	metrics.IncRecommendation("fallback")
	return Recommendation{
		ID:         uuid.New().String(),
		EntityID:   strings.TrimSpace(entityID),
		Adjustment: 0,
		TargetC:    target,
		Confidence: fallbackConfidence,
		Fallback:   true,
		CreatedAt:  time.Now().UTC(),
	}
}

// HandleRecommendationApplied arms the monitoring window for the entity's
// pending recommendation. Without a pending recommendation (for example
// after a restart) the event is logged and dropped; there is nothing to
// attribute a reward to.
func (e *Engine) HandleRecommendationApplied(ctx context.Context, ev RecommendationAppliedEvent) {
	e.mu.Lock()
	rec, ok := e.pending[ev.EntityID]
	if ok {
		delete(e.pending, ev.EntityID)
	}
	e.mu.Unlock()

	if !ok {
		e.log.Warn("applied_without_pending", slog.String("entity", ev.EntityID))
		return
	}

	err := e.scheduler.Arm(monitor.Pending{
		RecommendationID: rec.ID,
		EntityID:         rec.EntityID,
		Context:          rec.Context,
		Adjustment:       learning.Action(rec.Adjustment),
		TargetC:          rec.TargetC,
		CreatedAt:        rec.CreatedAt,
	})
	if err != nil {
		e.log.Error("window_arm_failed", slog.String("entity", ev.EntityID), slog.Any("err", err))
		return
	}

	e.activity.LogRecommendationApplication(ctx, ApplicationRecord{
		RecommendationID: rec.ID,
		EntityID:         rec.EntityID,
		TargetC:          rec.TargetC,
		Adjustment:       rec.Adjustment,
		AppliedBy:        ev.AppliedBy,
		At:               eventTime(ev.At),
	})
}

// HandleManualAdjustment may resolve the entity's active window as an
// override. The adjustment itself is always logged.
func (e *Engine) HandleManualAdjustment(ctx context.Context, ev ManualAdjustmentEvent) {
	_, claimed := e.scheduler.Override(ev.EntityID)
	e.activity.LogManualAdjustment(ctx, AdjustmentRecord{
		EntityID:               ev.EntityID,
		NewTemp:                ev.NewTemp,
		PreviousTemp:           ev.PreviousTemp,
		ChangedBy:              ev.ChangedBy,
		OverrodeRecommendation: claimed,
		At:                     eventTime(ev.At),
	})
}

// HandleEntitySelected is informational only.
func (e *Engine) HandleEntitySelected(_ context.Context, ev EntitySelectedEvent) {
	e.log.Info("entity_selected", slog.String("entity", ev.EntityID))
}

// onWindowResolved runs after every terminal window transition, outside
// the scheduler lock.
func (e *Engine) onWindowResolved(res monitor.Resolution) {
	switch res.Outcome {
	case monitor.OutcomeAccepted:
		e.activity.LogSuccessfulRecommendation(context.Background(), SuccessRecord{
			RecommendationID: res.Pending.RecommendationID,
			EntityID:         res.Pending.EntityID,
			Adjustment:       int(res.Pending.Adjustment),
			NewQ:             res.Update.NewQ,
			At:               res.ResolvedAt,
		})
		e.persist()
	case monitor.OutcomeOverridden:
		e.persist()
	}
}

// persist snapshots the store and hands it to the gateway. Failures leave
// the engine running in degraded, unpersisted mode.
func (e *Engine) persist() {
	snap := e.store.SnapshotAll()
	if err := e.gateway.Save(snap); err != nil {
		e.log.Warn("snapshot_save_unavailable", slog.Any("err", err))
	}
}

// Statistics reports learning progress. An empty entity id aggregates
// across all entities.
func (e *Engine) Statistics(entityID string) Statistics {
	epsilon := e.store.Params().Epsilon()
	if entityID != "" {
		snap, ok := e.store.Snapshot(entityID)
		stats := Statistics{
			EntityID:        entityID,
			ExplorationRate: epsilon,
		}
		if ok {
			stats.TotalRecommendations = snap.TotalRecommendations
			stats.SuccessfulRecommendations = snap.SuccessfulRecommendations
			stats.ExploredContexts = len(snap.Contexts)
		}
		stats.SuccessRate = successRate(stats.TotalRecommendations, stats.SuccessfulRecommendations)
		if e.scheduler.Active(entityID) {
			stats.ActiveWindows = 1
		}
		return stats
	}

	stats := Statistics{ExplorationRate: epsilon, ActiveWindows: e.scheduler.ActiveCount()}
	ids := e.store.EntityIDs()
	stats.Entities = len(ids)
	for _, id := range ids {
		snap, ok := e.store.Snapshot(id)
		if !ok {
			continue
		}
		stats.TotalRecommendations += snap.TotalRecommendations
		stats.SuccessfulRecommendations += snap.SuccessfulRecommendations
		stats.ExploredContexts += len(snap.Contexts)
	}
	stats.SuccessRate = successRate(stats.TotalRecommendations, stats.SuccessfulRecommendations)
	return stats
}

// ResetLearningData clears learning state for one entity, or everything
// when the id is empty. Active monitoring windows are cancelled first so
// no timer leaks past the reset. Idempotent.
func (e *Engine) ResetLearningData(entityID string) {
	if entityID == "" {
		cancelled := e.scheduler.CancelAll()
		e.store.ResetAll()
		e.mu.Lock()
		e.pending = make(map[string]Recommendation)
		e.mu.Unlock()
		metrics.SetEpsilon(e.store.Params().Epsilon())
		e.log.Info("learning_data_reset", slog.Int("windows_cancelled", cancelled))
	} else {
		e.scheduler.Cancel(entityID)
		e.store.Reset(entityID)
		e.mu.Lock()
		delete(e.pending, entityID)
		e.mu.Unlock()
		e.log.Info("learning_data_reset", slog.String("entity", entityID))
	}
	e.persist()
}

func successRate(total, successful int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total)
}

func validTemp(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -80 && v <= 80
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
