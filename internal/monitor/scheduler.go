// v1
// internal/monitor/scheduler.go

// Package monitor manages the delayed-reward monitoring windows. A window
// is armed when a recommendation is applied and resolved exactly once:
// either the countdown expires (implicit acceptance, positive reward) or a
// manual adjustment lands first (override, negative reward). The two paths
// race, so resolution is claimed with a compare-and-swap on the window
// state; the losing side performs no further action.
package monitor

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
	"nrgchamp/recommender/internal/metrics"
)

// Reward values applied on resolution.
const (
	RewardAccepted   = 0.5
	RewardOverridden = -0.5
)

// DefaultWindowDuration is the countdown armed for each applied
// recommendation.
const DefaultWindowDuration = time.Hour

// Pending carries the applied recommendation a window watches over. The
// scheduler references it but never mutates it.
type Pending struct {
	RecommendationID string
	EntityID         string
	Context          bands.Key
	Adjustment       learning.Action
	TargetC          float64
	CreatedAt        time.Time
}

// Outcome names the terminal state of a resolved window.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeOverridden Outcome = "overridden"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeCancelled  Outcome = "cancelled"
)

// Resolution reports how a window ended. Update is only populated when a
// reward was applied (accepted or overridden outcomes).
type Resolution struct {
	Pending    Pending
	Outcome    Outcome
	Reward     float64
	Update     learning.UpdateResult
	ResolvedAt time.Time
}

// RewardSink receives the reward for a resolved window. Implemented by
// the learning store.
type RewardSink interface {
	Update(entityID string, key bands.Key, action learning.Action, reward float64) (learning.UpdateResult, error)
}

// Window states. Active is the zero value so a fresh window is claimable.
const (
	windowActive int32 = iota
	windowAccepted
	windowOverridden
	windowSuperseded
	windowCancelled
)

type window struct {
	pending  Pending
	deadline time.Time
	state    atomic.Int32
	timer    *time.Timer
}

// claim attempts the Active -> to transition. Exactly one claim per window
// ever succeeds.
func (w *window) claim(to int32) bool {
	return w.state.CompareAndSwap(windowActive, to)
}

// Scheduler owns all monitoring windows, at most one active per entity.
// Safe for concurrent use.
type Scheduler struct {
	sink       RewardSink
	log        *slog.Logger
	duration   time.Duration
	onResolved func(Resolution)

	mu      sync.Mutex
	windows map[string]*window
}

// NewScheduler wires a scheduler against the reward sink. The onResolved
// hook (optional) fires after every terminal transition, outside the
// scheduler lock.
func NewScheduler(sink RewardSink, logger *slog.Logger, duration time.Duration, onResolved func(Resolution)) (*Scheduler, error) {
	if sink == nil {
		return nil, errors.New("reward sink must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if duration <= 0 {
		duration = DefaultWindowDuration
	}
	return &Scheduler{
		sink:       sink,
		log:        logger.With(slog.String("component", "reward_scheduler")),
		duration:   duration,
		onResolved: onResolved,
		windows:    make(map[string]*window),
	}, nil
}

// Arm starts a monitoring window for the applied recommendation. An
// already-active window for the same entity is explicitly superseded: its
// timer is stopped, no reward is applied for it, and the supersession is
// surfaced through logs, metrics and the resolution hook rather than
// leaking silently.
func (s *Scheduler) Arm(p Pending) error {
	if p.EntityID == "" {
		return errors.New("entity id must not be empty")
	}
	if p.Adjustment.Index() < 0 {
		return learning.ErrUnknownAction
	}

	var superseded *Resolution

	s.mu.Lock()
	if prev, ok := s.windows[p.EntityID]; ok {
		if prev.claim(windowSuperseded) {
			prev.timer.Stop()
			res := Resolution{
				Pending:    prev.pending,
				Outcome:    OutcomeSuperseded,
				ResolvedAt: time.Now().UTC(),
			}
			superseded = &res
		}
		delete(s.windows, p.EntityID)
	}

	w := &window{pending: p, deadline: time.Now().Add(s.duration)}
	w.timer = time.AfterFunc(s.duration, func() { s.expire(w) })
	s.windows[p.EntityID] = w
	active := len(s.windows)
	s.mu.Unlock()

	metrics.SetActiveWindows(active)
	if superseded != nil {
		metrics.IncWindowResolution(string(OutcomeSuperseded))
		s.log.Warn("window_superseded",
			slog.String("entity", p.EntityID),
			slog.String("recommendation", superseded.Pending.RecommendationID),
		)
		s.notify(*superseded)
	}
	s.log.Info("window_armed",
		slog.String("entity", p.EntityID),
		slog.String("recommendation", p.RecommendationID),
		slog.Int("adjustment", int(p.Adjustment)),
		slog.Time("deadline", w.deadline),
	)
	return nil
}

// Override resolves the entity's active window as overridden and applies
// the negative reward. Returns false when there is no active window or the
// timeout path won the claim first.
func (s *Scheduler) Override(entityID string) (Resolution, bool) {
	s.mu.Lock()
	w, ok := s.windows[entityID]
	s.mu.Unlock()
	if !ok {
		return Resolution{}, false
	}
	if !w.claim(windowOverridden) {
		return Resolution{}, false
	}
	w.timer.Stop()
	return s.finishWithReward(w, OutcomeOverridden, RewardOverridden), true
}

// expire is the timer callback: an untouched window means the user kept
// the recommended setpoint, which counts as acceptance.
func (s *Scheduler) expire(w *window) {
	if !w.claim(windowAccepted) {
		return
	}
	s.finishWithReward(w, OutcomeAccepted, RewardAccepted)
}

func (s *Scheduler) finishWithReward(w *window, outcome Outcome, reward float64) Resolution {
	s.remove(w)

	res := Resolution{
		Pending:    w.pending,
		Outcome:    outcome,
		Reward:     reward,
		ResolvedAt: time.Now().UTC(),
	}
	update, err := s.sink.Update(w.pending.EntityID, w.pending.Context, w.pending.Adjustment, reward)
	if err != nil {
		s.log.Error("reward_apply_failed",
			slog.String("entity", w.pending.EntityID),
			slog.String("outcome", string(outcome)),
			slog.Any("err", err),
		)
	} else {
		res.Update = update
		metrics.SetEpsilon(update.Epsilon)
	}

	metrics.IncWindowResolution(string(outcome))
	s.log.Info("window_resolved",
		slog.String("entity", w.pending.EntityID),
		slog.String("recommendation", w.pending.RecommendationID),
		slog.String("outcome", string(outcome)),
		slog.Float64("reward", reward),
	)
	s.notify(res)
	return res
}

// Cancel discards the entity's active window without applying a reward.
// Used by learning-data resets. Safe to call when no window exists.
func (s *Scheduler) Cancel(entityID string) bool {
	s.mu.Lock()
	w, ok := s.windows[entityID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !w.claim(windowCancelled) {
		return false
	}
	w.timer.Stop()
	s.remove(w)

	res := Resolution{Pending: w.pending, Outcome: OutcomeCancelled, ResolvedAt: time.Now().UTC()}
	metrics.IncWindowResolution(string(OutcomeCancelled))
	s.log.Info("window_cancelled", slog.String("entity", entityID))
	s.notify(res)
	return true
}

// CancelAll discards every active window, returning how many were
// cancelled. Must run before a system-wide state reset.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// Active reports whether the entity has an unresolved window.
func (s *Scheduler) Active(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[entityID]
	return ok && w.state.Load() == windowActive
}

// ActiveCount returns the number of armed windows.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// remove deletes the window from the map if it is still the entity's
// current one; a superseding Arm may already have replaced it.
func (s *Scheduler) remove(w *window) {
	s.mu.Lock()
	if cur, ok := s.windows[w.pending.EntityID]; ok && cur == w {
		delete(s.windows, w.pending.EntityID)
	}
	active := len(s.windows)
	s.mu.Unlock()
	metrics.SetActiveWindows(active)
}

func (s *Scheduler) notify(res Resolution) {
	if s.onResolved != nil {
		s.onResolved(res)
	}
}
