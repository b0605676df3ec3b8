// v1
// internal/learning/store.go
package learning

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"nrgchamp/recommender/internal/bands"
)

// ErrUnknownAction is returned when a reward names an adjustment outside
// the fixed action space.
var ErrUnknownAction = errors.New("adjustment outside the action space")

// Store owns all per-entity learning state. Mutations for a single entity
// are serialized by a per-entity lock; different entities proceed in
// parallel. The Store never hands out pointers into its own state.
type Store struct {
	params *Params
	log    *slog.Logger

	mu       sync.RWMutex
	entities map[string]*entityRecord
}

type entityRecord struct {
	mu sync.Mutex
	st *state
}

// NewStore builds an empty store bound to the shared parameters.
func NewStore(params *Params, logger *slog.Logger) (*Store, error) {
	if params == nil {
		return nil, errors.New("params must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		params:   params,
		log:      logger.With(slog.String("component", "learning_store")),
		entities: make(map[string]*entityRecord),
	}, nil
}

// Params exposes the shared learning parameters.
func (s *Store) Params() *Params { return s.params }

// record returns the entity record, creating it on first touch.
func (s *Store) record(entityID string) *entityRecord {
	s.mu.RLock()
	rec, ok := s.entities[entityID]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.entities[entityID]; ok {
		return rec
	}
	rec = &entityRecord{st: newState()}
	s.entities[entityID] = rec
	s.log.Info("entity_state_created", slog.String("entity", entityID))
	return rec
}

// QValues returns the Q-value for every action under the context,
// initializing the row to the optimistic default on first sight.
func (s *Store) QValues(entityID string, key bands.Key) [NumActions]float64 {
	rec := s.record(entityID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.st.contextStats(key).Q
}

// ContextActionVisits reports how often the action was rewarded under the
// context. Unknown actions report zero.
func (s *Store) ContextActionVisits(entityID string, key bands.Key, action Action) int {
	idx := action.Index()
	if idx < 0 {
		return 0
	}
	rec := s.record(entityID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cs, ok := rec.st.contexts[key]
	if !ok {
		return 0
	}
	return cs.Visits[idx]
}

// Counters returns the total and successful recommendation counts.
func (s *Store) Counters(entityID string) (total, successful int) {
	rec := s.record(entityID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.st.total, rec.st.successful
}

// UpdateResult reports the effect of one reward application.
type UpdateResult struct {
	OldQ    float64
	NewQ    float64
	Bias    float64
	Visits  int
	Epsilon float64
}

// Update applies one reward to the (context, action) cell:
//
//	newQ = oldQ + alpha*(reward - oldQ)
//
// It bumps the visit count and the recommendation counters, nudges the
// personalized bias (stronger toward accepted adjustments than away from
// rejected ones), appends to the capped adaptation history, and decays the
// shared exploration rate. Exactly one caller per armed monitoring window
// reaches this method; idempotence is the scheduler's concern.
func (s *Store) Update(entityID string, key bands.Key, action Action, reward float64) (UpdateResult, error) {
	idx := action.Index()
	if idx < 0 {
		return UpdateResult{}, fmt.Errorf("%w: %d", ErrUnknownAction, int(action))
	}

	rec := s.record(entityID)
	rec.mu.Lock()
	st := rec.st
	cs := st.contextStats(key)

	oldQ := cs.Q[idx]
	newQ := oldQ + s.params.Alpha()*(reward-oldQ)
	cs.Q[idx] = newQ
	cs.Visits[idx]++

	st.total++
	if reward > 0 {
		st.successful++
		st.bias = clampBias(st.bias + float64(action)*0.1)
	} else {
		st.bias = clampBias(st.bias - float64(action)*0.05)
	}

	st.history = append(st.history, AdaptationEvent{
		Adjustment: int(action),
		Reward:     reward,
		Bias:       st.bias,
		At:         time.Now().UTC(),
	})
	if len(st.history) > HistoryCap {
		st.history = st.history[len(st.history)-HistoryCap:]
	}

	res := UpdateResult{OldQ: oldQ, NewQ: newQ, Bias: st.bias, Visits: cs.Visits[idx]}
	rec.mu.Unlock()

	res.Epsilon = s.params.Decay()

	s.log.Info("q_value_updated",
		slog.String("entity", entityID),
		slog.String("context", key.String()),
		slog.Int("adjustment", int(action)),
		slog.Float64("reward", reward),
		slog.Float64("old_q", res.OldQ),
		slog.Float64("new_q", res.NewQ),
		slog.Float64("epsilon", res.Epsilon),
	)
	return res, nil
}

// Snapshot returns a defensive copy of one entity's state. The second
// return reports whether the entity was known.
func (s *Store) Snapshot(entityID string) (EntitySnapshot, bool) {
	s.mu.RLock()
	rec, ok := s.entities[entityID]
	s.mu.RUnlock()
	if !ok {
		return EntitySnapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.st.snapshot(entityID), true
}

// SnapshotAll captures every entity plus the shared exploration rate.
func (s *Store) SnapshotAll() Snapshot {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entities))
	recs := make([]*entityRecord, 0, len(s.entities))
	for id, rec := range s.entities {
		ids = append(ids, id)
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	snap := Snapshot{
		Epsilon:  s.params.Epsilon(),
		Entities: make(map[string]EntitySnapshot, len(ids)),
		TakenAt:  time.Now().UTC(),
	}
	for i, rec := range recs {
		rec.mu.Lock()
		snap.Entities[ids[i]] = rec.st.snapshot(ids[i])
		rec.mu.Unlock()
	}
	return snap
}

// Restore replaces the store contents from a persisted snapshot. Meant for
// startup, before any traffic is flowing.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.entities = make(map[string]*entityRecord, len(snap.Entities))
	for id, es := range snap.Entities {
		st := newState()
		st.total = es.TotalRecommendations
		st.successful = es.SuccessfulRecommendations
		st.bias = clampBias(es.Bias)
		if len(es.History) > HistoryCap {
			es.History = es.History[len(es.History)-HistoryCap:]
		}
		st.history = append(st.history, es.History...)
		for k, cs := range es.Contexts {
			copied := cs
			st.contexts[k] = &copied
		}
		s.entities[id] = &entityRecord{st: st}
	}
	s.mu.Unlock()

	s.params.Restore(snap.Epsilon)
	s.log.Info("learning_state_restored",
		slog.Int("entities", len(snap.Entities)),
		slog.Float64("epsilon", s.params.Epsilon()),
	)
}

// Reset clears one entity's learning state. Safe to call repeatedly.
func (s *Store) Reset(entityID string) {
	s.mu.Lock()
	delete(s.entities, entityID)
	s.mu.Unlock()
	s.log.Info("entity_state_reset", slog.String("entity", entityID))
}

// ResetAll clears every entity and returns the exploration rate to its
// initial value.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.entities = make(map[string]*entityRecord)
	s.mu.Unlock()
	s.params.Reset()
	s.log.Info("all_state_reset")
}

// EntityIDs lists the known entities.
func (s *Store) EntityIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entities))
	for id := range s.entities {
		out = append(out, id)
	}
	return out
}

// ExploredContexts counts the distinct contexts seen across all entities,
// or for one entity when an id is supplied.
func (s *Store) ExploredContexts(entityID string) int {
	if entityID != "" {
		snap, ok := s.Snapshot(entityID)
		if !ok {
			return 0
		}
		return len(snap.Contexts)
	}
	s.mu.RLock()
	recs := make([]*entityRecord, 0, len(s.entities))
	for _, rec := range s.entities {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	n := 0
	for _, rec := range recs {
		rec.mu.Lock()
		n += len(rec.st.contexts)
		rec.mu.Unlock()
	}
	return n
}
