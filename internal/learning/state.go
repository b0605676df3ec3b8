// v1
// internal/learning/state.go
package learning

import (
	"time"

	"nrgchamp/recommender/internal/bands"
)

const (
	// OptimisticQ seeds unseen context/action cells so fresh actions get
	// tried before the estimates settle.
	OptimisticQ = 0.5

	// BiasMin and BiasMax bound the per-entity adjustment bias.
	BiasMin = -2.0
	BiasMax = 2.0

	// HistoryCap bounds the adaptation history; the oldest entry is
	// dropped first.
	HistoryCap = 100
)

// ContextStats holds the learned values for one context, one slot per
// action in enumeration order.
type ContextStats struct {
	Q      [NumActions]float64
	Visits [NumActions]int
}

func newContextStats() *ContextStats {
	cs := &ContextStats{}
	for i := range cs.Q {
		cs.Q[i] = OptimisticQ
	}
	return cs
}

// AdaptationEvent records one reward application for diagnostics.
type AdaptationEvent struct {
	Adjustment int       `json:"adjustment"`
	Reward     float64   `json:"reward"`
	Bias       float64   `json:"bias"`
	At         time.Time `json:"at"`
}

// state is the mutable per-entity learning record. It is owned exclusively
// by the Store and only ever touched under the entity's lock.
type state struct {
	contexts   map[bands.Key]*ContextStats
	total      int
	successful int
	bias       float64
	history    []AdaptationEvent
}

func newState() *state {
	return &state{contexts: make(map[bands.Key]*ContextStats)}
}

func (st *state) contextStats(key bands.Key) *ContextStats {
	cs, ok := st.contexts[key]
	if !ok {
		cs = newContextStats()
		st.contexts[key] = cs
	}
	return cs
}

// EntitySnapshot is a defensive copy of one entity's learning state, used
// by statistics and persistence.
type EntitySnapshot struct {
	EntityID                  string
	Contexts                  map[bands.Key]ContextStats
	TotalRecommendations      int
	SuccessfulRecommendations int
	Bias                      float64
	History                   []AdaptationEvent
}

// Snapshot is a point-in-time copy of the whole store plus the shared
// exploration rate.
type Snapshot struct {
	Epsilon  float64
	Entities map[string]EntitySnapshot
	TakenAt  time.Time
}

func (st *state) snapshot(entityID string) EntitySnapshot {
	out := EntitySnapshot{
		EntityID:                  entityID,
		Contexts:                  make(map[bands.Key]ContextStats, len(st.contexts)),
		TotalRecommendations:      st.total,
		SuccessfulRecommendations: st.successful,
		Bias:                      st.bias,
		History:                   append([]AdaptationEvent(nil), st.history...),
	}
	for k, cs := range st.contexts {
		out.Contexts[k] = *cs
	}
	return out
}

func clampBias(v float64) float64 {
	if v < BiasMin {
		return BiasMin
	}
	if v > BiasMax {
		return BiasMax
	}
	return v
}
