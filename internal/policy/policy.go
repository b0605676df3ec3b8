// v1
// internal/policy/policy.go

// Package policy implements action selection and scoring for the
// recommendation engine. The functions here are pure given their inputs;
// the only state is the seeded random source inside Selector.
package policy

import (
	"math"
	"math/rand"
	"sync"

	"nrgchamp/recommender/internal/learning"
)

// Confidence bounds for any recommendation we hand out.
const (
	ConfidenceMin = 0.1
	ConfidenceMax = 0.95
)

// Thermostat setpoint bounds in Celsius.
const (
	TargetMinC = 16.0
	TargetMaxC = 30.0
)

// MaxSavingsFraction caps the estimated energy saving at 30%.
const MaxSavingsFraction = 0.30

// Selector picks actions epsilon-greedily. Safe for concurrent use; the
// random source is guarded because recommendation requests can arrive in
// parallel.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector seeds the exploration source. Tests pass a fixed seed for
// reproducible draws.
func NewSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// SelectAction returns the chosen action and whether the draw explored.
// With probability epsilon a uniformly random action is taken; otherwise
// the maximum Q-value wins, with ties broken by the first entry in the
// fixed enumeration order so greedy selection is deterministic.
func (s *Selector) SelectAction(q [learning.NumActions]float64, epsilon float64) (learning.Action, bool) {
	s.mu.Lock()
	draw := s.rng.Float64()
	idx := s.rng.Intn(learning.NumActions)
	s.mu.Unlock()

	if draw < epsilon {
		return learning.Actions[idx], true
	}
	return learning.Actions[greedyIndex(q)], false
}

func greedyIndex(q [learning.NumActions]float64) int {
	best := 0
	for i := 1; i < learning.NumActions; i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return best
}

// Confidence scores how much we trust a recommendation: visit-count base
// capped at 0.9, scaled by the entity's overall success rate (0.5 when
// there is no history yet), clamped to [ConfidenceMin, ConfidenceMax].
func Confidence(visits, total, successful int) float64 {
	base := math.Min(0.9, float64(visits)*0.1)
	successRate := 0.5
	if total > 0 {
		successRate = float64(successful) / float64(total)
	}
	return clamp(base*(0.5+successRate), ConfidenceMin, ConfidenceMax)
}

// ApplyAdjustment returns the setpoint after the adjustment, clamped to
// the thermostat's operating range.
func ApplyAdjustment(currentTargetC float64, adjustment learning.Action) float64 {
	return clamp(currentTargetC+float64(adjustment), TargetMinC, TargetMaxC)
}

// EnergySavings estimates the saving fraction for moving the setpoint
// toward the outdoor temperature. The estimate is the proportional
// reduction of the |target - outdoor| distance, capped at 30%. It is zero
// when the adjustment does not reduce that distance or when the caller has
// no efficiency context to ground the estimate.
func EnergySavings(currentTargetC, outdoorC float64, adjustment learning.Action, hasEfficiencyContext bool) float64 {
	if !hasEfficiencyContext {
		return 0
	}
	before := math.Abs(currentTargetC - outdoorC)
	if before == 0 {
		return 0
	}
	after := math.Abs(ApplyAdjustment(currentTargetC, adjustment) - outdoorC)
	if after >= before {
		return 0
	}
	return math.Min(MaxSavingsFraction, (before-after)/before)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
