// v1
// internal/learning/params.go
package learning

import (
	"fmt"
	"sync"
)

// ParamsConfig holds the process-wide learning constants.
type ParamsConfig struct {
	InitialEpsilon float64 `yaml:"initialEpsilon"`
	MinEpsilon     float64 `yaml:"minEpsilon"`
	EpsilonDecay   float64 `yaml:"epsilonDecay"`
	Alpha          float64 `yaml:"alpha"`
}

// DefaultParamsConfig returns the canonical learning constants.
func DefaultParamsConfig() ParamsConfig {
	return ParamsConfig{
		InitialEpsilon: 0.2,
		MinEpsilon:     0.05,
		EpsilonDecay:   0.995,
		Alpha:          0.1,
	}
}

// Validate rejects constants outside their meaningful ranges.
func (c ParamsConfig) Validate() error {
	if c.InitialEpsilon <= 0 || c.InitialEpsilon > 1 {
		return fmt.Errorf("initial epsilon %.3f must be in (0,1]", c.InitialEpsilon)
	}
	if c.MinEpsilon < 0 || c.MinEpsilon > c.InitialEpsilon {
		return fmt.Errorf("min epsilon %.3f must be in [0, initial epsilon]", c.MinEpsilon)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("epsilon decay %.3f must be in (0,1]", c.EpsilonDecay)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha %.3f must be in (0,1]", c.Alpha)
	}
	return nil
}

// Params is the single shared exploration state. The exploration rate is
// mutated only by the reward path; everything else is read-only after
// construction. Safe for concurrent use.
type Params struct {
	cfg ParamsConfig

	mu      sync.Mutex
	epsilon float64
}

// NewParams builds the shared parameter set from validated constants.
func NewParams(cfg ParamsConfig) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Params{cfg: cfg, epsilon: cfg.InitialEpsilon}, nil
}

// Epsilon returns the current exploration rate.
func (p *Params) Epsilon() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epsilon
}

// Alpha returns the fixed learning rate.
func (p *Params) Alpha() float64 { return p.cfg.Alpha }

// Decay applies one multiplicative decay step, floored at the minimum
// exploration rate, and returns the new value. Called once per reward
// application, never per recommendation.
func (p *Params) Decay() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epsilon *= p.cfg.EpsilonDecay
	if p.epsilon < p.cfg.MinEpsilon {
		p.epsilon = p.cfg.MinEpsilon
	}
	return p.epsilon
}

// Restore overwrites the exploration rate from a persisted snapshot.
// Values outside (0,1] are ignored in favor of the initial rate.
func (p *Params) Restore(epsilon float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if epsilon <= 0 || epsilon > 1 {
		p.epsilon = p.cfg.InitialEpsilon
		return
	}
	if epsilon < p.cfg.MinEpsilon {
		epsilon = p.cfg.MinEpsilon
	}
	p.epsilon = epsilon
}

// Reset returns the exploration rate to its initial value.
func (p *Params) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epsilon = p.cfg.InitialEpsilon
}
