package reliability

import (
	"fmt"
	"time"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// Registry owns one breaker per phase. The set of phases is fixed at
// construction, so lookups need no locking.
type Registry struct {
	breakers map[domain.PhaseName]*Breaker
}

// DefaultBreakerConfigs are the per-phase thresholds used when none are
// configured.
func DefaultBreakerConfigs() map[domain.PhaseName]BreakerConfig {
	return map[domain.PhaseName]BreakerConfig{
		domain.PhaseSegmentation: {FailureThreshold: 3, FailureWindow: 30 * time.Second, RecoveryTimeout: 30 * time.Second},
		domain.PhaseExtraction:   {FailureThreshold: 5, FailureWindow: 60 * time.Second, RecoveryTimeout: 60 * time.Second},
		domain.PhaseHarmony:      {FailureThreshold: 10, FailureWindow: 120 * time.Second, RecoveryTimeout: 120 * time.Second},
	}
}

// NewRegistry creates a breaker for every pipeline phase. Phases missing
// from cfgs use the defaults.
func NewRegistry(cfgs map[domain.PhaseName]BreakerConfig, now func() time.Time) *Registry {
	defaults := DefaultBreakerConfigs()
	r := &Registry{breakers: make(map[domain.PhaseName]*Breaker, len(domain.PipelineOrder))}
	for _, phase := range domain.PipelineOrder {
		cfg, ok := cfgs[phase]
		if !ok {
			cfg = defaults[phase]
		}
		r.breakers[phase] = NewBreaker(phase, cfg, now)
	}
	return r
}

// Get returns the breaker of a phase, or nil for an unknown phase.
func (r *Registry) Get(phase domain.PhaseName) *Breaker {
	return r.breakers[phase]
}

// Snapshot returns every breaker in pipeline order.
func (r *Registry) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(r.breakers))
	for _, phase := range domain.PipelineOrder {
		if b, ok := r.breakers[phase]; ok {
			out = append(out, b.Snapshot())
		}
	}
	return out
}

// Reset forces a phase's breaker CLOSED.
func (r *Registry) Reset(phase domain.PhaseName) error {
	b, ok := r.breakers[phase]
	if !ok {
		return fmt.Errorf("unknown phase %q", phase)
	}
	b.Reset()
	return nil
}

// AnyOpen reports whether some breaker is not CLOSED.
func (r *Registry) AnyOpen() bool {
	for _, b := range r.breakers {
		if b.State() != StateClosed {
			return true
		}
	}
	return false
}
