package reliability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// DefaultTimeouts are the per-phase call budgets used when none are
// configured.
func DefaultTimeouts() map[domain.PhaseName]time.Duration {
	return map[domain.PhaseName]time.Duration{
		domain.PhaseSegmentation: 1200 * time.Millisecond,
		domain.PhaseExtraction:   300 * time.Millisecond,
		domain.PhaseHarmony:      100 * time.Millisecond,
	}
}

// PhaseFunc performs one phase call. It must honor ctx, which carries the
// phase budget.
type PhaseFunc func(ctx context.Context) (domain.PhaseResult, error)

// Manager runs phase calls under their breaker and budget.
type Manager struct {
	breakers *Registry
	timeouts map[domain.PhaseName]time.Duration
}

// NewManager creates a Manager. Phases missing from timeouts use the
// defaults.
func NewManager(breakers *Registry, timeouts map[domain.PhaseName]time.Duration) *Manager {
	merged := DefaultTimeouts()
	for phase, d := range timeouts {
		if d > 0 {
			merged[phase] = d
		}
	}
	return &Manager{breakers: breakers, timeouts: merged}
}

// Budget returns the call budget of a phase.
func (m *Manager) Budget(phase domain.PhaseName) time.Duration {
	return m.timeouts[phase]
}

// Breakers exposes the registry for admin and readiness surfaces.
func (m *Manager) Breakers() *Registry {
	return m.breakers
}

type callOutcome struct {
	result domain.PhaseResult
	err    error
}

// Call runs fn unless the phase breaker is open. On success the result is
// returned with its measured duration. Every other outcome is a
// *domain.PhaseFailure:
//
//   - breaker_open: fn was not invoked
//   - timeout: the budget elapsed; the result has nil data and the budget as duration
//   - error: fn returned an error
//   - cancelled / request_deadline: ctx ended first
//
// fn runs detached from ctx cancellation so that an abandoned call still
// reports its outcome to the breaker when it completes.
func (m *Manager) Call(ctx context.Context, phase domain.PhaseName, fn PhaseFunc) (domain.PhaseResult, error) {
	empty := domain.PhaseResult{PhaseName: phase}

	b := m.breakers.Get(phase)
	if b == nil {
		return empty, &domain.PhaseFailure{Phase: phase, Kind: domain.FailureError, Err: domain.ErrUnsupportedMode}
	}
	if err := ctx.Err(); err != nil {
		return empty, contextFailure(phase, err)
	}

	permit, ok := b.Allow()
	if !ok {
		return empty, &domain.PhaseFailure{Phase: phase, Kind: domain.FailureBreakerOpen, Err: domain.ErrBreakerOpen}
	}

	budget := m.Budget(phase)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)

	var once sync.Once
	report := func(success bool) {
		once.Do(func() { b.Record(permit, success) })
	}

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		defer cancel()
		res, err := fn(callCtx)
		report(err == nil)
		done <- callOutcome{result: res, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case out := <-done:
		return m.finish(phase, budget, start, out)
	case <-timer.C:
		select {
		case out := <-done:
			return m.finish(phase, budget, start, out)
		default:
		}
		report(false)
		phaseCallDuration.WithLabelValues(string(phase), "timeout").Observe(budget.Seconds())
		return domain.PhaseResult{PhaseName: phase, DurationMs: budget.Milliseconds()},
			&domain.PhaseFailure{Phase: phase, Kind: domain.FailureTimeout, Err: domain.ErrPhaseTimeout}
	case <-ctx.Done():
		phaseCallDuration.WithLabelValues(string(phase), "cancelled").Observe(time.Since(start).Seconds())
		res := empty
		res.DurationMs = time.Since(start).Milliseconds()
		return res, contextFailure(phase, ctx.Err())
	}
}

func (m *Manager) finish(phase domain.PhaseName, budget time.Duration, start time.Time, out callOutcome) (domain.PhaseResult, error) {
	elapsed := time.Since(start)
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, domain.ErrPhaseTimeout) {
			phaseCallDuration.WithLabelValues(string(phase), "timeout").Observe(elapsed.Seconds())
			return domain.PhaseResult{PhaseName: phase, DurationMs: budget.Milliseconds()},
				&domain.PhaseFailure{Phase: phase, Kind: domain.FailureTimeout, Err: out.err}
		}
		phaseCallDuration.WithLabelValues(string(phase), "error").Observe(elapsed.Seconds())
		return domain.PhaseResult{PhaseName: phase, DurationMs: elapsed.Milliseconds()},
			&domain.PhaseFailure{Phase: phase, Kind: domain.FailureError, Err: out.err}
	}

	phaseCallDuration.WithLabelValues(string(phase), "ok").Observe(elapsed.Seconds())
	res := out.result
	res.PhaseName = phase
	res.DurationMs = elapsed.Milliseconds()
	res.FromCache = false
	res.Degraded = false
	res.DegradationReason = ""
	return res, nil
}

func contextFailure(phase domain.PhaseName, err error) *domain.PhaseFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.PhaseFailure{Phase: phase, Kind: domain.FailureDeadline, Err: domain.ErrRequestDeadline}
	}
	return &domain.PhaseFailure{Phase: phase, Kind: domain.FailureCancelled, Err: domain.ErrRequestCancelled}
}
