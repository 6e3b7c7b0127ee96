package reliability

import (
	"log"
	"sync"
	"time"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes one breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures within FailureWindow open the breaker.
	FailureThreshold int
	FailureWindow    time.Duration
	// RecoveryTimeout is how long the breaker stays OPEN before admitting a probe.
	RecoveryTimeout time.Duration
}

// Permit is handed out by Allow and returned through Record.
type Permit struct {
	probe bool
	gen   uint64
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Phase               domain.PhaseName `json:"phase"`
	State               string           `json:"state"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	OpenedAt            *time.Time       `json:"opened_at,omitempty"`
	LastProbeAt         *time.Time       `json:"last_probe_at,omitempty"`
	TotalCalls          int64            `json:"total_calls"`
	TotalFailures       int64            `json:"total_failures"`
	TotalRejections     int64            `json:"total_rejections"`
}

// Breaker tracks the health of one phase. All state is guarded by mu.
type Breaker struct {
	phase domain.PhaseName
	cfg   BreakerConfig
	now   func() time.Time

	mu          sync.Mutex
	state       State
	failures    []time.Time // current streak, oldest first
	openedAt    time.Time
	lastProbeAt time.Time
	probing     bool
	// gen changes on every transition; outcomes carrying an older gen are
	// stale and ignored.
	gen uint64

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewBreaker creates a CLOSED breaker.
func NewBreaker(phase domain.PhaseName, cfg BreakerConfig, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = time.Minute
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	b := &Breaker{phase: phase, cfg: cfg, now: now}
	breakerState.WithLabelValues(string(phase)).Set(float64(StateClosed))
	return b
}

// Allow reports whether a call may proceed. OPEN rejects until the recovery
// timeout elapses; HALF_OPEN admits exactly one probe at a time.
func (b *Breaker) Allow() (Permit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	switch b.state {
	case StateClosed:
		return Permit{gen: b.gen}, true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.reject()
			return Permit{}, false
		}
		b.transition(StateHalfOpen)
	}

	if b.probing {
		b.reject()
		return Permit{}, false
	}
	b.probing = true
	b.lastProbeAt = b.now()
	return Permit{probe: true, gen: b.gen}, true
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(p Permit, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.gen != b.gen {
		return
	}
	if !success {
		b.totalFailures++
	}

	if p.probe {
		if b.state != StateHalfOpen {
			return
		}
		b.probing = false
		if success {
			b.transition(StateClosed)
		} else {
			b.open()
		}
		return
	}

	if b.state != StateClosed {
		return
	}
	if success {
		b.failures = b.failures[:0]
		return
	}

	now := b.now()
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, at := range b.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.failures = append(kept, now)
	if len(b.failures) >= b.cfg.FailureThreshold {
		b.open()
	}
}

// State returns the current state without side effects. An OPEN breaker
// whose recovery timeout has elapsed still reports OPEN until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Phase:               b.phase,
		State:               b.state.String(),
		ConsecutiveFailures: len(b.failures),
		TotalCalls:          b.totalCalls,
		TotalFailures:       b.totalFailures,
		TotalRejections:     b.totalRejections,
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		s.OpenedAt = &t
	}
	if !b.lastProbeAt.IsZero() {
		t := b.lastProbeAt
		s.LastProbeAt = &t
	}
	return s
}

// Reset forces the breaker CLOSED and invalidates outstanding permits.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.openedAt = time.Time{}
}

func (b *Breaker) open() {
	b.transition(StateOpen)
	b.openedAt = b.now()
}

func (b *Breaker) reject() {
	b.totalRejections++
	breakerRejections.WithLabelValues(string(b.phase)).Inc()
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.gen++
	b.failures = b.failures[:0]
	b.probing = false

	breakerState.WithLabelValues(string(b.phase)).Set(float64(to))
	if from != to {
		breakerTransitions.WithLabelValues(string(b.phase), from.String(), to.String()).Inc()
		log.Printf("[info] breaker phase=%s transition=%s->%s", b.phase, from, to)
	}
}
