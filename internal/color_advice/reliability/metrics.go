package reliability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState is 0 closed, 1 open, 2 half-open
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stylesync_breaker_state",
		Help: "Circuit breaker state by phase (0 closed, 1 open, 2 half-open)",
	}, []string{"phase"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_breaker_transitions_total",
		Help: "Circuit breaker transitions by phase",
	}, []string{"phase", "from", "to"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_breaker_rejections_total",
		Help: "Calls short-circuited by an open breaker",
	}, []string{"phase"})

	// phaseCallDuration tracks phase latency by outcome (ok, error, timeout, cancelled)
	phaseCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stylesync_phase_call_duration_seconds",
		Help:    "Phase call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
	}, []string{"phase", "outcome"})
)
