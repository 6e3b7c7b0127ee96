package service

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts pipeline requests by input mode and outcome
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_advice_requests_total",
		Help: "Advice requests by input mode and outcome",
	}, []string{"mode", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stylesync_advice_request_duration_seconds",
		Help:    "Advice request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 11), // 5ms to ~5s
	}, []string{"mode"})

	// phaseDegradations counts fallbacks by phase and failure kind
	phaseDegradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_phase_degradations_total",
		Help: "Phase results replaced by the degradation policy",
	}, []string{"phase", "kind"})
)

const (
	outcomeOK         = "ok"
	outcomeDegraded   = "degraded"
	outcomeL1Hit      = "l1_hit"
	outcomeIdempotent = "idempotent_replay"
	outcomeInvalid    = "invalid"
	outcomeError      = "error"
)

// Metrics tracks pipeline totals for the maintenance log
type Metrics struct {
	requests     int64
	degraded     int64
	l1Hits       int64
	replays      int64
	totalLatency int64 // nanoseconds
}

var globalMetrics = &Metrics{}

// GetMetrics returns the current metrics snapshot
func GetMetrics() Metrics {
	return Metrics{
		requests:     atomic.LoadInt64(&globalMetrics.requests),
		degraded:     atomic.LoadInt64(&globalMetrics.degraded),
		l1Hits:       atomic.LoadInt64(&globalMetrics.l1Hits),
		replays:      atomic.LoadInt64(&globalMetrics.replays),
		totalLatency: atomic.LoadInt64(&globalMetrics.totalLatency),
	}
}

// ResetMetrics resets all metrics (useful for testing)
func ResetMetrics() {
	atomic.StoreInt64(&globalMetrics.requests, 0)
	atomic.StoreInt64(&globalMetrics.degraded, 0)
	atomic.StoreInt64(&globalMetrics.l1Hits, 0)
	atomic.StoreInt64(&globalMetrics.replays, 0)
	atomic.StoreInt64(&globalMetrics.totalLatency, 0)
}

func recordRequest(mode, outcome string, duration time.Duration) {
	requestsTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == outcomeInvalid || outcome == outcomeError {
		return
	}
	requestDuration.WithLabelValues(mode).Observe(duration.Seconds())

	atomic.AddInt64(&globalMetrics.requests, 1)
	atomic.AddInt64(&globalMetrics.totalLatency, duration.Nanoseconds())
	switch outcome {
	case outcomeDegraded:
		atomic.AddInt64(&globalMetrics.degraded, 1)
	case outcomeL1Hit:
		atomic.AddInt64(&globalMetrics.l1Hits, 1)
	case outcomeIdempotent:
		atomic.AddInt64(&globalMetrics.replays, 1)
	}
}

// Requests returns the number of answered requests
func (m Metrics) Requests() int64 { return m.requests }

// DegradedRate returns the share of degraded responses as a percentage
func (m Metrics) DegradedRate() float64 {
	if m.requests == 0 {
		return 0
	}
	return float64(m.degraded) / float64(m.requests) * 100
}

// L1HitRate returns the share of responses served from L1 as a percentage
func (m Metrics) L1HitRate() float64 {
	if m.requests == 0 {
		return 0
	}
	return float64(m.l1Hits) / float64(m.requests) * 100
}

// Replays returns the number of idempotent replays
func (m Metrics) Replays() int64 { return m.replays }

// AverageLatency returns the average latency in milliseconds
func (m Metrics) AverageLatency() float64 {
	if m.requests == 0 {
		return 0
	}
	return float64(m.totalLatency) / float64(m.requests) / 1e6
}
