package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lookupsTotal counts cache reads by tier and result (hit, miss, fallback_hit)
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_cache_lookups_total",
		Help: "Cache lookups by tier and result",
	}, []string{"tier", "result"})

	// writesTotal counts cache writes by tier and destination (store, fallback)
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_cache_writes_total",
		Help: "Cache writes by tier and destination",
	}, []string{"tier", "destination"})

	// storeErrorsTotal counts swallowed external store failures
	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stylesync_cache_store_errors_total",
		Help: "External cache store failures by operation",
	}, []string{"op"})
)
