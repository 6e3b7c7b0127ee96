package cronjob

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/stylesync/stylesync-backend/internal/color_advice/cache"
	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
	"github.com/stylesync/stylesync-backend/internal/color_advice/service"
)

var reportedTiers = []cache.Tier{cache.TierL1, cache.TierL2, cache.TierIdempotency}

// Scheduler runs periodic maintenance: expiring the in-process cache fallback
// and logging cache, pipeline and breaker statistics.
type Scheduler struct {
	cron     *cron.Cron
	cache    *cache.Cache
	breakers *reliability.Registry
}

func NewScheduler(c *cache.Cache, breakers *reliability.Registry) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cache:    c,
		breakers: breakers,
	}
}

// Start registers the maintenance job on spec (six fields, seconds first)
// and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", spec, err)
	}

	log.Printf("Cron scheduler started (maintenance on %q)", spec)
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce performs one maintenance pass.
func (s *Scheduler) RunOnce() {
	pruned := s.cache.PruneFallback()
	log.Printf("[info] maintenance pruned=%d fallback_entries=%d", pruned, s.cache.FallbackLen())

	stats := s.cache.Stats()
	for _, tier := range reportedTiers {
		st := stats[tier]
		log.Printf("[info] cache tier=%s hits=%d fallback_hits=%d misses=%d writes=%d store_errors=%d hit_rate=%.2f",
			tier, st.Hits, st.FallbackHits, st.Misses, st.Writes, st.StoreErrors, st.HitRate())
	}

	m := service.GetMetrics()
	log.Printf("[info] pipeline requests=%d degraded_rate=%.1f%% l1_hit_rate=%.1f%% replays=%d avg_latency_ms=%.1f",
		m.Requests(), m.DegradedRate(), m.L1HitRate(), m.Replays(), m.AverageLatency())

	if s.breakers == nil {
		return
	}
	for _, snap := range s.breakers.Snapshot() {
		if snap.State != reliability.StateClosed.String() {
			log.Printf("[warn] breaker phase=%s state=%s consecutive_failures=%d rejections=%d",
				snap.Phase, snap.State, snap.ConsecutiveFailures, snap.TotalRejections)
		}
	}
}
