package cache

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// Tier names a logical cache level.
type Tier string

const (
	TierL1          Tier = "l1"   // whole-pipeline responses
	TierL2          Tier = "l2"   // per-phase results
	TierIdempotency Tier = "idem" // replayed responses by idempotency key
)

var allTiers = []Tier{TierL1, TierL2, TierIdempotency}

const (
	defaultOpTimeout = 50 * time.Millisecond
	defaultLRUSize   = 1024
)

// Options configures a Cache.
type Options struct {
	// OpTimeout bounds every external store call.
	OpTimeout time.Duration
	// LRUSize bounds the in-process fallback.
	LRUSize int
	Now     func() time.Time
}

// TierStats are cumulative counters for one tier.
type TierStats struct {
	Hits         int64 `json:"hits"`
	FallbackHits int64 `json:"fallback_hits"`
	Misses       int64 `json:"misses"`
	Writes       int64 `json:"writes"`
	StoreErrors  int64 `json:"store_errors"`
}

// HitRate is hits over lookups, 0 when nothing was looked up.
func (s TierStats) HitRate() float64 {
	total := s.Hits + s.FallbackHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.FallbackHits) / float64(total)
}

type tierCounters struct {
	hits, fallbackHits, misses, writes, storeErrors atomic.Int64
}

// Cache is the tiered cache over an external store with an in-process LRU
// fallback. A store failure never reaches the caller: reads degrade to the
// fallback (then to a miss) and writes land in the fallback.
type Cache struct {
	store     Store
	fallback  *LRU
	opTimeout time.Duration
	counters  map[Tier]*tierCounters
}

// New creates a Cache. store may be nil, in which case only the in-process
// LRU is used.
func New(store Store, opts Options) *Cache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	if opts.LRUSize <= 0 {
		opts.LRUSize = defaultLRUSize
	}
	counters := make(map[Tier]*tierCounters, len(allTiers))
	for _, t := range allTiers {
		counters[t] = &tierCounters{}
	}
	return &Cache{
		store:     store,
		fallback:  NewLRU(opts.LRUSize, opts.Now),
		opTimeout: opts.OpTimeout,
		counters:  counters,
	}
}

func tierKey(tier Tier, key string) string {
	return string(tier) + ":" + key
}

// Get returns the cached value for key in tier.
func (c *Cache) Get(ctx context.Context, tier Tier, key string) ([]byte, bool) {
	k := tierKey(tier, key)
	ctr := c.counters[tier]

	if c.store != nil {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		data, err := c.store.Get(opCtx, k)
		cancel()
		switch {
		case err == nil:
			ctr.hits.Add(1)
			lookupsTotal.WithLabelValues(string(tier), "hit").Inc()
			return data, true
		case errors.Is(err, domain.ErrCacheMiss):
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			// caller went away; the store is not at fault
		default:
			c.storeFailed("get", tier, err)
		}
	}

	if data, ok := c.fallback.Get(k); ok {
		ctr.fallbackHits.Add(1)
		lookupsTotal.WithLabelValues(string(tier), "fallback_hit").Inc()
		return data, true
	}
	ctr.misses.Add(1)
	lookupsTotal.WithLabelValues(string(tier), "miss").Inc()
	return nil, false
}

// Put stores value for ttl. The write is bounded by the op timeout but not
// by ctx cancellation, so results computed for a departed caller still land.
func (c *Cache) Put(ctx context.Context, tier Tier, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	k := tierKey(tier, key)
	c.counters[tier].writes.Add(1)

	if c.store != nil {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
		err := c.store.Set(opCtx, k, value, ttl)
		cancel()
		if err == nil {
			writesTotal.WithLabelValues(string(tier), "store").Inc()
			return
		}
		c.storeFailed("set", tier, err)
	}

	c.fallback.Set(k, value, ttl)
	writesTotal.WithLabelValues(string(tier), "fallback").Inc()
}

// Ping reports whether the external store is reachable. It returns
// domain.ErrCacheUnavailable when no store is configured.
func (c *Cache) Ping(ctx context.Context) error {
	if c.store == nil {
		return domain.ErrCacheUnavailable
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.Ping(opCtx)
}

// PruneFallback drops expired entries from the in-process fallback.
func (c *Cache) PruneFallback() int {
	return c.fallback.Prune()
}

// FallbackLen returns the number of entries held in-process.
func (c *Cache) FallbackLen() int {
	return c.fallback.Len()
}

// Stats returns a snapshot of per-tier counters.
func (c *Cache) Stats() map[Tier]TierStats {
	out := make(map[Tier]TierStats, len(c.counters))
	for t, ctr := range c.counters {
		out[t] = TierStats{
			Hits:         ctr.hits.Load(),
			FallbackHits: ctr.fallbackHits.Load(),
			Misses:       ctr.misses.Load(),
			Writes:       ctr.writes.Load(),
			StoreErrors:  ctr.storeErrors.Load(),
		}
	}
	return out
}

func (c *Cache) storeFailed(op string, tier Tier, err error) {
	c.counters[tier].storeErrors.Add(1)
	storeErrorsTotal.WithLabelValues(op).Inc()
	log.Printf("[warn] cache operation=%s tier=%s error=%v", op, tier, err)
}
