package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStore(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	t.Run("miss maps to ErrCacheMiss", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("set then get with ttl", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "l2:abc", []byte("value"), time.Minute))

		got, err := store.Get(ctx, "l2:abc")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
		assert.Equal(t, time.Minute, mr.TTL(cacheKeyPrefix+"l2:abc"))
	})

	t.Run("entry expires", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
		mr.FastForward(2 * time.Second)
		_, err := store.Get(ctx, "short")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestCache_PrimaryStore(t *testing.T) {
	mr, store := setupRedis(t)
	c := New(store, Options{OpTimeout: 200 * time.Millisecond})
	ctx := context.Background()

	_, ok := c.Get(ctx, TierL1, "k")
	assert.False(t, ok)

	c.Put(ctx, TierL1, "k", []byte("resp"), time.Hour)
	got, ok := c.Get(ctx, TierL1, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("resp"), got)

	assert.True(t, mr.Exists(cacheKeyPrefix+"l1:k"))
	assert.Equal(t, 0, c.FallbackLen())

	t.Run("tiers are isolated", func(t *testing.T) {
		_, ok := c.Get(ctx, TierL2, "k")
		assert.False(t, ok)
	})

	stats := c.Stats()[TierL1]
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestCache_StoreOutage(t *testing.T) {
	mr, store := setupRedis(t)
	c := New(store, Options{OpTimeout: 200 * time.Millisecond})
	ctx := context.Background()

	c.Put(ctx, TierL2, "before", []byte("1"), time.Hour)
	mr.Close()

	t.Run("reads degrade to miss", func(t *testing.T) {
		_, ok := c.Get(ctx, TierL2, "before")
		assert.False(t, ok)
	})

	t.Run("writes land in the fallback", func(t *testing.T) {
		c.Put(ctx, TierL2, "during", []byte("2"), time.Hour)
		got, ok := c.Get(ctx, TierL2, "during")
		require.True(t, ok)
		assert.Equal(t, []byte("2"), got)
		assert.Equal(t, 1, c.FallbackLen())
	})

	t.Run("ping reports the outage", func(t *testing.T) {
		assert.Error(t, c.Ping(ctx))
	})

	stats := c.Stats()[TierL2]
	assert.GreaterOrEqual(t, stats.StoreErrors, int64(3))
	assert.Equal(t, int64(1), stats.FallbackHits)
}

type failingStore struct{ calls int }

func (s *failingStore) Get(context.Context, string) ([]byte, error) {
	s.calls++
	return nil, errors.New("connection refused")
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.calls++
	return errors.New("connection refused")
}

func (s *failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestCache_FailingStoreNeverSurfaces(t *testing.T) {
	store := &failingStore{}
	c := New(store, Options{})
	ctx := context.Background()

	c.Put(ctx, TierIdempotency, "idem-1", []byte("r"), time.Minute)
	got, ok := c.Get(ctx, TierIdempotency, "idem-1")
	require.True(t, ok)
	assert.Equal(t, []byte("r"), got)
	assert.Equal(t, 2, store.calls)
}

func TestCache_NoStore(t *testing.T) {
	c := New(nil, Options{})
	ctx := context.Background()

	c.Put(ctx, TierL1, "k", []byte("v"), time.Minute)
	got, ok := c.Get(ctx, TierL1, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.ErrorIs(t, c.Ping(ctx), domain.ErrCacheUnavailable)
}

func TestCache_PutIgnoresCancelledCaller(t *testing.T) {
	_, store := setupRedis(t)
	c := New(store, Options{OpTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Put(ctx, TierL2, "late", []byte("v"), time.Minute)

	got, ok := c.Get(context.Background(), TierL2, "late")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 0, c.FallbackLen())
}

type cancelledStore struct{ failingStore }

func (s *cancelledStore) Get(ctx context.Context, _ string) ([]byte, error) {
	s.calls++
	return nil, fmt.Errorf("redis get: %w", ctx.Err())
}

func TestCache_GetCancelledCallerIsMiss(t *testing.T) {
	store := &cancelledStore{}
	c := New(store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := c.Get(ctx, TierL1, "k")
	assert.False(t, ok)
	assert.Equal(t, 1, store.calls)

	stats := c.Stats()[TierL1]
	assert.Equal(t, int64(0), stats.StoreErrors)
	assert.Equal(t, int64(1), stats.Misses)
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestLRU(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	t.Run("evicts least recently used", func(t *testing.T) {
		lru := NewLRU(2, clock.Now)
		lru.Set("a", []byte("1"), time.Hour)
		lru.Set("b", []byte("2"), time.Hour)
		_, _ = lru.Get("a")
		lru.Set("c", []byte("3"), time.Hour)

		_, ok := lru.Get("b")
		assert.False(t, ok)
		_, ok = lru.Get("a")
		assert.True(t, ok)
		assert.Equal(t, int64(1), lru.Evictions())
	})

	t.Run("expires entries", func(t *testing.T) {
		lru := NewLRU(10, clock.Now)
		lru.Set("short", []byte("x"), time.Minute)
		lru.Set("long", []byte("y"), time.Hour)
		clock.Advance(2 * time.Minute)

		_, ok := lru.Get("short")
		assert.False(t, ok)
		assert.Equal(t, 1, lru.Len())
	})

	t.Run("prune removes expired entries", func(t *testing.T) {
		lru := NewLRU(10, clock.Now)
		for i := 0; i < 5; i++ {
			lru.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Duration(i+1)*time.Minute)
		}
		clock.Advance(3 * time.Minute)
		assert.Equal(t, 3, lru.Prune())
		assert.Equal(t, 2, lru.Len())
	})

	t.Run("ignores non-positive ttl", func(t *testing.T) {
		lru := NewLRU(10, clock.Now)
		lru.Set("k", []byte("v"), 0)
		assert.Equal(t, 0, lru.Len())
	})
}
