package cronjob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/cache"
	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
)

func TestScheduler_RunOncePrunesFallback(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := cache.New(nil, cache.Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	c.Put(ctx, cache.TierL2, "short", []byte("a"), time.Minute)
	c.Put(ctx, cache.TierL1, "long", []byte("b"), time.Hour)
	require.Equal(t, 2, c.FallbackLen())

	now = now.Add(2 * time.Minute)
	s := NewScheduler(c, reliability.NewRegistry(nil, nil))
	s.RunOnce()

	assert.Equal(t, 1, c.FallbackLen())
	_, ok := c.Get(ctx, cache.TierL1, "long")
	assert.True(t, ok)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(cache.New(nil, cache.Options{}), nil)
	assert.Error(t, s.Start("every five minutes"))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(cache.New(nil, cache.Options{}), nil)
	require.NoError(t, s.Start("*/1 * * * * *"))

	select {
	case <-s.Stop().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
