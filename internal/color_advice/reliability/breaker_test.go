package reliability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail(t *testing.T, b *Breaker) {
	t.Helper()
	p, ok := b.Allow()
	require.True(t, ok)
	b.Record(p, false)
}

func testConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, FailureWindow: 10 * time.Second, RecoveryTimeout: 30 * time.Second}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(domain.PhaseSegmentation, testConfig(), clock.Now)

	fail(t, b)
	fail(t, b)
	assert.Equal(t, StateClosed, b.State())
	fail(t, b)
	assert.Equal(t, StateOpen, b.State())

	_, ok := b.Allow()
	assert.False(t, ok)
	assert.Equal(t, int64(1), b.Snapshot().TotalRejections)
}

func TestBreaker_RollingWindow(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(domain.PhaseSegmentation, testConfig(), clock.Now)

	fail(t, b)
	clock.Advance(6 * time.Second)
	fail(t, b)
	clock.Advance(6 * time.Second)
	fail(t, b)

	assert.Equal(t, StateClosed, b.State(), "first failure fell out of the window")
	assert.Equal(t, 2, b.Snapshot().ConsecutiveFailures)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(domain.PhaseSegmentation, testConfig(), clock.Now)

	fail(t, b)
	fail(t, b)
	p, ok := b.Allow()
	require.True(t, ok)
	b.Record(p, true)
	fail(t, b)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 1, b.Snapshot().ConsecutiveFailures)
}

func TestBreaker_HalfOpen(t *testing.T) {
	open := func(t *testing.T) (*Breaker, *fakeClock) {
		clock := newFakeClock()
		b := NewBreaker(domain.PhaseExtraction, testConfig(), clock.Now)
		for i := 0; i < 3; i++ {
			fail(t, b)
		}
		require.Equal(t, StateOpen, b.State())
		return b, clock
	}

	t.Run("stays open before recovery timeout", func(t *testing.T) {
		b, clock := open(t)
		clock.Advance(29 * time.Second)
		_, ok := b.Allow()
		assert.False(t, ok)
	})

	t.Run("admits exactly one probe", func(t *testing.T) {
		b, clock := open(t)
		clock.Advance(30 * time.Second)

		probe, ok := b.Allow()
		require.True(t, ok)
		assert.Equal(t, StateHalfOpen, b.State())

		_, ok = b.Allow()
		assert.False(t, ok, "second caller rejected while probe in flight")

		b.Record(probe, true)
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 0, b.Snapshot().ConsecutiveFailures)
		assert.NotNil(t, b.Snapshot().LastProbeAt)
	})

	t.Run("failed probe reopens with a fresh timer", func(t *testing.T) {
		b, clock := open(t)
		clock.Advance(30 * time.Second)

		probe, ok := b.Allow()
		require.True(t, ok)
		b.Record(probe, false)
		assert.Equal(t, StateOpen, b.State())

		clock.Advance(10 * time.Second)
		_, ok = b.Allow()
		assert.False(t, ok)

		clock.Advance(20 * time.Second)
		_, ok = b.Allow()
		assert.True(t, ok)
	})
}

func TestBreaker_StaleOutcomeIgnored(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(domain.PhaseHarmony, testConfig(), clock.Now)

	slow, ok := b.Allow()
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		fail(t, b)
	}
	require.Equal(t, StateOpen, b.State())

	b.Record(slow, true)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(30 * time.Second)
	probe, ok := b.Allow()
	require.True(t, ok)
	b.Record(slow, false)
	assert.Equal(t, StateHalfOpen, b.State())
	b.Record(probe, true)
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(map[domain.PhaseName]BreakerConfig{
		domain.PhaseHarmony: {FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: time.Minute},
	}, clock.Now)

	snaps := r.Snapshot()
	require.Len(t, snaps, 3)
	assert.Equal(t, domain.PhaseSegmentation, snaps[0].Phase)
	assert.Equal(t, "CLOSED", snaps[2].State)
	assert.False(t, r.AnyOpen())

	fail(t, r.Get(domain.PhaseHarmony))
	assert.True(t, r.AnyOpen())
	assert.Equal(t, "OPEN", r.Snapshot()[2].State)
	assert.NotNil(t, r.Snapshot()[2].OpenedAt)

	require.NoError(t, r.Reset(domain.PhaseHarmony))
	assert.False(t, r.AnyOpen())
	assert.Error(t, r.Reset("dyeing"))
}
