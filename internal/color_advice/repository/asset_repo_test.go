package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

type fakeRow struct {
	asset *domain.Asset
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.asset.AssetID
	*dest[1].(*string) = r.asset.ContentType
	*dest[2].(*[]byte) = r.asset.Content
	*dest[3].(*time.Time) = r.asset.CreatedAt
	return nil
}

type fakeDB struct {
	mu      sync.Mutex
	assets  map[string]*domain.Asset
	err     error
	queries atomic.Int32
	gate    chan struct{}
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queries.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{asset: a}
}

func TestAssetRepository_Get(t *testing.T) {
	db := &fakeDB{assets: map[string]*domain.Asset{
		"asset-1": {AssetID: "asset-1", ContentType: "image/png", Content: []byte{1, 2}, CreatedAt: time.Now()},
	}}
	repo := NewAssetRepository(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		a, err := repo.Get(ctx, "asset-1")
		require.NoError(t, err)
		assert.Equal(t, "image/png", a.ContentType)
		assert.Equal(t, []byte{1, 2}, a.Content)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	})

	t.Run("database down", func(t *testing.T) {
		down := NewAssetRepository(&fakeDB{err: errors.New("connection refused")})
		_, err := down.Get(ctx, "asset-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrAssetNotFound)
	})
}

func TestAssetRepository_SharesConcurrentLoads(t *testing.T) {
	gate := make(chan struct{})
	db := &fakeDB{
		assets: map[string]*domain.Asset{"asset-1": {AssetID: "asset-1", ContentType: "image/jpeg"}},
		gate:   gate,
	}
	repo := NewAssetRepository(db)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := repo.Get(context.Background(), "asset-1")
			assert.NoError(t, err)
			if a != nil {
				assert.Equal(t, "asset-1", a.AssetID)
			}
		}()
	}

	assert.Eventually(t, func() bool { return db.queries.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), db.queries.Load())
}

func TestAssetRepository_CallerCancel(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	repo := NewAssetRepository(&fakeDB{gate: gate})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := repo.Get(ctx, "asset-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
