package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// loadTimeout bounds a shared load, which outlives any single caller.
const loadTimeout = 2 * time.Second

// Querier is the subset of *pgxpool.Pool the repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssetRepository reads stored garment images. It is read-only; assets are
// written by the upload service.
type AssetRepository struct {
	db    Querier
	loads singleflight.Group
}

func NewAssetRepository(db Querier) *AssetRepository {
	return &AssetRepository{db: db}
}

// Get loads an asset by id. Concurrent loads of the same id share one query.
// It returns domain.ErrAssetNotFound when no row matches. The returned asset
// may be shared between callers and must not be modified.
func (r *AssetRepository) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	ch := r.loads.DoChan(assetID, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(lctx, assetID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Asset), nil
	}
}

func (r *AssetRepository) load(ctx context.Context, assetID string) (*domain.Asset, error) {
	const q = `
select asset_id, content_type, content, created_at
from color_assets
where asset_id=$1 and deleted_at is null
`
	var a domain.Asset
	if err := r.db.QueryRow(ctx, q, assetID).Scan(&a.AssetID, &a.ContentType, &a.Content, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("load asset %s: %w", assetID, err)
	}
	return &a, nil
}
