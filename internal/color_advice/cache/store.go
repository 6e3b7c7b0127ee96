package cache

import (
	"context"
	"time"
)

// Store is an external key-value store with per-entry expiry. Get returns
// domain.ErrCacheMiss for absent keys; any other error means the store is
// unreachable or misbehaving.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}
