package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	URL    string
	PingTO time.Duration
}

// OpenRedis connects to the cache store. A failed ping is returned along
// with the client so the caller can decide to run on the in-process cache.
func OpenRedis(ctx context.Context, opt RedisOptions) (*redis.Client, error) {
	if opt.URL == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}
	if opt.PingTO == 0 {
		opt.PingTO = 2 * time.Second
	}

	ropts, err := redis.ParseURL(opt.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(ropts)

	pctx, cancel := context.WithTimeout(ctx, opt.PingTO)
	defer cancel()

	if err := client.Ping(pctx).Err(); err != nil {
		return client, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
