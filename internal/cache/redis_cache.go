package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProcessedCache is a fast path in front of the durable processed-id set.
// A miss proves nothing; a hit means the id was already handled.
type ProcessedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProcessedCache(rdb *redis.Client, ttl time.Duration) *ProcessedCache {
	return &ProcessedCache{rdb: rdb, ttl: ttl}
}

func key(externalID string) string { return "processed:" + externalID }

func (c *ProcessedCache) Seen(ctx context.Context, externalID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(externalID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records externalID and reports whether it was newly set.
func (c *ProcessedCache) Mark(ctx context.Context, externalID string) (bool, error) {
	return c.rdb.SetNX(ctx, key(externalID), time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
}

func (c *ProcessedCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
