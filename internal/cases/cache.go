package cases

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotCache backs SnapshotCache with Redis. Failures are
// swallowed: a broken cache degrades to recomputing on every read.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewRedisSnapshotCache wraps an existing Redis client.
func NewRedisSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *RedisSnapshotCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}
