package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a CountingStore shared between processes. Counters expire
// window after their first increment, so a pattern has to stay popular to
// stay hot.
type RedisCounter struct {
	client    *redis.Client
	keyPrefix string
	window    time.Duration
}

func NewRedisCounter(client *redis.Client, keyPrefix string, window time.Duration) *RedisCounter {
	if keyPrefix == "" {
		keyPrefix = "catalog:pattern:"
	}
	return &RedisCounter{
		client:    client,
		keyPrefix: keyPrefix,
		window:    window,
	}
}

func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	k := r.keyPrefix + key

	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 && r.window > 0 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return n, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return n, nil
}

func (r *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

var _ CountingStore = (*RedisCounter)(nil)
var _ CountingStore = (*MemoryCounter)(nil)
