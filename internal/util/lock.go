package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock is a best-effort distributed lock over SETNX with TTL. The TTL
// bounds how long a crashed holder can block others.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// Deduper suppresses repeat processing of the same key within a window.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// AcquireOnce returns true the first time key is seen within the window.
// On redis failure it returns true so processing is never silently dropped.
func (d *Deduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, "dedup:"+key, "1", d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
