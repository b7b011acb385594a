package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splitlab/splitlab/internal/logger"
)

// Redis backs the cache with a Redis server. All failures are logged and
// treated as misses so an unavailable Redis never breaks a request.
type Redis struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedis(addr string, log *logger.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return &Redis{client: client, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.log.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}

func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("cache scan failed", "prefix", prefix, "error", err)
		return
	}
	r.Invalidate(ctx, keys...)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
