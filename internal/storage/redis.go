package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisArea stores a tab's values under "<prefix><key>" with a sliding TTL
// equal to the session lifetime. Every Set pushes the expiry of the whole
// area forward so keys of one tab die together.
type RedisArea struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisArea creates an area for one tab. Prefix should already include the
// tab identifier, e.g. "primebank:tab:<id>:".
func NewRedisArea(client *redis.Client, prefix string, ttl time.Duration) *RedisArea {
	if prefix == "" {
		prefix = "primebank:tab:"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisArea{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisArea) key(k string) string {
	return r.prefix + k
}

func (r *RedisArea) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisArea) Set(ctx context.Context, key, value string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(key), value, r.ttl)
	for _, k := range []string{KeyUser, KeyTokenExpiry, KeyRefreshToken} {
		if k != key {
			pipe.Expire(ctx, r.key(k), r.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisArea) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Ping reports whether the backing Redis is reachable.
func (r *RedisArea) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
