// Package idempotency claims external references so a payment is only allocated once.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fund-ledger:claim:"

// Guard claims a key for the duration of an operation.
type Guard interface {
	// Claim returns false when another caller already holds key.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so the operation may be retried.
	Release(ctx context.Context, key string) error
}

// RedisGuard implements Guard with SETNX and a TTL.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, redisKey(key), time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, redisKey(key)).Err()
}

func redisKey(key string) string {
	return keyPrefix + key
}

// Key builds the claim key for a payment reference.
func Key(refType, refID string) string {
	return "allocation:" + refType + ":" + refID
}
