package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisNamespace = "helpdesk:"

// RedisCache keeps cached JSON values and revoked token ids under one key
// namespace so the escalation stream can share the same Redis database.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func key(k string) string { return redisNamespace + k }

func (c *RedisCache) GetJSON(ctx context.Context, k string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key(k)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// corrupt entry counts as a miss
		_ = c.rdb.Del(ctx, key(k)).Err()
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, k string, val any, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(k), raw, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = key(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

// Revoke denies tokenID until its remaining lifetime ttl has passed.
func (c *RedisCache) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, key(revokedPrefix+tokenID), "1", ttl).Err()
}

func (c *RedisCache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(revokedPrefix+tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
