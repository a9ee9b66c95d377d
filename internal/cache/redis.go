/**
 * @description
 * Redis-backed implementation of the SnapshotCache, for deployments where
 * dashboard traffic is served by multiple replicas and the in-process cache
 * would recompute the same snapshot per pod. Values are stored as JSON with
 * Redis-managed expiry.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores snapshots in Redis under a configurable key prefix.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis-backed snapshot cache.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "csr:kpi_snapshot"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")
	return &RedisCache{client: client, prefix: trimmed}
}

func (c *RedisCache) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.KPISnapshot, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis snapshot get: %w", err)
	}
	var snapshot domain.KPISnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &snapshot, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, snapshot *domain.KPISnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis snapshot marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis snapshot set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis snapshot invalidate: %w", err)
	}
	return nil
}
