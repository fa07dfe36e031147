package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// RedisCache is the shared cache tier for deployments running more than one
// instance. Cache failures degrade to a miss; the provider fetches instead.
type RedisCache struct {
	logger *zap.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the given Redis address.
func NewRedisCache(logger *zap.Logger, addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		logger: logger,
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Get returns a cached series, treating any Redis error as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*types.PriceSeries, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var series types.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &series, true
}

// Set stores a series with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, series *types.PriceSeries) {
	data, err := json.Marshal(series)
	if err != nil {
		c.logger.Warn("redis cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.client.Close() }
