package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/albumforge/albumforge/pkg/logger"
)

const redisKeyPrefix = "albumforge:resolve:"

// RedisCache is a ResolveCache backed by Redis, for deployments that run more
// than one proxy instance. Redis errors degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ ResolveCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = logger.NewDefault("proxy")
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, reference string) (string, bool) {
	url, err := c.client.Get(ctx, redisKeyPrefix+reference).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.log.WithError(err).Warn("redis cache lookup failed")
		return "", false
	}
	return url, true
}

func (c *RedisCache) Set(ctx context.Context, reference, url string) {
	if err := c.client.Set(ctx, redisKeyPrefix+reference, url, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("redis cache store failed")
	}
}
