package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis as the backend.
type RedisCache struct {
	client redis.UniversalClient
	config Config
	hits   int64
	misses int64
}

// NewRedisCache creates a Redis-backed cache on an existing client. The
// client is owned by the caller; Close does not close it.
func NewRedisCache(client redis.UniversalClient, cfg Config) *RedisCache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	return &RedisCache{client: client, config: cfg}
}

func (c *RedisCache) prefixKey(key string) string {
	if c.config.Prefix != "" {
		return c.config.Prefix + ":" + key
	}
	return key
}

func (c *RedisCache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.config.DefaultTTL
	}
	return ttl
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	atomic.AddInt64(&c.hits, 1)
	return data, nil
}

// Set stores a value in the cache with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefixKey(key), value, c.ttl(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Append appends value and refreshes the expiry in one MULTI/EXEC.
func (c *RedisCache) Append(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := c.prefixKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Append(ctx, k, string(value))
		pipe.Expire(ctx, k, c.ttl(ttl))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Delete removes a key from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Exists checks if a key exists in the cache.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefixKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (c *RedisCache) Close() error {
	return nil
}

// Health checks if Redis is reachable.
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Stats returns cache statistics.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var keys int64
	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		keys = size
	}
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Keys:   keys,
	}
}
