// Package cache provides the key-value cache behind the agent's chat memory,
// with Redis and in-memory backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is not found in the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for cache operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Append adds value to the end of key, creating it when absent, and
	// resets the key's expiry to ttl.
	Append(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
	Health(ctx context.Context) error
	Stats() Stats
}

// Stats holds cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Keys   int64
}

// Config holds cache configuration.
type Config struct {
	// Type is the cache backend type: "redis" or "memory"
	Type string `mapstructure:"type"`

	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Prefix     string        `mapstructure:"prefix"`

	// MaxItems bounds the memory backend (0 = unlimited)
	MaxItems int `mapstructure:"max_items"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:       "redis",
		DefaultTTL: 15 * time.Minute,
		Prefix:     "hivemind",
		MaxItems:   10000,
	}
}

// New creates a cache for cfg.Type. rdb is required for the redis backend.
func New(cfg Config, rdb redis.UniversalClient) (Cache, error) {
	switch cfg.Type {
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis cache requires a redis client")
		}
		return NewRedisCache(rdb, cfg), nil
	case "memory", "":
		return NewMemoryCache(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
