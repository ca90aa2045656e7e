// Package redis provides a repository.Cache backed by Redis, shared by all
// server instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/repository"
)

// Cache implements repository.Cache on a Redis client.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// NewClient builds a Redis client from configuration and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewCache creates a cache on client. All keys are stored under prefix.
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return repository.ErrCacheMiss
	}
	return fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	return b, nil
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrap(c.client.Set(ctx, c.key(key), value, ttl).Err())
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return wrap(c.client.Del(ctx, c.key(key)).Err())
}

// Ensure Cache implements repository.Cache.
var _ repository.Cache = (*Cache)(nil)
