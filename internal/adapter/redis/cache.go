// Package redis implements the cache port on Redis as an alternative L2 cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Strob0t/TaskDealer/internal/config"
)

// Cache stores values under a key prefix in a single Redis database.
type Cache struct {
	client     goredis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, cfg config.Redis) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// New wraps client. Keys are stored as prefix+key.
func New(client goredis.UniversalClient, prefix string, defaultTTL time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

// Get retrieves a value. goredis.Nil is reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value with the given TTL, or the default TTL when zero.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
