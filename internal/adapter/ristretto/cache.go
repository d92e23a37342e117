// Package ristretto implements the cache port using dgraph-io/ristretto as L1 in-process cache.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// avgEntryBytes sizes the admission counters; snapshots are a few KiB each.
const avgEntryBytes = 4 << 10

// Cache wraps a ristretto cache as an in-process L1 cache.
// Writes are applied before Set returns so that a Get issued right after a
// snapshot replace observes the new value.
type Cache struct {
	c          *ristretto.Cache[string, []byte]
	defaultTTL time.Duration
}

// New creates a ristretto-backed cache holding at most maxSizeMB megabytes of
// values. defaultTTL applies when Set is called with a zero TTL.
func New(maxSizeMB int64, defaultTTL time.Duration) (*Cache, error) {
	maxCost := maxSizeMB << 20
	if maxCost <= 0 {
		return nil, fmt.Errorf("ristretto: max size must be positive, got %d MB", maxSizeMB)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCost/avgEntryBytes*10, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c, defaultTTL: defaultTTL}, nil
}

// Get retrieves a copy of the cached value.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

// Set stores a value with the given TTL. An entry rejected by the admission
// policy is not an error; the next read simply misses.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.c.SetWithTTL(key, append([]byte(nil), value...), int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
