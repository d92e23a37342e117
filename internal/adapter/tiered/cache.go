// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/TaskDealer/internal/port/cache"
)

// Cache combines an L1 (in-process) and L2 (remote) cache.
// Get checks L1 first, then L2, backfilling L1 on an L2 hit. An unreachable
// L2 degrades to a miss so that reads fall through to the store.
// Set and Delete always apply to L1 and report L2 failures.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. A nil l2 runs on L1 alone.
// l1Expire controls how long L2 backfill entries live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache get failed, treating as miss", "key", key, "error", err)
		return nil, false, nil
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes L1, then L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if c.l1Expire > 0 && (l1TTL <= 0 || l1TTL > c.l1Expire) {
		l1TTL = c.l1Expire
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes from both levels, attempting L2 even if L1 fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.l1.Delete(ctx, key)
	if c.l2 != nil {
		err = errors.Join(err, c.l2.Delete(ctx, key))
	}
	return err
}
