// Package natskv implements the cache port using NATS JetStream KV as L2 remote cache.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue store as an L2 cache.
// Entry lifetime is governed by the bucket TTL; per-call TTLs are ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New wraps an existing bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Open creates or updates the bucket with the given TTL and wraps it.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*Cache, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "TaskDealer snapshot cache",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("natskv: bucket %s: %w", bucket, err)
	}
	return New(kv), nil
}

// Get retrieves a value from the NATS KV store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores a value in the NATS KV store.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("natskv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("natskv delete %s: %w", key, err)
	}
	return nil
}

// encodeKey maps cache keys onto the KV key alphabet, which rejects ':'.
func encodeKey(key string) string {
	b := []byte(key)
	for i, ch := range b {
		if ch == ':' {
			b[i] = '.'
		}
	}
	return string(b)
}
