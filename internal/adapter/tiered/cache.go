// Package tiered layers an in-process cache over a shared remote cache.
// The session manager reads through it: L1 answers hot lookups, L2 keeps
// replicas coherent enough that a failover replica usually skips the store.
package tiered

import (
	"context"
	"time"

	"github.com/Strob0t/SwarmGate/internal/port/cache"
)

// Cache combines an L1 (in-process) and L2 (remote) cache behind the
// single-level cache port.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l1Expire bounds how long an L2 backfill
// entry may live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1 first. On an L2 hit the value is backfilled into L1 so
// the next lookup stays local.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes both levels. An L1 failure aborts before L2 so the remote
// tier never holds a value the local tier refused.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
