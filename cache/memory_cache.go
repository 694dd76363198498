package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/BaSui01/conflux/types"
)

// MemoryCache is an in-process cache with per-entry TTL and a bounded
// capacity. When full, inserting a new key evicts the oldest cached entry.
// Touch-on-hit is disabled so reads never extend an entry's lifetime or
// its position in the eviction order.
type MemoryCache struct {
	items      *ttlcache.Cache[string, *types.ConfigEntry]
	defaultTTL time.Duration
	hits       atomic.Uint64
	misses     atomic.Uint64
}

// NewMemoryCache creates a bounded in-process cache. Expired entries are
// reaped by a background goroutine until Close.
func NewMemoryCache(capacity uint64, defaultTTL time.Duration) *MemoryCache {
	items := ttlcache.New(
		ttlcache.WithTTL[string, *types.ConfigEntry](defaultTTL),
		ttlcache.WithCapacity[string, *types.ConfigEntry](capacity),
		ttlcache.WithDisableTouchOnHit[string, *types.ConfigEntry](),
	)
	go items.Start()

	return &MemoryCache{
		items:      items,
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*types.ConfigEntry, bool) {
	item := c.items.Get(key)
	if item == nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return item.Value(), true
}

// Put stores an entry snapshot under key.
func (c *MemoryCache) Put(ctx context.Context, key string, entry *types.ConfigEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.items.Set(key, entry, ttl)
	return nil
}

// Invalidate removes the entry for key.
func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// InvalidateAll empties the cache.
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.items.DeleteAll()
	return nil
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.items.Len(),
	}
}

// Ping always succeeds for the in-process backend.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the expiration reaper.
func (c *MemoryCache) Close() error {
	c.items.Stop()
	return nil
}
