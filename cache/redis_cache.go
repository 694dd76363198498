package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/conflux/types"
)

// keyPrefix namespaces configuration entries in Redis.
const keyPrefix = "conflux:config:"

// RedisCache stores JSON-encoded entry snapshots in Redis so replicas share
// one cache. Backend failures count as misses on the read path and surface
// as errors on the write path.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *zap.Logger
	hits       atomic.Uint64
	misses     atomic.Uint64
	mu         sync.RWMutex
	closed     bool
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig, defaultTTL time.Duration, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &RedisCache{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger.With(zap.String("component", "cache")),
	}, nil
}

// Get returns the cached entry for key. Backend errors are logged and
// reported as misses so reads fall through to the store.
func (c *RedisCache) Get(ctx context.Context, key string) (*types.ConfigEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.misses.Add(1)
		return nil, false
	}

	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}

	var entry types.ConfigEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.logger.Error("cache entry corrupt, dropping",
			zap.String("key", key),
			zap.Error(err),
		)
		c.client.Del(ctx, keyPrefix+key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &entry, true
}

// Put stores an entry snapshot under key.
func (c *RedisCache) Put(ctx context.Context, key string, entry *types.ConfigEntry, ttl time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("cache is closed")
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("cache is closed")
	}

	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// InvalidateAll removes every cached configuration entry. Only keys under
// the configuration prefix are touched.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("cache is closed")
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Stats returns hit and miss counters. The entry count covers only keys
// under the configuration prefix.
func (c *RedisCache) Stats() Stats {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
	}
	return stats
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("cache is closed")
	}
	return c.client.Ping(ctx).Err()
}

// Close shuts down the Redis client. Safe to call more than once.
func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("closing redis cache")

	return c.client.Close()
}
