package cache

import (
	"context"
	"time"

	"github.com/BaSui01/conflux/types"
)

// Backend names a cache implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Cache holds read-only snapshots of configuration entries keyed by
// configuration key. Entries expire after their TTL and are invalidated on
// every committed mutation.
type Cache interface {
	// Get returns the cached entry for key, or false when the key is not
	// cached, has expired, or the backend failed.
	Get(ctx context.Context, key string) (*types.ConfigEntry, bool)

	// Put stores an entry snapshot under key for the given TTL. A zero ttl
	// uses the configured default.
	Put(ctx context.Context, key string, entry *types.ConfigEntry, ttl time.Duration) error

	// Invalidate removes the entry for key. Removing an absent key is not
	// an error.
	Invalidate(ctx context.Context, key string) error

	// InvalidateAll empties the cache.
	InvalidateAll(ctx context.Context) error

	// Stats returns hit and miss counters.
	Stats() Stats

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Stats carries cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// Config selects and configures a cache backend.
type Config struct {
	Backend  Backend       `yaml:"backend" json:"backend"`
	Capacity uint64        `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	Redis    RedisConfig   `yaml:"redis" json:"redis"`
}

// DefaultConfig returns an in-process cache configuration.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendMemory,
		Capacity: 1000,
		TTL:      5 * time.Minute,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			MaxRetries:   3,
			PoolSize:     10,
			MinIdleConns: 2,
		},
	}
}
