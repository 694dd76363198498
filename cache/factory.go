package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// Open creates a Cache from the configuration.
func Open(cfg Config, logger *zap.Logger) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(cfg.Capacity, cfg.TTL), nil
	case BackendRedis:
		return NewRedisCache(cfg.Redis, cfg.TTL, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
