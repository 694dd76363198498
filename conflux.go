// Package conflux provides a top-level convenience entry point for
// embedding the configuration engine in-process with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/conflux"
//
//	eng, err := conflux.New()
//	eng, err := conflux.New(conflux.WithCacheTTL(time.Minute))
//	eng, err := conflux.New(conflux.WithStore(myStore), conflux.WithLogger(logger))
//
// The defaults use the in-memory store and cache, so an embedded engine
// needs no external services.
package conflux

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/conflux/bus"
	"github.com/BaSui01/conflux/cache"
	"github.com/BaSui01/conflux/engine"
	"github.com/BaSui01/conflux/store"
)

type options struct {
	store  store.Store
	cache  cache.Cache
	bus    *bus.ChangeBus
	config engine.Config
	logger *zap.Logger
}

// Option configures the engine created by [New].
type Option func(*options)

// WithStore sets the persistence backend. Defaults to the in-memory store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCache sets the read cache. Defaults to an in-process cache.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCacheTTL sets how long reads populate the cache for.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.config.CacheTTL = ttl }
}

// WithOpTimeout bounds each persistence call.
func WithOpTimeout(timeout time.Duration) Option {
	return func(o *options) { o.config.OpTimeout = timeout }
}

// New creates a ready-to-use configuration engine.
func New(opts ...Option) (*engine.Engine, error) {
	o := options{
		config: engine.DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.store == nil {
		o.store = store.NewMemoryStore()
	}
	if o.cache == nil {
		o.cache = cache.NewMemoryCache(cache.DefaultConfig().Capacity, o.config.CacheTTL)
	}
	if o.bus == nil {
		o.bus = bus.NewChangeBus(bus.DefaultConfig(), o.logger)
	}

	return engine.New(o.store, o.cache, o.bus, o.config, o.logger, nil), nil
}
