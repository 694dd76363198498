package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/conflux/bus"
	"github.com/BaSui01/conflux/cache"
	"github.com/BaSui01/conflux/internal/keylock"
	"github.com/BaSui01/conflux/internal/metrics"
	"github.com/BaSui01/conflux/schema"
	"github.com/BaSui01/conflux/store"
	"github.com/BaSui01/conflux/types"
)

// Config tunes engine behavior.
type Config struct {
	// CacheTTL is how long a read populates the cache for.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// OpTimeout bounds each persistence call.
	OpTimeout time.Duration `yaml:"op_timeout" json:"op_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:  5 * time.Minute,
		OpTimeout: 10 * time.Second,
	}
}

// Engine is the orchestration facade over store, cache and change bus.
type Engine struct {
	store   store.Store
	cache   cache.Cache
	bus     *bus.ChangeBus
	locks   *keylock.KeyedMutex
	group   singleflight.Group
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// New creates an engine over the given backends. The metrics collector may
// be nil.
func New(st store.Store, ca cache.Cache, b *bus.ChangeBus, cfg Config, logger *zap.Logger, collector *metrics.Collector) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultConfig().OpTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if b != nil {
		b.OnEventDropped(func(bus.Event) { collector.RecordEventDropped() })
	}

	return &Engine{
		store:   st,
		cache:   ca,
		bus:     b,
		locks:   keylock.New(),
		config:  cfg,
		logger:  logger.With(zap.String("component", "config_engine")),
		metrics: collector,
		tracer:  otel.Tracer("conflux/engine"),
	}
}

// CreateConfig validates and persists a new entry, then invalidates the
// cache and publishes a CREATE event. Validation failure aborts before any
// side effect.
func (e *Engine) CreateConfig(ctx context.Context, entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.CreateConfig",
		trace.WithAttributes(attribute.String("config.key", entry.Key)))
	defer span.End()

	if err := validateEntryFields(entry); err != nil {
		e.metrics.RecordConfigOperation("create", "invalid", time.Since(start))
		return nil, err
	}

	normalized, err := e.validateValue(entry.Value, entry.ValidationSchema)
	if err != nil {
		e.metrics.RecordConfigOperation("create", "invalid", time.Since(start))
		return nil, err
	}
	entry.Value = normalized

	unlock := e.locks.Lock(entry.Key)
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	created, err := e.store.Create(opCtx, entry)
	if err != nil {
		e.metrics.RecordConfigOperation("create", "error", time.Since(start))
		return nil, err
	}

	e.invalidate(ctx, created.Key)
	e.publish(created.Key, created.Value, types.ActionCreate, created.Version)

	e.logger.Info("configuration created",
		zap.String("key", created.Key),
		zap.String("kind", string(created.Kind)),
		zap.String("actor", created.CreatedBy),
	)
	e.metrics.RecordConfigOperation("create", "success", time.Since(start))
	return created, nil
}

// GetConfig returns the entry for key, serving from the cache when
// possible. Concurrent misses for one key collapse into a single store
// read, which is retried once transparently on a retryable failure. The
// store read and cache populate run under the key's lock: a mutation
// cannot commit and invalidate between the fetch and the populate, so the
// cache never resurrects a pre-write snapshot.
func (e *Engine) GetConfig(ctx context.Context, key string) (*types.ConfigEntry, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetConfig",
		trace.WithAttributes(attribute.String("config.key", key)))
	defer span.End()

	if entry, ok := e.cache.Get(ctx, key); ok {
		e.metrics.RecordCacheHit("config")
		return entry, nil
	}
	e.metrics.RecordCacheMiss("config")

	v, err, _ := e.group.Do(key, func() (any, error) {
		unlock := e.locks.Lock(key)
		defer unlock()

		// A read that waited here behind a mutation may find the
		// cache already current.
		if entry, ok := e.cache.Get(ctx, key); ok {
			return entry, nil
		}

		opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
		defer cancel()

		entry, err := e.store.Get(opCtx, key)
		if err != nil && types.IsRetryable(err) {
			entry, err = e.store.Get(opCtx, key)
		}
		if err != nil {
			return nil, err
		}

		if putErr := e.cache.Put(ctx, key, entry, e.config.CacheTTL); putErr != nil {
			e.logger.Warn("cache populate failed", zap.String("key", key), zap.Error(putErr))
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.ConfigEntry), nil
}

// UpdateParams carries an update request.
type UpdateParams struct {
	Value            any
	Description      *string
	ValidationSchema map[string]any
	Actor            string
}

// UpdateConfig validates the new value against the effective schema (the
// supplied one when present, otherwise the stored one), persists the
// update, invalidates the cache and publishes an UPDATE event.
func (e *Engine) UpdateConfig(ctx context.Context, key string, params UpdateParams) (*types.ConfigEntry, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.UpdateConfig",
		trace.WithAttributes(attribute.String("config.key", key)))
	defer span.End()

	unlock := e.locks.Lock(key)
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	current, err := e.store.Get(opCtx, key)
	if err != nil {
		e.metrics.RecordConfigOperation("update", "error", time.Since(start))
		return nil, err
	}

	effectiveSchema := current.ValidationSchema
	if params.ValidationSchema != nil {
		effectiveSchema = params.ValidationSchema
	}

	normalized, err := e.validateValue(params.Value, effectiveSchema)
	if err != nil {
		e.metrics.RecordConfigOperation("update", "invalid", time.Since(start))
		return nil, err
	}

	updated, err := e.store.Update(opCtx, key, store.UpdateParams{
		Value:            normalized,
		Description:      params.Description,
		ValidationSchema: params.ValidationSchema,
		Actor:            params.Actor,
	})
	if err != nil {
		e.metrics.RecordConfigOperation("update", "error", time.Since(start))
		return nil, err
	}

	e.invalidate(ctx, key)
	e.publish(key, updated.Value, types.ActionUpdate, updated.Version)

	e.logger.Info("configuration updated",
		zap.String("key", key),
		zap.Int("version", updated.Version),
		zap.String("actor", params.Actor),
	)
	e.metrics.RecordConfigOperation("update", "success", time.Since(start))
	return updated, nil
}

// DeleteConfig soft-deletes the entry, invalidates the cache and publishes
// a DELETE event with a null value.
func (e *Engine) DeleteConfig(ctx context.Context, key string, actor string) (*types.ConfigEntry, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.DeleteConfig",
		trace.WithAttributes(attribute.String("config.key", key)))
	defer span.End()

	unlock := e.locks.Lock(key)
	defer unlock()

	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	deleted, err := e.store.Delete(opCtx, key, actor)
	if err != nil {
		e.metrics.RecordConfigOperation("delete", "error", time.Since(start))
		return nil, err
	}

	e.invalidate(ctx, key)
	e.publish(key, nil, types.ActionDelete, deleted.Version)

	e.logger.Info("configuration deleted",
		zap.String("key", key),
		zap.String("actor", actor),
	)
	e.metrics.RecordConfigOperation("delete", "success", time.Since(start))
	return deleted, nil
}

// GetHistory returns the bounded change history for key, whether the entry
// is active or retired.
func (e *Engine) GetHistory(ctx context.Context, key string) ([]types.ChangeEvent, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	return e.store.GetHistory(opCtx, key)
}

// ListAll returns every active entry.
func (e *Engine) ListAll(ctx context.Context) ([]*types.ConfigEntry, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	return e.store.GetAll(opCtx)
}

// ListByKind returns active entries of the kind.
func (e *Engine) ListByKind(ctx context.Context, kind types.ConfigKind) ([]*types.ConfigEntry, error) {
	if !types.ValidKind(kind) {
		return nil, types.NewValidationFailed([]types.FieldError{{
			Path:    "kind",
			Message: fmt.Sprintf("unknown kind %q", kind),
		}})
	}

	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	return e.store.GetByKind(opCtx, kind)
}

// ListByCategory returns active entries in the category.
func (e *Engine) ListByCategory(ctx context.Context, category string) ([]*types.ConfigEntry, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	return e.store.GetByCategory(opCtx, category)
}

// RegisterSubscriber connects a subscriber sink to the change bus.
func (e *Engine) RegisterSubscriber(id string, sink bus.Sink) error {
	err := e.bus.Register(id, sink)
	e.metrics.SetSubscribersConnected(e.bus.Stats().ConnectedSubscribers)
	return err
}

// Subscribe adds key interests for a registered subscriber.
func (e *Engine) Subscribe(id string, keys ...string) error {
	return e.bus.Subscribe(id, keys...)
}

// Unsubscribe removes key interests. Idempotent.
func (e *Engine) Unsubscribe(id string, keys ...string) {
	e.bus.Unsubscribe(id, keys...)
}

// DropSubscriber disconnects a subscriber entirely.
func (e *Engine) DropSubscriber(id string) {
	e.bus.DropSubscriber(id)
	e.metrics.SetSubscribersConnected(e.bus.Stats().ConnectedSubscribers)
}

// SubscriptionStats returns a snapshot of the subscription registry.
func (e *Engine) SubscriptionStats() bus.Stats {
	return e.bus.Stats()
}

// CacheStats returns cache effectiveness counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// HealthCheck confirms the store and cache are reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, e.config.OpTimeout)
	defer cancel()

	if err := e.store.Ping(opCtx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := e.cache.Ping(opCtx); err != nil {
		return fmt.Errorf("cache unreachable: %w", err)
	}
	return nil
}

// Close shuts down the bus, cache and store, in that order.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// validateValue compiles the shape and validates value against it,
// returning the normalized value.
func (e *Engine) validateValue(value any, rawSchema map[string]any) (any, error) {
	validator, err := schema.Compile(rawSchema)
	if err != nil {
		return nil, err
	}

	result := validator.Validate(value)
	if !result.Valid {
		return nil, types.NewValidationFailed(result.Errors)
	}
	return result.Value, nil
}

// invalidate removes the key from the cache before the mutating call
// returns, so no subsequent read can observe the pre-write value.
func (e *Engine) invalidate(ctx context.Context, key string) {
	if err := e.cache.Invalidate(ctx, key); err != nil {
		e.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// publish enqueues the change event. Called while holding the key's lock,
// which preserves the commit order of events for one key.
func (e *Engine) publish(key string, value any, action types.ChangeAction, version int) {
	e.bus.Publish(bus.Event{
		Key:       key,
		Value:     value,
		Action:    action,
		Version:   version,
		Timestamp: time.Now().UTC(),
	})
	e.metrics.RecordEventPublished()
}

// validateEntryFields checks the top-level fields of a create request.
func validateEntryFields(entry *types.ConfigEntry) error {
	var fields []types.FieldError

	if !types.ValidKey(entry.Key) {
		fields = append(fields, types.FieldError{
			Path:    "key",
			Message: "must match [a-z0-9_]{3,100}",
		})
	}
	if !types.ValidKind(entry.Kind) {
		fields = append(fields, types.FieldError{
			Path:    "kind",
			Message: fmt.Sprintf("unknown kind %q", entry.Kind),
		})
	}
	if entry.Category == "" || len(entry.Category) > types.MaxCategoryLength {
		fields = append(fields, types.FieldError{
			Path:    "category",
			Message: fmt.Sprintf("must be 1 to %d characters", types.MaxCategoryLength),
		})
	}

	if len(fields) > 0 {
		return types.NewValidationFailed(fields)
	}
	return nil
}
