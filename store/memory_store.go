package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/conflux/types"
)

// MemoryStore is an in-memory implementation of Store. Suitable for
// development and testing. Data is lost on restart.
//
// A single mutex guards the whole map; every mutation runs under it, which
// makes per-key updates trivially linearizable.
type MemoryStore struct {
	entries map[string]*types.ConfigEntry
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore creates a new in-memory configuration store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*types.ConfigEntry),
	}
}

// Create persists a new entry at version 1.
func (s *MemoryStore) Create(ctx context.Context, entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}
	if _, exists := s.entries[entry.Key]; exists {
		// Retired keys stay retired: reuse after soft delete is disallowed.
		return nil, types.NewDuplicateKey(entry.Key)
	}

	now := time.Now().UTC()
	stored := cloneEntry(entry)
	stored.Version = 1
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ChangeHistory = nil
	stored.AppendHistory(types.ChangeEvent{
		Action:    types.ActionCreate,
		NewValue:  stored.Value,
		ChangedBy: entry.CreatedBy,
		ChangedAt: now,
	})

	s.entries[entry.Key] = stored
	return cloneEntry(stored), nil
}

// Get returns the active entry for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*types.ConfigEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}
	entry, ok := s.entries[key]
	if !ok || !entry.Active {
		return nil, types.NewNotFound(key)
	}
	return cloneEntry(entry), nil
}

// GetByCategory returns active entries in the category, ordered by category
// then key.
func (s *MemoryStore) GetByCategory(ctx context.Context, category string) ([]*types.ConfigEntry, error) {
	return s.list(ctx, func(e *types.ConfigEntry) bool { return e.Category == category })
}

// GetByKind returns active entries of the kind, ordered by key.
func (s *MemoryStore) GetByKind(ctx context.Context, kind types.ConfigKind) ([]*types.ConfigEntry, error) {
	return s.list(ctx, func(e *types.ConfigEntry) bool { return e.Kind == kind })
}

// GetAll returns every active entry, ordered by key.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*types.ConfigEntry, error) {
	return s.list(ctx, func(*types.ConfigEntry) bool { return true })
}

func (s *MemoryStore) list(ctx context.Context, match func(*types.ConfigEntry) bool) ([]*types.ConfigEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}

	result := make([]*types.ConfigEntry, 0)
	for _, entry := range s.entries {
		if entry.Active && match(entry) {
			result = append(result, cloneEntry(entry))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Update atomically bumps the version and replaces the value.
func (s *MemoryStore) Update(ctx context.Context, key string, params UpdateParams) (*types.ConfigEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}
	entry, ok := s.entries[key]
	if !ok || !entry.Active {
		return nil, types.NewNotFound(key)
	}

	now := time.Now().UTC()
	oldValue := entry.Value
	entry.Version++
	entry.Value = params.Value
	entry.UpdatedAt = now
	if params.Description != nil {
		entry.Description = *params.Description
	}
	if params.ValidationSchema != nil {
		entry.ValidationSchema = params.ValidationSchema
	}
	entry.AppendHistory(types.ChangeEvent{
		Action:    types.ActionUpdate,
		OldValue:  oldValue,
		NewValue:  params.Value,
		ChangedBy: params.Actor,
		ChangedAt: now,
	})

	return cloneEntry(entry), nil
}

// Delete soft-deletes the active entry.
func (s *MemoryStore) Delete(ctx context.Context, key string, actor string) (*types.ConfigEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}
	entry, ok := s.entries[key]
	if !ok || !entry.Active {
		return nil, types.NewNotFound(key)
	}

	now := time.Now().UTC()
	oldValue := entry.Value
	entry.Version++
	entry.Active = false
	entry.UpdatedAt = now
	entry.AppendHistory(types.ChangeEvent{
		Action:    types.ActionDelete,
		OldValue:  oldValue,
		NewValue:  nil,
		ChangedBy: actor,
		ChangedAt: now,
	})

	return cloneEntry(entry), nil
}

// GetHistory returns the change history for key, active or retired.
func (s *MemoryStore) GetHistory(ctx context.Context, key string) ([]types.ChangeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewStoreUnavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.NewStoreUnavailable(errStoreClosed)
	}
	entry, ok := s.entries[key]
	if !ok {
		return []types.ChangeEvent{}, nil
	}
	history := make([]types.ChangeEvent, len(entry.ChangeHistory))
	copy(history, entry.ChangeHistory)
	return history, nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.NewStoreUnavailable(errStoreClosed)
	}
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// cloneEntry deep-copies an entry via a JSON round trip so callers never
// alias the store's internal state. Values are JSON-shaped data, so the
// round trip is lossless.
func cloneEntry(entry *types.ConfigEntry) *types.ConfigEntry {
	data, err := json.Marshal(entry)
	if err != nil {
		// Values come in via JSON decoding, so this cannot happen for any
		// entry the store accepted.
		copied := *entry
		return &copied
	}
	var out types.ConfigEntry
	if err := json.Unmarshal(data, &out); err != nil {
		copied := *entry
		return &copied
	}
	return &out
}
