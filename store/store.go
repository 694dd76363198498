package store

import (
	"context"
	"errors"

	"github.com/BaSui01/conflux/types"
)

// errStoreClosed signals use of a store after Close.
var errStoreClosed = errors.New("store is closed")

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeGorm   StoreType = "gorm"
)

// UpdateParams carries the mutable fields of an update operation. Nil
// optional fields leave the stored value untouched.
type UpdateParams struct {
	// Value replaces the entry's current value.
	Value any

	// Description, when non-nil, replaces the entry's description.
	Description *string

	// ValidationSchema, when non-nil, replaces the entry's validation schema.
	ValidationSchema map[string]any

	// Actor is the principal recorded in the audit event.
	Actor string
}

// Store is the durable persistence contract for configuration entries.
//
// Implementations must serialize concurrent mutations of the same key so
// that the read-modify-write of the version counter and the history append
// form one atomic unit with the row update.
type Store interface {
	// Create persists a new entry at version 1 with a CREATE audit event.
	// Fails with DUPLICATE_KEY when the key already exists, active or
	// retired.
	Create(ctx context.Context, entry *types.ConfigEntry) (*types.ConfigEntry, error)

	// Get returns the active entry for key, or NOT_FOUND.
	Get(ctx context.Context, key string) (*types.ConfigEntry, error)

	// GetByCategory returns active entries in the category, ordered by
	// category then key.
	GetByCategory(ctx context.Context, category string) ([]*types.ConfigEntry, error)

	// GetByKind returns active entries of the kind, ordered by key.
	GetByKind(ctx context.Context, kind types.ConfigKind) ([]*types.ConfigEntry, error)

	// GetAll returns every active entry, ordered by key.
	GetAll(ctx context.Context) ([]*types.ConfigEntry, error)

	// Update atomically re-reads the active entry, bumps its version by 1,
	// replaces the value (and optionally description/schema), and appends
	// an UPDATE audit event. Fails with NOT_FOUND when no active entry
	// exists.
	Update(ctx context.Context, key string, params UpdateParams) (*types.ConfigEntry, error)

	// Delete soft-deletes the active entry: active=false, version bumped,
	// DELETE audit event appended. The row and its history remain
	// queryable. Fails with NOT_FOUND when no active entry exists.
	Delete(ctx context.Context, key string, actor string) (*types.ConfigEntry, error)

	// GetHistory returns the bounded change history for the row matching
	// key, active or retired. Returns an empty slice when no row exists.
	GetHistory(ctx context.Context, key string) ([]types.ChangeEvent, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
