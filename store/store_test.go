package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/conflux/internal/database"
	"github.com/BaSui01/conflux/types"
)

// openStores builds one store per backend so every test in this file runs
// against both the memory and the GORM implementation.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	// Each test gets its own shared-cache in-memory database so rows do
	// not leak between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))

	gormStore, err := Open(Config{
		Type:   StoreTypeGorm,
		Driver: DriverSQLite,
		DSN:    dsn,
		Pool: database.PoolConfig{
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gormStore.Close() })

	memStore := NewMemoryStore()
	t.Cleanup(func() { _ = memStore.Close() })

	return map[string]Store{
		"memory": memStore,
		"gorm":   gormStore,
	}
}

func newTestEntry(key string) *types.ConfigEntry {
	return &types.ConfigEntry{
		Key:      key,
		Value:    map[string]any{"level_1": 100.0, "level_2": 50.0},
		Kind:     types.KindCPA,
		Category: "commissions",
		ValidationSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"level_1": map[string]any{"type": "number", "minimum": 0.0},
				"level_2": map[string]any{"type": "number", "minimum": 0.0},
			},
		},
		CreatedBy: "admin",
	}
}

func TestStore_Create(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := s.Create(ctx, newTestEntry("cpa_level_amounts"))
			require.NoError(t, err)

			assert.Equal(t, "cpa_level_amounts", created.Key)
			assert.Equal(t, 1, created.Version)
			assert.True(t, created.Active)
			assert.Equal(t, "admin", created.CreatedBy)
			assert.False(t, created.CreatedAt.IsZero())
			assert.False(t, created.UpdatedAt.IsZero())

			require.Len(t, created.ChangeHistory, 1)
			assert.Equal(t, types.ActionCreate, created.ChangeHistory[0].Action)
			assert.Nil(t, created.ChangeHistory[0].OldValue)
			assert.NotNil(t, created.ChangeHistory[0].NewValue)
			assert.Equal(t, "admin", created.ChangeHistory[0].ChangedBy)
		})
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Create(ctx, newTestEntry("dup_key"))
			require.NoError(t, err)

			_, err = s.Create(ctx, newTestEntry("dup_key"))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrDuplicateKey))
		})
	}
}

func TestStore_CreateRetiredKey(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Create(ctx, newTestEntry("retired_key"))
			require.NoError(t, err)

			_, err = s.Delete(ctx, "retired_key", "admin")
			require.NoError(t, err)

			// A soft-deleted key cannot be recreated.
			_, err = s.Create(ctx, newTestEntry("retired_key"))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrDuplicateKey))
		})
	}
}

func TestStore_Get(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := s.Create(ctx, newTestEntry("get_key"))
			require.NoError(t, err)

			got, err := s.Get(ctx, "get_key")
			require.NoError(t, err)
			assert.Equal(t, created.Key, got.Key)
			assert.Equal(t, created.Version, got.Version)
			assert.Equal(t, created.Value, got.Value)
			assert.Equal(t, created.ValidationSchema, got.ValidationSchema)
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "no_such_key")
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrNotFound))
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Create(ctx, newTestEntry("update_key"))
			require.NoError(t, err)

			newValue := map[string]any{"level_1": 120.0, "level_2": 60.0}
			updated, err := s.Update(ctx, "update_key", UpdateParams{
				Value: newValue,
				Actor: "ops",
			})
			require.NoError(t, err)

			assert.Equal(t, 2, updated.Version)
			assert.Equal(t, newValue, updated.Value)
			assert.Equal(t, "commissions", updated.Category)

			require.Len(t, updated.ChangeHistory, 2)
			last := updated.ChangeHistory[1]
			assert.Equal(t, types.ActionUpdate, last.Action)
			assert.NotNil(t, last.OldValue)
			assert.Equal(t, newValue, last.NewValue)
			assert.Equal(t, "ops", last.ChangedBy)
		})
	}
}

func TestStore_UpdateDescriptionAndSchema(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := s.Create(ctx, newTestEntry("update_meta_key"))
			require.NoError(t, err)

			// Omitting description and schema keeps the stored ones.
			updated, err := s.Update(ctx, "update_meta_key", UpdateParams{
				Value: map[string]any{"level_1": 1.0, "level_2": 2.0},
				Actor: "ops",
			})
			require.NoError(t, err)
			assert.Equal(t, created.Description, updated.Description)
			assert.Equal(t, created.ValidationSchema, updated.ValidationSchema)

			desc := "commission amounts per level"
			newSchema := map[string]any{"type": "object"}
			updated, err = s.Update(ctx, "update_meta_key", UpdateParams{
				Value:            map[string]any{"level_1": 1.0, "level_2": 2.0},
				Description:      &desc,
				ValidationSchema: newSchema,
				Actor:            "ops",
			})
			require.NoError(t, err)
			assert.Equal(t, desc, updated.Description)
			assert.Equal(t, newSchema, updated.ValidationSchema)
			assert.Equal(t, 3, updated.Version)
		})
	}
}

func TestStore_UpdateNotFound(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Update(context.Background(), "ghost_key", UpdateParams{
				Value: 42.0,
				Actor: "ops",
			})
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrNotFound))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Create(ctx, newTestEntry("delete_key"))
			require.NoError(t, err)

			deleted, err := s.Delete(ctx, "delete_key", "ops")
			require.NoError(t, err)
			assert.False(t, deleted.Active)
			assert.Equal(t, 2, deleted.Version)

			_, err = s.Get(ctx, "delete_key")
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrNotFound))

			// Deleting again reports not found.
			_, err = s.Delete(ctx, "delete_key", "ops")
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrNotFound))

			// History stays queryable after retirement.
			history, err := s.GetHistory(ctx, "delete_key")
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, types.ActionCreate, history[0].Action)
			assert.Equal(t, types.ActionDelete, history[1].Action)
			assert.Nil(t, history[1].NewValue)
		})
	}
}

func TestStore_HistoryBounded(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Create(ctx, newTestEntry("bounded_key"))
			require.NoError(t, err)

			for i := 0; i < types.MaxHistoryEntries+5; i++ {
				_, err := s.Update(ctx, "bounded_key", UpdateParams{
					Value: map[string]any{"level_1": float64(i), "level_2": 0.0},
					Actor: "ops",
				})
				require.NoError(t, err)
			}

			history, err := s.GetHistory(ctx, "bounded_key")
			require.NoError(t, err)
			assert.Len(t, history, types.MaxHistoryEntries)

			// The CREATE event aged out; only recent updates remain.
			assert.Equal(t, types.ActionUpdate, history[0].Action)
			assert.Equal(t, types.ActionUpdate, history[len(history)-1].Action)

			// Version still counts every mutation.
			entry, err := s.Get(ctx, "bounded_key")
			require.NoError(t, err)
			assert.Equal(t, types.MaxHistoryEntries+6, entry.Version)
		})
	}
}

func TestStore_GetHistoryUnknownKey(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			history, err := s.GetHistory(context.Background(), "never_existed")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestStore_Listing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed := []struct {
				key      string
				kind     types.ConfigKind
				category string
			}{
				{"zz_last", types.KindSystem, "runtime"},
				{"aa_first", types.KindCPA, "commissions"},
				{"mm_middle", types.KindCPA, "commissions"},
				{"retired_entry", types.KindSystem, "runtime"},
			}
			for _, sd := range seed {
				e := newTestEntry(sd.key)
				e.Kind = sd.kind
				e.Category = sd.category
				_, err := s.Create(ctx, e)
				require.NoError(t, err)
			}
			_, err := s.Delete(ctx, "retired_entry", "ops")
			require.NoError(t, err)

			all, err := s.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "aa_first", all[0].Key)
			assert.Equal(t, "mm_middle", all[1].Key)
			assert.Equal(t, "zz_last", all[2].Key)

			byKind, err := s.GetByKind(ctx, types.KindCPA)
			require.NoError(t, err)
			require.Len(t, byKind, 2)
			assert.Equal(t, "aa_first", byKind[0].Key)

			byCategory, err := s.GetByCategory(ctx, "runtime")
			require.NoError(t, err)
			require.Len(t, byCategory, 1)
			assert.Equal(t, "zz_last", byCategory[0].Key)

			empty, err := s.GetByCategory(ctx, "no_such_category")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}
