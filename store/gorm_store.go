package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/conflux/internal/database"
	"github.com/BaSui01/conflux/types"
)

// configRecord is the GORM row model. Value, ValidationSchema and
// ChangeHistory are stored as JSON text columns; one row exists per
// configuration key whether active or retired.
type configRecord struct {
	ID               uint   `gorm:"primaryKey"`
	Key              string `gorm:"uniqueIndex;size:100;not null"`
	Value            string `gorm:"type:text;not null"`
	Kind             string `gorm:"size:32;index;not null"`
	Category         string `gorm:"size:100;index;not null"`
	Description      string `gorm:"type:text"`
	ValidationSchema string `gorm:"type:text"`
	Version          int    `gorm:"not null"`
	Active           bool   `gorm:"index;not null"`
	ChangeHistory    string `gorm:"type:text"`
	CreatedBy        string `gorm:"size:100"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName sets the table name for configuration rows.
func (configRecord) TableName() string {
	return "config_entries"
}

// GormStore is a GORM-backed implementation of Store for PostgreSQL, MySQL
// and SQLite deployments. Per-key linearizability comes from running every
// mutation inside a transaction that locks the row (SELECT ... FOR UPDATE
// on databases that support it).
type GormStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormStore creates a GORM-backed store on top of an open database
// handle and ensures the config_entries table exists.
func NewGormStore(db *gorm.DB, poolCfg database.PoolConfig, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create pool manager: %w", err)
	}

	if err := db.AutoMigrate(&configRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate config_entries: %w", err)
	}

	return &GormStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "config_store")),
	}, nil
}

// Create persists a new entry at version 1 with a CREATE audit event.
func (s *GormStore) Create(ctx context.Context, entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	var created *types.ConfigEntry

	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var existing configRecord
		err := tx.Where("key = ?", entry.Key).Take(&existing).Error
		if err == nil {
			// Retired keys stay retired: reuse after soft delete is
			// disallowed.
			return types.NewDuplicateKey(entry.Key)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return s.mapError(err, entry.Key)
		}

		now := time.Now().UTC()
		stored := *entry
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

		rec, err := s.toRecord(&stored)
		if err != nil {
			return err
		}
		if err := tx.Create(rec).Error; err != nil {
			return s.mapError(err, entry.Key)
		}

		created, err = s.toEntry(rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns the active entry for key.
func (s *GormStore) Get(ctx context.Context, key string) (*types.ConfigEntry, error) {
	var rec configRecord
	err := s.pool.DB().WithContext(ctx).
		Where("key = ? AND active = ?", key, true).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFound(key)
	}
	if err != nil {
		return nil, s.mapError(err, key)
	}
	return s.toEntry(&rec)
}

// GetByCategory returns active entries in the category, ordered by category
// then key.
func (s *GormStore) GetByCategory(ctx context.Context, category string) ([]*types.ConfigEntry, error) {
	return s.listWhere(ctx, "category = ? AND active = ?", category, true)
}

// GetByKind returns active entries of the kind, ordered by category then key.
func (s *GormStore) GetByKind(ctx context.Context, kind types.ConfigKind) ([]*types.ConfigEntry, error) {
	return s.listWhere(ctx, "kind = ? AND active = ?", string(kind), true)
}

// GetAll returns every active entry, ordered by category then key.
func (s *GormStore) GetAll(ctx context.Context) ([]*types.ConfigEntry, error) {
	return s.listWhere(ctx, "active = ?", true)
}

func (s *GormStore) listWhere(ctx context.Context, query string, args ...any) ([]*types.ConfigEntry, error) {
	var recs []configRecord
	err := s.pool.DB().WithContext(ctx).
		Where(query, args...).
		Order("category, key").
		Find(&recs).Error
	if err != nil {
		return nil, s.mapError(err, "")
	}

	entries := make([]*types.ConfigEntry, 0, len(recs))
	for i := range recs {
		entry, err := s.toEntry(&recs[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Update atomically bumps the version and replaces the value. The re-read,
// version increment, history append and row write all happen inside one
// transaction holding the row lock.
func (s *GormStore) Update(ctx context.Context, key string, params UpdateParams) (*types.ConfigEntry, error) {
	var updated *types.ConfigEntry

	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		rec, err := s.lockRow(tx, key)
		if err != nil {
			return err
		}

		entry, err := s.toEntry(rec)
		if err != nil {
			return err
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

		if err := s.saveEntry(tx, rec, entry); err != nil {
			return err
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes the active entry.
func (s *GormStore) Delete(ctx context.Context, key string, actor string) (*types.ConfigEntry, error) {
	var deleted *types.ConfigEntry

	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		rec, err := s.lockRow(tx, key)
		if err != nil {
			return err
		}

		entry, err := s.toEntry(rec)
		if err != nil {
			return err
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

		if err := s.saveEntry(tx, rec, entry); err != nil {
			return err
		}
		deleted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetHistory returns the change history for key, active or retired.
func (s *GormStore) GetHistory(ctx context.Context, key string) ([]types.ChangeEvent, error) {
	var rec configRecord
	err := s.pool.DB().WithContext(ctx).
		Where("key = ?", key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []types.ChangeEvent{}, nil
	}
	if err != nil {
		return nil, s.mapError(err, key)
	}

	entry, err := s.toEntry(&rec)
	if err != nil {
		return nil, err
	}
	if entry.ChangeHistory == nil {
		return []types.ChangeEvent{}, nil
	}
	return entry.ChangeHistory, nil
}

// Ping checks that the backing database is reachable.
func (s *GormStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return types.NewStoreUnavailable(err)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	return s.pool.Close()
}

// lockRow loads the active row for key under a row lock. SQLite has no
// SELECT ... FOR UPDATE; its write transactions serialize on the database
// file instead.
func (s *GormStore) lockRow(tx *gorm.DB, key string) (*configRecord, error) {
	q := tx.Where("key = ? AND active = ?", key, true)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rec configRecord
	if err := q.Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFound(key)
		}
		return nil, s.mapError(err, key)
	}
	return &rec, nil
}

// saveEntry serializes the entry back into rec and writes the row. If the
// change history fails to serialize, the previous history column is kept
// and the mutation proceeds.
func (s *GormStore) saveEntry(tx *gorm.DB, rec *configRecord, entry *types.ConfigEntry) error {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return types.NewError(types.ErrInternalError, "serialize config value").WithCause(err)
	}

	schemaJSON := rec.ValidationSchema
	if entry.ValidationSchema != nil {
		data, err := json.Marshal(entry.ValidationSchema)
		if err != nil {
			return types.NewError(types.ErrInternalError, "serialize validation schema").WithCause(err)
		}
		schemaJSON = string(data)
	}

	historyJSON := rec.ChangeHistory
	if data, err := json.Marshal(entry.ChangeHistory); err != nil {
		s.logger.Warn("history append failed, keeping previous history",
			zap.String("key", entry.Key),
			zap.Error(err),
		)
	} else {
		historyJSON = string(data)
	}

	rec.Value = string(value)
	rec.Kind = string(entry.Kind)
	rec.Category = entry.Category
	rec.Description = entry.Description
	rec.ValidationSchema = schemaJSON
	rec.Version = entry.Version
	rec.Active = entry.Active
	rec.ChangeHistory = historyJSON
	rec.UpdatedAt = entry.UpdatedAt

	if err := tx.Save(rec).Error; err != nil {
		return s.mapError(err, entry.Key)
	}
	return nil
}

// toRecord serializes an entry into a row model.
func (s *GormStore) toRecord(entry *types.ConfigEntry) (*configRecord, error) {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "serialize config value").WithCause(err)
	}

	var schemaJSON string
	if entry.ValidationSchema != nil {
		data, err := json.Marshal(entry.ValidationSchema)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "serialize validation schema").WithCause(err)
		}
		schemaJSON = string(data)
	}

	var historyJSON string
	if data, err := json.Marshal(entry.ChangeHistory); err != nil {
		s.logger.Warn("history append failed, storing empty history",
			zap.String("key", entry.Key),
			zap.Error(err),
		)
	} else {
		historyJSON = string(data)
	}

	return &configRecord{
		Key:              entry.Key,
		Value:            string(value),
		Kind:             string(entry.Kind),
		Category:         entry.Category,
		Description:      entry.Description,
		ValidationSchema: schemaJSON,
		Version:          entry.Version,
		Active:           entry.Active,
		ChangeHistory:    historyJSON,
		CreatedBy:        entry.CreatedBy,
		CreatedAt:        entry.CreatedAt,
		UpdatedAt:        entry.UpdatedAt,
	}, nil
}

// toEntry deserializes a row model into an entry.
func (s *GormStore) toEntry(rec *configRecord) (*types.ConfigEntry, error) {
	entry := &types.ConfigEntry{
		Key:         rec.Key,
		Kind:        types.ConfigKind(rec.Kind),
		Category:    rec.Category,
		Description: rec.Description,
		Version:     rec.Version,
		Active:      rec.Active,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}

	if rec.Value != "" {
		if err := json.Unmarshal([]byte(rec.Value), &entry.Value); err != nil {
			return nil, types.NewError(types.ErrInternalError, "deserialize config value").WithCause(err)
		}
	}
	if rec.ValidationSchema != "" {
		if err := json.Unmarshal([]byte(rec.ValidationSchema), &entry.ValidationSchema); err != nil {
			return nil, types.NewError(types.ErrInternalError, "deserialize validation schema").WithCause(err)
		}
	}
	if rec.ChangeHistory != "" {
		if err := json.Unmarshal([]byte(rec.ChangeHistory), &entry.ChangeHistory); err != nil {
			// Corrupt history must not make the entry unreadable.
			s.logger.Warn("failed to deserialize change history",
				zap.String("key", rec.Key),
				zap.Error(err),
			)
			entry.ChangeHistory = nil
		}
	}

	return entry, nil
}

// mapError translates driver and GORM errors into the typed taxonomy.
func (s *GormStore) mapError(err error, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return types.NewDuplicateKey(key)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.NewStoreUnavailable(err)
	case isConnectivityError(err):
		return types.NewStoreUnavailable(err)
	default:
		return types.NewError(types.ErrInternalError, "configuration store query failed").WithCause(err)
	}
}

// isConnectivityError classifies driver errors that indicate the database
// is unreachable rather than the query being wrong.
func isConnectivityError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"i/o timeout",
		"database is locked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
