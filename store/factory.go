package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/conflux/internal/database"
)

// Driver names the SQL dialect used by the GORM backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config selects and configures a store backend.
type Config struct {
	Type   StoreType           `yaml:"type" json:"type"`
	Driver Driver              `yaml:"driver" json:"driver"`
	DSN    string              `yaml:"dsn" json:"dsn"`
	Pool   database.PoolConfig `yaml:"pool" json:"pool"`
}

// DefaultConfig returns an in-memory store configuration.
func DefaultConfig() Config {
	return Config{
		Type: StoreTypeMemory,
		Pool: database.DefaultPoolConfig(),
	}
}

// Open creates a Store from the configuration.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil

	case StoreTypeGorm:
		dialector, err := openDialector(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}

		db, err := gorm.Open(dialector, &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		return NewGormStore(db, cfg.Pool, logger)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func openDialector(driver Driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
