package database

import (
	"fmt"
	"strings"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"github.com/Breakdown/breakdown-services-sub000/internal/notify"
	"github.com/Breakdown/breakdown-services-sub000/internal/queue"
	"github.com/Breakdown/breakdown-services-sub000/internal/users"
	sqlite "github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverSQLite selects the pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL through lib/pq.
	DriverPostgres = "postgres"
)

// Open establishes a connection for the named driver and performs schema migrations.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	default:
		return nil, fmt.Errorf("database driver %q is not supported", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driver))
	return db, nil
}

// Migrate creates every table and applies the named data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := legislation.Migrate(db); err != nil {
		return err
	}
	models := append([]any{&migrationRecord{}}, users.Models()...)
	models = append(models, queue.Models()...)
	models = append(models, notify.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
