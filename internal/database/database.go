package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/ksred/holdings-ingest/internal/config"
	"github.com/ksred/holdings-ingest/internal/database/migrations"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the configured store and runs migrations.
// PreferSimpleProtocol avoids prepared statement clashes behind poolers.
func NewDatabase(cfg config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.PostgresDSN(),
			PreferSimpleProtocol: true,
		})
	case config.DriverSQLite:
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := open(dialector, debug)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == config.DriverSQLite {
		// A single connection keeps in-memory databases shared and
		// serializes writers on file databases.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens and migrates a sqlite store; ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	return NewDatabase(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: path}, false)
}

// Migrate runs every schema migration in order.
func Migrate(db *gorm.DB) error {
	if err := migrations.CreateHoldingsSchema(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddHoldingsIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SQLiteDSN enables foreign keys so holdings cascade with their filing.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1&_busy_timeout=5000"
}

func open(dialector gorm.Dialector, debug bool) (*gorm.DB, error) {
	level := logger.Silent
	if debug {
		level = logger.Warn
	}
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
}
