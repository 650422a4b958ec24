package database

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config holds database configuration
type Config struct {
	Driver          string
	Path            string // sqlite3 database file
	DSN             string // pgx connection string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps sqlx.DB with the driver it was opened with
type DB struct {
	*sqlx.DB
	driver string
	logger *zap.Logger
}

// New creates a new database connection
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		// WAL mode for better concurrency
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
	case DriverPostgres:
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlxDB, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{
		DB:     sqlxDB,
		driver: driver,
		logger: logger,
	}

	logger.Info("Database connection established",
		zap.String("driver", driver),
		zap.String("path", cfg.Path))
	return db, nil
}

// Driver returns the driver name the database was opened with
func (db *DB) Driver() string {
	return db.driver
}

// WithTransaction executes a function within a transaction
func (db *DB) WithTransaction(fn func(*sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("Closing database connection")
	return db.DB.Close()
}
