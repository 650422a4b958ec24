// Package container provides dependency injection and lifecycle management
// for the invoice memory system.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/service"
	"github.com/garyjia/invoice-memory/internal/infrastructure/worker"
	"github.com/garyjia/invoice-memory/pkg/database"
)

// DriverMemory keeps all memory in process; nothing survives a restart
const DriverMemory = "memory"

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	Decision  service.DecisionConfig
	Patterns  service.PatternStoreConfig
	Reprocess ReprocessConfig
	Metrics   MetricsConfig

	// ReportDir is where memory snapshots are written
	ReportDir string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3, pgx or memory
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the Postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ReprocessConfig holds the background reprocess worker settings.
type ReprocessConfig struct {
	Enabled bool
	Worker  worker.ReprocessWorkerConfig
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			Path:            "data/memory.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Decision: service.DefaultDecisionConfig(),
		Patterns: service.DefaultPatternStoreConfig(),
		Reprocess: ReprocessConfig{
			Enabled: true,
			Worker:  worker.DefaultReprocessWorkerConfig(),
		},
		Metrics:   MetricsConfig{Enabled: true},
		ReportDir: "data/reports",
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.ReportDir == "" {
		return fmt.Errorf("report dir is required")
	}
	return nil
}
