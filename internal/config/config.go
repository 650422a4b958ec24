package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. INVMEM_SERVER_PORT
const EnvPrefix = "INVMEM"

// Supported storage drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Decision DecisionConfig `mapstructure:"decision"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Reports  ReportsConfig  `mapstructure:"reports"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite3, pgx or memory
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// DecisionConfig holds the thresholds of the decision and recall flows
type DecisionConfig struct {
	AutoAcceptThreshold float64 `mapstructure:"auto_accept_threshold"`
	MaxConfidence       float64 `mapstructure:"max_confidence"`
	RecallFloor         float64 `mapstructure:"recall_floor"`
	DuplicateWindowDays int     `mapstructure:"duplicate_window_days"`
	POMatchWindowDays   int     `mapstructure:"po_match_window_days"`
	POMatchConfidence   float64 `mapstructure:"po_match_confidence"`
	HistoryLimit        int     `mapstructure:"history_limit"`
	MaxWriteAttempts    int     `mapstructure:"max_write_attempts"`
}

// WorkerConfig holds reprocess worker configuration
type WorkerConfig struct {
	ReprocessEnabled  bool          `mapstructure:"reprocess_enabled"`
	ReprocessInterval time.Duration `mapstructure:"reprocess_interval"`
	ReprocessBatch    int           `mapstructure:"reprocess_batch"`
	ReprocessMinAge   time.Duration `mapstructure:"reprocess_min_age"`
	ReprocessTimeout  time.Duration `mapstructure:"reprocess_timeout"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ReportsConfig holds memory report storage configuration
type ReportsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from an optional YAML file, a .env file and the environment.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding the real environment
func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/memory.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("decision.auto_accept_threshold", 0.75)
	v.SetDefault("decision.max_confidence", 0.95)
	v.SetDefault("decision.recall_floor", 0.3)
	v.SetDefault("decision.duplicate_window_days", 7)
	v.SetDefault("decision.po_match_window_days", 30)
	v.SetDefault("decision.po_match_confidence", 0.7)
	v.SetDefault("decision.history_limit", 10)
	v.SetDefault("decision.max_write_attempts", 3)

	v.SetDefault("worker.reprocess_enabled", true)
	v.SetDefault("worker.reprocess_interval", 5*time.Minute)
	v.SetDefault("worker.reprocess_batch", 20)
	v.SetDefault("worker.reprocess_min_age", 10*time.Minute)
	v.SetDefault("worker.reprocess_timeout", 60*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("reports.dir", "data/reports")
}

// bindEnvVars binds environment variables that do not follow the prefix convention
func bindEnvVars(v *viper.Viper) error {
	// Postgres credentials usually arrive as DATABASE_URL
	if err := v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DATABASE_URL"); err != nil {
		return fmt.Errorf("failed to bind database.dsn: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for %s", DriverSQLite)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	unit := map[string]float64{
		"decision.auto_accept_threshold": c.Decision.AutoAcceptThreshold,
		"decision.max_confidence":        c.Decision.MaxConfidence,
		"decision.recall_floor":          c.Decision.RecallFloor,
		"decision.po_match_confidence":   c.Decision.POMatchConfidence,
	}
	for key, value := range unit {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", key, value)
		}
	}

	positive := map[string]int{
		"decision.duplicate_window_days": c.Decision.DuplicateWindowDays,
		"decision.po_match_window_days":  c.Decision.POMatchWindowDays,
		"decision.history_limit":         c.Decision.HistoryLimit,
		"decision.max_write_attempts":    c.Decision.MaxWriteAttempts,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if c.Worker.ReprocessEnabled && c.Worker.ReprocessInterval <= 0 {
		return fmt.Errorf("worker.reprocess_interval must be positive")
	}

	return nil
}
