package config

import (
	"github.com/garyjia/invoice-memory/internal/application/service"
	"github.com/garyjia/invoice-memory/internal/container"
	"github.com/garyjia/invoice-memory/internal/infrastructure/worker"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Decision: service.DecisionConfig{
			AutoAcceptThreshold: c.Decision.AutoAcceptThreshold,
			MaxConfidence:       c.Decision.MaxConfidence,
			POMatchWindowDays:   c.Decision.POMatchWindowDays,
			POMatchConfidence:   c.Decision.POMatchConfidence,
		},
		Patterns: service.PatternStoreConfig{
			RecallFloor:         c.Decision.RecallFloor,
			DuplicateWindowDays: c.Decision.DuplicateWindowDays,
			HistoryLimit:        c.Decision.HistoryLimit,
			MaxWriteAttempts:    c.Decision.MaxWriteAttempts,
		},
		Reprocess: container.ReprocessConfig{
			Enabled: c.Worker.ReprocessEnabled,
			Worker: worker.ReprocessWorkerConfig{
				PollInterval:   c.Worker.ReprocessInterval,
				BatchSize:      c.Worker.ReprocessBatch,
				MinAge:         c.Worker.ReprocessMinAge,
				ProcessTimeout: c.Worker.ReprocessTimeout,
			},
		},
		Metrics:   container.MetricsConfig{Enabled: c.Metrics.Enabled},
		ReportDir: c.Reports.Dir,
	}
}
