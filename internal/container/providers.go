package container

import (
	"fmt"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/application/service"
	"github.com/garyjia/invoice-memory/internal/infrastructure/metrics"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/memory"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/invoice-memory/internal/infrastructure/storage"
	"github.com/garyjia/invoice-memory/internal/infrastructure/worker"
	"github.com/garyjia/invoice-memory/pkg/database"
	"github.com/garyjia/invoice-memory/pkg/utils"
	"go.uber.org/zap"
)

// StoreBundle holds the memory store and the connection backing it.
// DB is nil for the in-process driver.
type StoreBundle struct {
	DB    *database.DB
	Store port.MemoryStore
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Patterns  service.PatternStore
	Decisions service.DecisionEngine
	Learning  service.LearningEngine
	Invoices  service.InvoiceService
	Exporter  service.MemoryReportExporter
}

// ServiceDeps holds the dependencies of ProvideServices.
type ServiceDeps struct {
	Store    port.MemoryStore
	Reports  port.ReportStore
	Metrics  port.MemoryMetrics
	Decision service.DecisionConfig
	Patterns service.PatternStoreConfig
	Logger   *zap.Logger
}

// ProvideStore opens the configured backend and runs pending migrations.
func ProvideStore(cfg *DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		logger.Warn("Using in-process memory store, learned patterns will not survive a restart")
		return &StoreBundle{Store: memory.NewStore().MemoryStore()}, nil
	}

	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator, err := database.NewMigrator(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &StoreBundle{
		DB:    db,
		Store: repository.NewMemoryStore(sqldb.NewDB(db.DB, logger), logger),
	}, nil
}

// ProvideMetrics returns the process-wide Prometheus metrics, or nil when disabled.
func ProvideMetrics(cfg *MetricsConfig) port.MemoryMetrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return metrics.NewMetrics()
}

// ProvideReportStore creates the local report store.
func ProvideReportStore(dir string, logger *zap.Logger) port.ReportStore {
	return storage.NewLocalReportStore(dir, logger)
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Logger == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Store.VendorPatterns == nil || deps.Store.ProcessedInvoices == nil || deps.Store.Audit == nil {
		return nil, fmt.Errorf("memory store is incomplete")
	}

	serviceLogger := utils.NewZapAdapter(deps.Logger)
	audit := service.NewAuditRecorder(deps.Store.Audit, serviceLogger)

	patterns := service.NewPatternStore(deps.Store, deps.Patterns, deps.Metrics, serviceLogger)
	decisions := service.NewDecisionEngine(patterns, audit, deps.Metrics, deps.Decision, serviceLogger)
	learning := service.NewLearningEngine(patterns, audit, deps.Metrics, serviceLogger)

	return &ServiceBundle{
		Patterns:  patterns,
		Decisions: decisions,
		Learning:  learning,
		Invoices: service.NewInvoiceService(
			decisions,
			learning,
			patterns,
			deps.Store.ProcessedInvoices,
			deps.Store.Audit,
			serviceLogger,
		),
		Exporter: service.NewMemoryReportExporter(patterns, deps.Reports, serviceLogger),
	}, nil
}

// ProvideWorkers creates the worker manager with the reprocess worker registered when enabled.
func ProvideWorkers(cfg *ReprocessConfig, invoices service.InvoiceService, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger)
	if cfg != nil && cfg.Enabled {
		manager.Register(worker.NewReprocessWorker(cfg.Worker, invoices, logger))
	}
	return manager
}
