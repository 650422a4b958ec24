package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/infrastructure/worker"
	"github.com/garyjia/invoice-memory/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and stop in reverse order.
type Container struct {
	config *Config
	logger *zap.Logger

	db       *database.DB
	store    port.MemoryStore
	reports  port.ReportStore
	metrics  port.MemoryMetrics
	services *ServiceBundle
	workers  *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components. Background workers are started only when
// startWorkers is true, so one-shot commands can share the wiring.
func (c *Container) Start(ctx context.Context, startWorkers bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	stores, err := ProvideStore(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	c.db = stores.DB
	c.store = stores.Store
	c.logger.Info("Memory store initialized", zap.String("driver", c.config.Database.Driver))

	c.reports = ProvideReportStore(c.config.ReportDir, c.logger)
	c.metrics = ProvideMetrics(&c.config.Metrics)

	services, err := ProvideServices(&ServiceDeps{
		Store:    c.store,
		Reports:  c.reports,
		Metrics:  c.metrics,
		Decision: c.config.Decision,
		Patterns: c.config.Patterns,
		Logger:   c.logger,
	})
	if err != nil {
		c.closeDB()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services

	c.workers = ProvideWorkers(&c.config.Reprocess, services.Invoices, c.logger)
	if startWorkers {
		if err := c.workers.StartAll(ctx); err != nil {
			c.closeDB()
			return fmt.Errorf("failed to start workers: %w", err)
		}
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("workers", c.workers.Count()))
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	var errs []error
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if err := c.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors: %v", len(errs), errs)
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) closeDB() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	}
	return err
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case !c.ready.Load():
		status.Components["store"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	case c.db == nil:
		status.Components["store"] = ComponentHealth{Healthy: true, Message: DriverMemory}
	default:
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["store"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["store"] = ComponentHealth{Healthy: true, Message: c.db.Driver()}
		}
	}

	if c.workers != nil && c.workers.Count() > 0 {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	}

	return status
}

// Store returns the memory store.
func (c *Container) Store() port.MemoryStore {
	return c.store
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
