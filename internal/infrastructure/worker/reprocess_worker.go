package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PendingReprocessor re-runs decisions for invoices still awaiting review
type PendingReprocessor interface {
	ReprocessPending(ctx context.Context, evaluatedBefore time.Time, limit int) (int, error)
}

// ReprocessWorkerConfig holds configuration for the reprocess worker
type ReprocessWorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MinAge         time.Duration // only invoices last evaluated at least this long ago
	ProcessTimeout time.Duration
}

// DefaultReprocessWorkerConfig returns default configuration
func DefaultReprocessWorkerConfig() ReprocessWorkerConfig {
	return ReprocessWorkerConfig{
		PollInterval:   5 * time.Minute,
		BatchSize:      20,
		MinAge:         10 * time.Minute,
		ProcessTimeout: 60 * time.Second,
	}
}

// ReprocessWorker periodically re-evaluates invoices awaiting review so that
// patterns learned since their first pass can clear them
type ReprocessWorker struct {
	config    ReprocessWorkerConfig
	invoices  PendingReprocessor
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool

	runs        int
	reprocessed int
	lastError   error
}

// NewReprocessWorker creates a new reprocess worker
func NewReprocessWorker(config ReprocessWorkerConfig, invoices PendingReprocessor, logger *zap.Logger) *ReprocessWorker {
	defaults := DefaultReprocessWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}

	return &ReprocessWorker{
		config:   config,
		invoices: invoices,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins the polling loop
func (w *ReprocessWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("reprocess worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("ReprocessWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("min_age", w.config.MinAge))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch
func (w *ReprocessWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info("ReprocessWorker stopped",
		zap.Int("runs", w.runs),
		zap.Int("reprocessed", w.reprocessed))
	return nil
}

// Name returns the worker name for identification
func (w *ReprocessWorker) Name() string {
	return "ReprocessWorker"
}

// Stats returns the number of completed runs and reprocessed invoices
func (w *ReprocessWorker) Stats() (runs, reprocessed int, lastError error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runs, w.reprocessed, w.lastError
}

func (w *ReprocessWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Reprocess loop context cancelled")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce reprocesses one batch of invoices awaiting review
func (w *ReprocessWorker) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, w.config.ProcessTimeout)
	defer cancel()

	cutoff := w.now().UTC().Add(-w.config.MinAge)
	count, err := w.invoices.ReprocessPending(runCtx, cutoff, w.config.BatchSize)

	w.mu.Lock()
	w.runs++
	w.reprocessed += count
	w.lastError = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Failed to reprocess pending invoices", zap.Error(err))
		return count
	}
	if count > 0 {
		w.logger.Info("Reprocessed pending invoices",
			zap.Int("count", count),
			zap.Time("processed_before", cutoff))
	}
	return count
}
