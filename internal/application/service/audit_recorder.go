package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/google/uuid"
)

type auditRecorder struct {
	repo   port.AuditRepository
	logger Logger
	now    func() time.Time
}

// NewAuditRecorder creates an AuditSink that appends to the audit trail.
// Storage failures are logged and swallowed.
func NewAuditRecorder(repo port.AuditRepository, logger Logger) port.AuditSink {
	return &auditRecorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Record implements port.AuditSink
func (a *auditRecorder) Record(ctx context.Context, invoiceID string, step entity.AuditStep, operation string, details map[string]interface{}) entity.AuditEntry {
	entry := entity.AuditEntry{
		ID:        uuid.NewString(),
		InvoiceID: invoiceID,
		Step:      step,
		Operation: operation,
		Timestamp: a.now().UTC(),
	}

	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			a.logger.Warn("Failed to encode audit details", "invoice_id", invoiceID, "operation", operation, "error", err)
		} else {
			entry.Details = raw
		}
	}

	if err := a.repo.Append(ctx, &entry); err != nil {
		a.logger.Warn("Failed to record audit entry",
			"invoice_id", invoiceID,
			"step", string(step),
			"operation", operation,
			"error", err)
	}
	return entry
}

type nopMetrics struct{}

func (nopMetrics) ObserveDecision(string, float64) {}
func (nopMetrics) IncPatternApplied(string)        {}
func (nopMetrics) IncPatternLearned(string)        {}
func (nopMetrics) IncRecallFailure(string)         {}
func (nopMetrics) IncDuplicateDetected()           {}
func (nopMetrics) IncVersionConflict(string)       {}

func metricsOrNop(m port.MemoryMetrics) port.MemoryMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
