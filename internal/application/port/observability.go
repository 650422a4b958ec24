package port

import (
	"context"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// AuditSink records audit trail entries. Record never fails the caller;
// it returns the entry it attempted to store.
type AuditSink interface {
	Record(ctx context.Context, invoiceID string, step entity.AuditStep, operation string, details map[string]interface{}) entity.AuditEntry
}

// MemoryMetrics receives counters from the decision and learning flows
type MemoryMetrics interface {
	ObserveDecision(outcome string, confidence float64)
	IncPatternApplied(kind string)
	IncPatternLearned(kind string)
	IncRecallFailure(family string)
	IncDuplicateDetected()
	IncVersionConflict(family string)
}
