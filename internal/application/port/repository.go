package port

import (
	"context"
	"time"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// VendorPatternRepository defines persistence operations for vendor_memory
type VendorPatternRepository interface {
	// ListByVendor returns the vendor's patterns with confidence >= minConfidence,
	// highest confidence first, ties by creation order then id.
	// An empty patternType returns every type.
	ListByVendor(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error)

	// GetByKey returns entity.ErrNotFound when no pattern has the key
	GetByKey(ctx context.Context, key entity.PatternKey) (*entity.VendorPattern, error)
	GetByID(ctx context.Context, id string) (*entity.VendorPattern, error)

	// Create inserts a new pattern; returns entity.ErrDuplicateKey if the key exists
	Create(ctx context.Context, pattern *entity.VendorPattern) error

	// Update writes the pattern only if its stored version equals pattern.Version,
	// then bumps pattern.Version. Returns entity.ErrVersionConflict otherwise.
	Update(ctx context.Context, pattern *entity.VendorPattern) error

	ListAll(ctx context.Context) ([]*entity.VendorPattern, error)
	DeleteAll(ctx context.Context) error
}

// CorrectionPatternRepository defines persistence operations for correction_memory
type CorrectionPatternRepository interface {
	// ListApplicable returns rules scoped to vendor plus global rules,
	// with confidence >= minConfidence, highest confidence first.
	ListApplicable(ctx context.Context, vendor string, minConfidence float64) ([]*entity.CorrectionPattern, error)
	GetByID(ctx context.Context, id string) (*entity.CorrectionPattern, error)
	Create(ctx context.Context, pattern *entity.CorrectionPattern) error

	// Update has the same optimistic version semantics as VendorPatternRepository.Update
	Update(ctx context.Context, pattern *entity.CorrectionPattern) error

	ListAll(ctx context.Context) ([]*entity.CorrectionPattern, error)
	DeleteAll(ctx context.Context) error
}

// ResolutionRepository defines persistence operations for resolution_memory
type ResolutionRepository interface {
	Create(ctx context.Context, record *entity.ResolutionRecord) error

	// ListRecent returns the newest records for vendor, optionally filtered by issue type
	ListRecent(ctx context.Context, vendor string, issueType entity.IssueType, limit int) ([]*entity.ResolutionRecord, error)

	ListAll(ctx context.Context) ([]*entity.ResolutionRecord, error)
	DeleteAll(ctx context.Context) error
}

// ProcessedInvoiceRepository defines persistence operations for processed_invoices
type ProcessedInvoiceRepository interface {
	// Upsert inserts the record or replaces the decision of an existing one.
	// FinalDecision is preserved on replace.
	Upsert(ctx context.Context, record *entity.ProcessedInvoice) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error)

	// ListByVendor returns the vendor's records except excludeInvoiceID, oldest first
	ListByVendor(ctx context.Context, vendor, excludeInvoiceID string) ([]*entity.ProcessedInvoice, error)

	SetFinalDecision(ctx context.Context, invoiceID, decision string) error

	// ListAwaitingReview returns records that require review, have no final decision
	// and whose latest decision (UpdatedAt) is older than evaluatedBefore,
	// least recently evaluated first
	ListAwaitingReview(ctx context.Context, evaluatedBefore time.Time, limit int) ([]*entity.ProcessedInvoice, error)

	DeleteAll(ctx context.Context) error
}

// AuditRepository defines persistence operations for audit_trail
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error

	// ListByInvoice returns the invoice's entries ordered by timestamp ascending
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error)

	DeleteAll(ctx context.Context) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MemoryStore bundles the collections backing pattern memory
type MemoryStore struct {
	VendorPatterns     VendorPatternRepository
	CorrectionPatterns CorrectionPatternRepository
	Resolutions        ResolutionRepository
	ProcessedInvoices  ProcessedInvoiceRepository
	Audit              AuditRepository
	Tx                 TransactionManager
}
