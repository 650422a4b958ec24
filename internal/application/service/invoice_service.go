package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// MemoryStats summarizes the learned memory
type MemoryStats struct {
	VendorMemoryCount     int                         `json:"vendorMemoryCount"`
	CorrectionMemoryCount int                         `json:"correctionMemoryCount"`
	ResolutionMemoryCount int                         `json:"resolutionMemoryCount"`
	VendorMemory          []*entity.VendorPattern     `json:"vendorMemory"`
	CorrectionMemory      []*entity.CorrectionPattern `json:"correctionMemory"`
	ResolutionMemory      []*entity.ResolutionRecord  `json:"resolutionMemory"`
}

// InvoiceService orchestrates the recall, decide and learn loop and owns the
// processed-invoice records
type InvoiceService interface {
	ProcessInvoice(ctx context.Context, invoice *entity.Invoice, purchaseOrders []entity.PurchaseOrder, deliveryNotes []entity.DeliveryNote) (*entity.ProcessingResult, error)
	ApplyHumanCorrection(ctx context.Context, invoice *entity.Invoice, correction *entity.HumanCorrection, prior *entity.ProcessingResult) ([]string, error)
	// ApplyHumanCorrectionForStored loads the original invoice and prior decision from the processed record
	ApplyHumanCorrectionForStored(ctx context.Context, correction *entity.HumanCorrection) ([]string, error)
	GetProcessingHistory(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error)
	GetAuditTrail(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error)
	GetMemoryStats(ctx context.Context) (*MemoryStats, error)
	ClearAllMemory(ctx context.Context) error
	ReinforcePattern(ctx context.Context, patternID string, family entity.PatternFamily, successful bool) (float64, error)
	// ReprocessPending re-runs the decision for invoices awaiting review whose latest
	// decision is older than evaluatedBefore and predates a memory change, and returns
	// how many were reprocessed
	ReprocessPending(ctx context.Context, evaluatedBefore time.Time, limit int) (int, error)
}

type invoiceServiceImpl struct {
	decisions  DecisionEngine
	learning   LearningEngine
	patterns   PatternStore
	processed  port.ProcessedInvoiceRepository
	auditTrail port.AuditRepository
	logger     Logger
	now        func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	decisions DecisionEngine,
	learning LearningEngine,
	patterns PatternStore,
	processed port.ProcessedInvoiceRepository,
	auditTrail port.AuditRepository,
	logger Logger,
) InvoiceService {
	return &invoiceServiceImpl{
		decisions:  decisions,
		learning:   learning,
		patterns:   patterns,
		processed:  processed,
		auditTrail: auditTrail,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessInvoice decides on the invoice and persists the processed record
func (s *invoiceServiceImpl) ProcessInvoice(ctx context.Context, invoice *entity.Invoice, purchaseOrders []entity.PurchaseOrder, deliveryNotes []entity.DeliveryNote) (*entity.ProcessingResult, error) {
	result, err := s.decisions.ProcessInvoice(ctx, invoice, purchaseOrders, deliveryNotes)
	if err != nil {
		return nil, fmt.Errorf("failed to process invoice %s: %w", invoice.InvoiceID, err)
	}

	record := entity.NewProcessedInvoice(invoice, result, purchaseOrders, deliveryNotes, s.now())
	if err := s.processed.Upsert(ctx, record); err != nil {
		s.logger.Error("Failed to store processed invoice", "invoice_id", invoice.InvoiceID, "error", err)
		return nil, fmt.Errorf("%w: store processed invoice %s: %w", entity.ErrStoreUnavailable, invoice.InvoiceID, err)
	}

	return result, nil
}

// ApplyHumanCorrection learns from the correction, then records the final decision
func (s *invoiceServiceImpl) ApplyHumanCorrection(ctx context.Context, invoice *entity.Invoice, correction *entity.HumanCorrection, prior *entity.ProcessingResult) ([]string, error) {
	updates, err := s.learning.LearnFromCorrection(ctx, invoice, correction, prior)
	if err != nil {
		return nil, err
	}

	err = s.processed.SetFinalDecision(ctx, correction.InvoiceID, correction.FinalDecision)
	if errors.Is(err, entity.ErrNotFound) {
		s.logger.Warn("No processed record for corrected invoice, final decision not stored",
			"invoice_id", correction.InvoiceID)
		return updates, nil
	}
	if err != nil {
		s.logger.Error("Failed to store final decision", "invoice_id", correction.InvoiceID, "error", err)
		return nil, fmt.Errorf("%w: store final decision for %s: %w", entity.ErrStoreUnavailable, correction.InvoiceID, err)
	}

	return updates, nil
}

// ApplyHumanCorrectionForStored implements InvoiceService
func (s *invoiceServiceImpl) ApplyHumanCorrectionForStored(ctx context.Context, correction *entity.HumanCorrection) ([]string, error) {
	record, err := s.processed.GetByInvoiceID(ctx, correction.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed invoice %s: %w", correction.InvoiceID, err)
	}
	if correction.Vendor == "" {
		correction.Vendor = record.Vendor
	}

	return s.ApplyHumanCorrection(ctx, &record.Original, correction, record.Result())
}

// GetProcessingHistory returns the stored record of the latest decision on an invoice
func (s *invoiceServiceImpl) GetProcessingHistory(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error) {
	record, err := s.processed.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get processing history for %s: %w", invoiceID, err)
	}
	return record, nil
}

// GetAuditTrail returns the invoice's audit entries, oldest first
func (s *invoiceServiceImpl) GetAuditTrail(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error) {
	entries, err := s.auditTrail.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail for %s: %w", invoiceID, err)
	}
	return entries, nil
}

// GetMemoryStats implements InvoiceService
func (s *invoiceServiceImpl) GetMemoryStats(ctx context.Context) (*MemoryStats, error) {
	snapshot, err := s.patterns.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory stats: %w", err)
	}

	return &MemoryStats{
		VendorMemoryCount:     len(snapshot.VendorPatterns),
		CorrectionMemoryCount: len(snapshot.CorrectionPatterns),
		ResolutionMemoryCount: len(snapshot.Resolutions),
		VendorMemory:          snapshot.VendorPatterns,
		CorrectionMemory:      snapshot.CorrectionPatterns,
		ResolutionMemory:      snapshot.Resolutions,
	}, nil
}

// ClearAllMemory implements InvoiceService
func (s *invoiceServiceImpl) ClearAllMemory(ctx context.Context) error {
	return s.patterns.ClearAll(ctx)
}

// ReinforcePattern implements InvoiceService
func (s *invoiceServiceImpl) ReinforcePattern(ctx context.Context, patternID string, family entity.PatternFamily, successful bool) (float64, error) {
	return s.patterns.Reinforce(ctx, patternID, family, successful)
}

// ReprocessPending implements InvoiceService. Invoices are re-run only when the
// memory they would recall changed after their latest decision. A failure on one
// invoice is logged and does not stop the batch.
func (s *invoiceServiceImpl) ReprocessPending(ctx context.Context, evaluatedBefore time.Time, limit int) (int, error) {
	pending, err := s.processed.ListAwaitingReview(ctx, evaluatedBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list invoices awaiting review: %w", err)
	}

	reprocessed := 0
	for _, record := range pending {
		if ctx.Err() != nil {
			return reprocessed, ctx.Err()
		}

		if !s.memoryChangedSince(ctx, record.Vendor, record.UpdatedAt) {
			s.logger.Debug("Skipping reprocess, no new memory", "invoice_id", record.InvoiceID)
			continue
		}

		invoice := record.Original
		result, err := s.ProcessInvoice(ctx, &invoice, record.PurchaseOrders, record.DeliveryNotes)
		if err != nil {
			s.logger.Warn("Failed to reprocess invoice", "invoice_id", record.InvoiceID, "error", err)
			continue
		}
		reprocessed++

		if !result.RequiresHumanReview {
			s.logger.Info("Reprocessed invoice auto-accepted with learned memory",
				"invoice_id", record.InvoiceID, "confidence", result.ConfidenceScore)
		}
	}

	return reprocessed, nil
}

// memoryChangedSince reports whether any pattern recalled for vendor was written at or after since
func (s *invoiceServiceImpl) memoryChangedSince(ctx context.Context, vendor string, since time.Time) bool {
	for _, p := range s.patterns.RecallVendorPatterns(ctx, vendor) {
		if !p.UpdatedAt.Before(since) {
			return true
		}
	}
	for _, p := range s.patterns.RecallCorrectionPatterns(ctx, vendor) {
		if !p.UpdatedAt.Before(since) {
			return true
		}
	}
	return false
}
