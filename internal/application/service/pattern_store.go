package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/google/uuid"
)

// PatternStoreConfig holds recall and write tuning for the pattern store
type PatternStoreConfig struct {
	RecallFloor         float64 // minimum confidence for recall
	DuplicateWindowDays int
	HistoryLimit        int
	MaxWriteAttempts    int // optimistic-update attempts before giving up
}

// DefaultPatternStoreConfig returns default configuration
func DefaultPatternStoreConfig() PatternStoreConfig {
	return PatternStoreConfig{
		RecallFloor:         entity.DefaultRecallConfidenceFloor,
		DuplicateWindowDays: entity.DefaultDuplicateWindowDays,
		HistoryLimit:        entity.DefaultResolutionHistoryLimit,
		MaxWriteAttempts:    3,
	}
}

// MemorySnapshot is the full content of the three pattern families
type MemorySnapshot struct {
	VendorPatterns     []*entity.VendorPattern
	CorrectionPatterns []*entity.CorrectionPattern
	Resolutions        []*entity.ResolutionRecord
}

// PatternStore recalls and persists learned patterns.
// Recall methods degrade to empty results on read failure; writes return errors
// wrapping entity.ErrStoreUnavailable.
type PatternStore interface {
	RecallVendorPatterns(ctx context.Context, vendor string) []*entity.VendorPattern
	RecallVendorPatternsOfType(ctx context.Context, vendor string, patternType entity.PatternType) []*entity.VendorPattern
	RecallCorrectionPatterns(ctx context.Context, vendor string) []*entity.CorrectionPattern
	RecallResolutionHistory(ctx context.Context, vendor string, issueType entity.IssueType) []*entity.ResolutionRecord

	UpsertVendorPattern(ctx context.Context, draft *entity.VendorPattern) (*entity.VendorPattern, error)
	InsertCorrectionPattern(ctx context.Context, draft *entity.CorrectionPattern) (*entity.CorrectionPattern, error)
	InsertResolutionRecord(ctx context.Context, draft *entity.ResolutionRecord) (*entity.ResolutionRecord, error)

	// Reinforce adjusts a pattern's confidence after an outcome and returns the new confidence
	Reinforce(ctx context.Context, patternID string, family entity.PatternFamily, successful bool) (float64, error)

	// DetectDuplicate returns a previously processed invoice of the same vendor with the
	// same invoice number dated within the duplicate window, or nil
	DetectDuplicate(ctx context.Context, invoice *entity.Invoice) *entity.Invoice

	Snapshot(ctx context.Context) (*MemorySnapshot, error)
	ClearAll(ctx context.Context) error
}

type patternStoreImpl struct {
	store   port.MemoryStore
	config  PatternStoreConfig
	metrics port.MemoryMetrics
	logger  Logger
	now     func() time.Time
}

// NewPatternStore creates a new PatternStore
func NewPatternStore(store port.MemoryStore, config PatternStoreConfig, metrics port.MemoryMetrics, logger Logger) PatternStore {
	if config.MaxWriteAttempts < 1 {
		config.MaxWriteAttempts = 1
	}
	return &patternStoreImpl{
		store:   store,
		config:  config,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecallVendorPatterns returns the vendor's patterns above the recall floor, highest confidence first
func (s *patternStoreImpl) RecallVendorPatterns(ctx context.Context, vendor string) []*entity.VendorPattern {
	return s.RecallVendorPatternsOfType(ctx, vendor, "")
}

// RecallVendorPatternsOfType narrows vendor recall to one pattern type; empty type means all
func (s *patternStoreImpl) RecallVendorPatternsOfType(ctx context.Context, vendor string, patternType entity.PatternType) []*entity.VendorPattern {
	patterns, err := s.store.VendorPatterns.ListByVendor(ctx, vendor, patternType, s.config.RecallFloor)
	if err != nil {
		s.metrics.IncRecallFailure(string(entity.FamilyVendor))
		s.logger.Warn("Vendor pattern recall failed, continuing without vendor memory",
			"vendor", vendor, "pattern_type", string(patternType), "error", err)
		return []*entity.VendorPattern{}
	}
	return patterns
}

// RecallCorrectionPatterns returns vendor-scoped and global rules above the recall floor
func (s *patternStoreImpl) RecallCorrectionPatterns(ctx context.Context, vendor string) []*entity.CorrectionPattern {
	patterns, err := s.store.CorrectionPatterns.ListApplicable(ctx, vendor, s.config.RecallFloor)
	if err != nil {
		s.metrics.IncRecallFailure(string(entity.FamilyCorrection))
		s.logger.Warn("Correction pattern recall failed, continuing without correction memory",
			"vendor", vendor, "error", err)
		return []*entity.CorrectionPattern{}
	}
	return patterns
}

// RecallResolutionHistory returns the newest resolution records for vendor
func (s *patternStoreImpl) RecallResolutionHistory(ctx context.Context, vendor string, issueType entity.IssueType) []*entity.ResolutionRecord {
	records, err := s.store.Resolutions.ListRecent(ctx, vendor, issueType, s.config.HistoryLimit)
	if err != nil {
		s.metrics.IncRecallFailure(entity.CollectionResolutions)
		s.logger.Warn("Resolution history recall failed",
			"vendor", vendor, "issue_type", string(issueType), "error", err)
		return []*entity.ResolutionRecord{}
	}
	return records
}

// UpsertVendorPattern merges the draft into the pattern with the same key or inserts it.
// Merging adds the counter deltas and replaces value and confidence.
func (s *patternStoreImpl) UpsertVendorPattern(ctx context.Context, draft *entity.VendorPattern) (*entity.VendorPattern, error) {
	key := draft.PatternKey()

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxWriteAttempts; attempt++ {
		stored, err := s.upsertVendorPatternOnce(ctx, draft)
		if err == nil {
			return stored, nil
		}
		if !isWriteRace(err) {
			s.logger.Error("Failed to upsert vendor pattern", "key", key.String(), "error", err)
			return nil, fmt.Errorf("%w: upsert vendor pattern %s: %w", entity.ErrStoreUnavailable, key, err)
		}

		lastErr = err
		s.metrics.IncVersionConflict(string(entity.FamilyVendor))
		s.logger.Warn("Vendor pattern changed concurrently, retrying",
			"key", key.String(), "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("%w: upsert vendor pattern %s after %d attempts: %w",
		entity.ErrStoreUnavailable, key, s.config.MaxWriteAttempts, lastErr)
}

func (s *patternStoreImpl) upsertVendorPatternOnce(ctx context.Context, draft *entity.VendorPattern) (*entity.VendorPattern, error) {
	repo := s.store.VendorPatterns
	now := s.now()

	existing, err := repo.GetByKey(ctx, draft.PatternKey())
	if errors.Is(err, entity.ErrNotFound) {
		created := *draft
		created.ID = uuid.NewString()
		created.Version = 1
		created.LastAppliedAt = nil
		created.CreatedAt = now
		created.UpdatedAt = now
		if err := repo.Create(ctx, &created); err != nil {
			return nil, err
		}
		return &created, nil
	}
	if err != nil {
		return nil, err
	}

	merged := *existing
	merged.Value = draft.Value
	merged.Confidence = draft.Confidence
	merged.TimesApplied += draft.TimesApplied
	merged.TimesSuccessful += draft.TimesSuccessful
	merged.TimesFailed += draft.TimesFailed
	merged.LastAppliedAt = &now
	merged.UpdatedAt = now
	if err := repo.Update(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// InsertCorrectionPattern appends a new correction rule
func (s *patternStoreImpl) InsertCorrectionPattern(ctx context.Context, draft *entity.CorrectionPattern) (*entity.CorrectionPattern, error) {
	now := s.now()
	created := *draft
	created.ID = uuid.NewString()
	created.Version = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.SourceInvoiceIDs == nil {
		created.SourceInvoiceIDs = []string{}
	}

	if err := s.store.CorrectionPatterns.Create(ctx, &created); err != nil {
		s.logger.Error("Failed to insert correction pattern", "correction_type", string(draft.CorrectionType), "error", err)
		return nil, fmt.Errorf("%w: insert correction pattern: %w", entity.ErrStoreUnavailable, err)
	}
	return &created, nil
}

// InsertResolutionRecord appends a resolution record
func (s *patternStoreImpl) InsertResolutionRecord(ctx context.Context, draft *entity.ResolutionRecord) (*entity.ResolutionRecord, error) {
	created := *draft
	created.ID = uuid.NewString()
	created.CreatedAt = s.now()

	if err := s.store.Resolutions.Create(ctx, &created); err != nil {
		s.logger.Error("Failed to insert resolution record", "invoice_id", draft.InvoiceID, "error", err)
		return nil, fmt.Errorf("%w: insert resolution record: %w", entity.ErrStoreUnavailable, err)
	}
	return &created, nil
}

// Reinforce applies one success or failure to a vendor or correction pattern
func (s *patternStoreImpl) Reinforce(ctx context.Context, patternID string, family entity.PatternFamily, successful bool) (float64, error) {
	var reinforceOnce func() (float64, error)
	switch family {
	case entity.FamilyVendor:
		reinforceOnce = func() (float64, error) { return s.reinforceVendorPattern(ctx, patternID, successful) }
	case entity.FamilyCorrection:
		reinforceOnce = func() (float64, error) { return s.reinforceCorrectionPattern(ctx, patternID, successful) }
	default:
		return 0, fmt.Errorf("unknown pattern family %q", family)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxWriteAttempts; attempt++ {
		confidence, err := reinforceOnce()
		if err == nil {
			s.logger.Info("Pattern reinforced",
				"pattern_id", patternID, "family", string(family),
				"successful", successful, "confidence", confidence)
			return confidence, nil
		}
		if errors.Is(err, entity.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s %s", entity.ErrPatternNotFound, family, patternID)
		}
		if !errors.Is(err, entity.ErrVersionConflict) {
			s.logger.Error("Failed to reinforce pattern", "pattern_id", patternID, "family", string(family), "error", err)
			return 0, fmt.Errorf("%w: reinforce %s %s: %w", entity.ErrStoreUnavailable, family, patternID, err)
		}
		lastErr = err
		s.metrics.IncVersionConflict(string(family))
	}

	return 0, fmt.Errorf("%w: reinforce %s %s after %d attempts: %w",
		entity.ErrStoreUnavailable, family, patternID, s.config.MaxWriteAttempts, lastErr)
}

func (s *patternStoreImpl) reinforceVendorPattern(ctx context.Context, id string, successful bool) (float64, error) {
	p, err := s.store.VendorPatterns.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	p.Confidence = entity.ReinforcedConfidence(p.Confidence, successful)
	p.TimesApplied++
	if successful {
		p.TimesSuccessful++
	} else {
		p.TimesFailed++
	}
	p.UpdatedAt = s.now()

	if err := s.store.VendorPatterns.Update(ctx, p); err != nil {
		return 0, err
	}
	return p.Confidence, nil
}

func (s *patternStoreImpl) reinforceCorrectionPattern(ctx context.Context, id string, successful bool) (float64, error) {
	p, err := s.store.CorrectionPatterns.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	p.Confidence = entity.ReinforcedConfidence(p.Confidence, successful)
	p.TimesApplied++
	if successful {
		p.TimesSuccessful++
	} else {
		p.TimesFailed++
	}
	p.UpdatedAt = s.now()

	if err := s.store.CorrectionPatterns.Update(ctx, p); err != nil {
		return 0, err
	}
	return p.Confidence, nil
}

// DetectDuplicate implements PatternStore
func (s *patternStoreImpl) DetectDuplicate(ctx context.Context, invoice *entity.Invoice) *entity.Invoice {
	number := strings.TrimSpace(invoice.Fields.InvoiceNumber)
	if number == "" {
		return nil
	}

	candidateDate, err := entity.ParseInvoiceDate(invoice.Fields.InvoiceDate)
	if err != nil {
		s.logger.Debug("Skipping duplicate check, invoice date not parseable",
			"invoice_id", invoice.InvoiceID, "invoice_date", invoice.Fields.InvoiceDate)
		return nil
	}

	records, err := s.store.ProcessedInvoices.ListByVendor(ctx, invoice.Vendor, invoice.InvoiceID)
	if err != nil {
		s.metrics.IncRecallFailure(entity.CollectionProcessedInvoices)
		s.logger.Warn("Duplicate check failed, treating invoice as new",
			"invoice_id", invoice.InvoiceID, "vendor", invoice.Vendor, "error", err)
		return nil
	}

	// A reprocessed invoice can only duplicate invoices seen before it was first processed
	seenBefore := s.firstProcessedAt(ctx, invoice.InvoiceID)

	window := float64(s.config.DuplicateWindowDays)
	for _, record := range records {
		if record.Original.Fields.InvoiceNumber != invoice.Fields.InvoiceNumber {
			continue
		}
		if !seenBefore.IsZero() && !record.ProcessedAt.Before(seenBefore) {
			continue
		}
		existingDate, err := entity.ParseInvoiceDate(record.Original.Fields.InvoiceDate)
		if err != nil {
			continue
		}
		if math.Abs(entity.DaysBetween(candidateDate, existingDate)) <= window {
			original := record.Original
			return &original
		}
	}
	return nil
}

// firstProcessedAt returns when the invoice was first processed, or the zero time
// when it is new or the lookup fails
func (s *patternStoreImpl) firstProcessedAt(ctx context.Context, invoiceID string) time.Time {
	record, err := s.store.ProcessedInvoices.GetByInvoiceID(ctx, invoiceID)
	if errors.Is(err, entity.ErrNotFound) {
		return time.Time{}
	}
	if err != nil {
		s.metrics.IncRecallFailure(entity.CollectionProcessedInvoices)
		s.logger.Warn("Could not load processed record for duplicate check",
			"invoice_id", invoiceID, "error", err)
		return time.Time{}
	}
	return record.ProcessedAt
}

// Snapshot returns every stored pattern and resolution record
func (s *patternStoreImpl) Snapshot(ctx context.Context) (*MemorySnapshot, error) {
	vendorPatterns, err := s.store.VendorPatterns.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendor patterns: %w", err)
	}
	correctionPatterns, err := s.store.CorrectionPatterns.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list correction patterns: %w", err)
	}
	resolutions, err := s.store.Resolutions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resolution records: %w", err)
	}

	return &MemorySnapshot{
		VendorPatterns:     vendorPatterns,
		CorrectionPatterns: correctionPatterns,
		Resolutions:        resolutions,
	}, nil
}

// ClearAll deletes all memory, processed invoices and the audit trail in one transaction
func (s *patternStoreImpl) ClearAll(ctx context.Context) error {
	err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.ProcessedInvoices.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear processed invoices: %w", err)
		}
		if err := s.store.VendorPatterns.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear vendor memory: %w", err)
		}
		if err := s.store.CorrectionPatterns.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear correction memory: %w", err)
		}
		if err := s.store.Resolutions.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear resolution memory: %w", err)
		}
		if err := s.store.Audit.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear audit trail: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to clear memory", "error", err)
		return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}

	s.logger.Info("All memory cleared")
	return nil
}

func isWriteRace(err error) bool {
	return errors.Is(err, entity.ErrVersionConflict) || errors.Is(err, entity.ErrDuplicateKey)
}
