// Package memory provides an in-process port.MemoryStore used by tests and the
// demo command. It follows the same ordering and version semantics as the SQL
// repositories.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// Store holds every collection behind one mutex
type Store struct {
	mu sync.RWMutex

	seq                int64
	vendorPatterns     map[string]*vendorRow
	correctionPatterns map[string]*correctionRow
	resolutions        []*entity.ResolutionRecord
	processed          map[string]*entity.ProcessedInvoice
	audit              []*entity.AuditEntry
}

type vendorRow struct {
	seq     int64
	pattern entity.VendorPattern
}

type correctionRow struct {
	seq     int64
	pattern entity.CorrectionPattern
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		vendorPatterns:     make(map[string]*vendorRow),
		correctionPatterns: make(map[string]*correctionRow),
		processed:          make(map[string]*entity.ProcessedInvoice),
	}
}

// MemoryStore returns the repositories backed by this store
func (s *Store) MemoryStore() port.MemoryStore {
	return port.MemoryStore{
		VendorPatterns:     (*vendorPatternRepo)(s),
		CorrectionPatterns: (*correctionPatternRepo)(s),
		Resolutions:        (*resolutionRepo)(s),
		ProcessedInvoices:  (*processedInvoiceRepo)(s),
		Audit:              (*auditRepo)(s),
		Tx:                 (*txManager)(s),
	}
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// ---- vendor_memory ----

type vendorPatternRepo Store

func (r *vendorPatternRepo) ListByVendor(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []*vendorRow
	for _, row := range r.vendorPatterns {
		p := row.pattern
		if p.Vendor != vendor || p.Confidence < minConfidence {
			continue
		}
		if patternType != "" && p.Type != patternType {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.pattern.Confidence != b.pattern.Confidence {
			return a.pattern.Confidence > b.pattern.Confidence
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.pattern.ID < b.pattern.ID
	})

	out := make([]*entity.VendorPattern, 0, len(rows))
	for _, row := range rows {
		p := row.pattern
		out = append(out, &p)
	}
	return out, nil
}

func (r *vendorPatternRepo) GetByKey(ctx context.Context, key entity.PatternKey) (*entity.VendorPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.vendorPatterns {
		if row.pattern.PatternKey() == key {
			p := row.pattern
			return &p, nil
		}
	}
	return nil, fmt.Errorf("vendor pattern %s: %w", key, entity.ErrNotFound)
}

func (r *vendorPatternRepo) GetByID(ctx context.Context, id string) (*entity.VendorPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.vendorPatterns[id]
	if !ok {
		return nil, fmt.Errorf("vendor pattern %s: %w", id, entity.ErrNotFound)
	}
	p := row.pattern
	return &p, nil
}

func (r *vendorPatternRepo) Create(ctx context.Context, pattern *entity.VendorPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pattern.PatternKey()
	for _, row := range r.vendorPatterns {
		if row.pattern.PatternKey() == key {
			return fmt.Errorf("vendor pattern %s: %w", key, entity.ErrDuplicateKey)
		}
	}
	r.vendorPatterns[pattern.ID] = &vendorRow{seq: (*Store)(r).nextSeq(), pattern: *pattern}
	return nil
}

func (r *vendorPatternRepo) Update(ctx context.Context, pattern *entity.VendorPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.vendorPatterns[pattern.ID]
	if !ok {
		return fmt.Errorf("vendor pattern %s: %w", pattern.ID, entity.ErrNotFound)
	}
	if row.pattern.Version != pattern.Version {
		return fmt.Errorf("vendor pattern %s at version %d: %w", pattern.ID, pattern.Version, entity.ErrVersionConflict)
	}
	pattern.Version++
	row.pattern = *pattern
	return nil
}

func (r *vendorPatternRepo) ListAll(ctx context.Context) ([]*entity.VendorPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := make([]*vendorRow, 0, len(r.vendorPatterns))
	for _, row := range r.vendorPatterns {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]*entity.VendorPattern, 0, len(rows))
	for _, row := range rows {
		p := row.pattern
		out = append(out, &p)
	}
	return out, nil
}

func (r *vendorPatternRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendorPatterns = make(map[string]*vendorRow)
	return nil
}

// ---- correction_memory ----

type correctionPatternRepo Store

func (r *correctionPatternRepo) ListApplicable(ctx context.Context, vendor string, minConfidence float64) ([]*entity.CorrectionPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []*correctionRow
	for _, row := range r.correctionPatterns {
		p := row.pattern
		if p.Confidence < minConfidence {
			continue
		}
		if p.Vendor != nil && *p.Vendor != vendor {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.pattern.Confidence != b.pattern.Confidence {
			return a.pattern.Confidence > b.pattern.Confidence
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.pattern.ID < b.pattern.ID
	})

	out := make([]*entity.CorrectionPattern, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyCorrection(row.pattern))
	}
	return out, nil
}

func (r *correctionPatternRepo) GetByID(ctx context.Context, id string) (*entity.CorrectionPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.correctionPatterns[id]
	if !ok {
		return nil, fmt.Errorf("correction pattern %s: %w", id, entity.ErrNotFound)
	}
	return copyCorrection(row.pattern), nil
}

func (r *correctionPatternRepo) Create(ctx context.Context, pattern *entity.CorrectionPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.correctionPatterns[pattern.ID]; exists {
		return fmt.Errorf("correction pattern %s: %w", pattern.ID, entity.ErrDuplicateKey)
	}
	r.correctionPatterns[pattern.ID] = &correctionRow{seq: (*Store)(r).nextSeq(), pattern: *copyCorrection(*pattern)}
	return nil
}

func (r *correctionPatternRepo) Update(ctx context.Context, pattern *entity.CorrectionPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.correctionPatterns[pattern.ID]
	if !ok {
		return fmt.Errorf("correction pattern %s: %w", pattern.ID, entity.ErrNotFound)
	}
	if row.pattern.Version != pattern.Version {
		return fmt.Errorf("correction pattern %s at version %d: %w", pattern.ID, pattern.Version, entity.ErrVersionConflict)
	}
	pattern.Version++
	row.pattern = *copyCorrection(*pattern)
	return nil
}

func (r *correctionPatternRepo) ListAll(ctx context.Context) ([]*entity.CorrectionPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := make([]*correctionRow, 0, len(r.correctionPatterns))
	for _, row := range r.correctionPatterns {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]*entity.CorrectionPattern, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyCorrection(row.pattern))
	}
	return out, nil
}

func (r *correctionPatternRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correctionPatterns = make(map[string]*correctionRow)
	return nil
}

func copyCorrection(p entity.CorrectionPattern) *entity.CorrectionPattern {
	if p.Vendor != nil {
		p.Vendor = entity.VendorPtr(*p.Vendor)
	}
	p.SourceInvoiceIDs = append([]string(nil), p.SourceInvoiceIDs...)
	return &p
}

// ---- resolution_memory ----

type resolutionRepo Store

func (r *resolutionRepo) Create(ctx context.Context, record *entity.ResolutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := *record
	r.resolutions = append(r.resolutions, &rec)
	return nil
}

func (r *resolutionRepo) ListRecent(ctx context.Context, vendor string, issueType entity.IssueType, limit int) ([]*entity.ResolutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*entity.ResolutionRecord{}
	for i := len(r.resolutions) - 1; i >= 0; i-- {
		rec := r.resolutions[i]
		if rec.Vendor != vendor {
			continue
		}
		if issueType != "" && rec.IssueType != issueType {
			continue
		}
		c := *rec
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *resolutionRepo) ListAll(ctx context.Context) ([]*entity.ResolutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.ResolutionRecord, 0, len(r.resolutions))
	for _, rec := range r.resolutions {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (r *resolutionRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolutions = nil
	return nil
}

// ---- processed_invoices ----

type processedInvoiceRepo Store

func (r *processedInvoiceRepo) Upsert(ctx context.Context, record *entity.ProcessedInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := *record
	if existing, ok := r.processed[record.InvoiceID]; ok {
		rec.FinalDecision = existing.FinalDecision
		rec.ProcessedAt = existing.ProcessedAt
	}
	r.processed[record.InvoiceID] = &rec
	return nil
}

func (r *processedInvoiceRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.processed[invoiceID]
	if !ok {
		return nil, fmt.Errorf("processed invoice %s: %w", invoiceID, entity.ErrNotFound)
	}
	c := *rec
	return &c, nil
}

func (r *processedInvoiceRepo) ListByVendor(ctx context.Context, vendor, excludeInvoiceID string) ([]*entity.ProcessedInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*entity.ProcessedInvoice{}
	for _, rec := range r.processed {
		if rec.Vendor == vendor && rec.InvoiceID != excludeInvoiceID {
			c := *rec
			out = append(out, &c)
		}
	}
	sortProcessed(out)
	return out, nil
}

func (r *processedInvoiceRepo) SetFinalDecision(ctx context.Context, invoiceID, decision string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.processed[invoiceID]
	if !ok {
		return fmt.Errorf("processed invoice %s: %w", invoiceID, entity.ErrNotFound)
	}
	rec.FinalDecision = decision
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *processedInvoiceRepo) ListAwaitingReview(ctx context.Context, evaluatedBefore time.Time, limit int) ([]*entity.ProcessedInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*entity.ProcessedInvoice{}
	for _, rec := range r.processed {
		if rec.RequiresHumanReview && rec.FinalDecision == "" && rec.UpdatedAt.Before(evaluatedBefore) {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].InvoiceID < out[j].InvoiceID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *processedInvoiceRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = make(map[string]*entity.ProcessedInvoice)
	return nil
}

func sortProcessed(records []*entity.ProcessedInvoice) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ProcessedAt.Equal(records[j].ProcessedAt) {
			return records[i].ProcessedAt.Before(records[j].ProcessedAt)
		}
		return records[i].InvoiceID < records[j].InvoiceID
	})
}

// ---- audit_trail ----

type auditRepo Store

func (r *auditRepo) Append(ctx context.Context, entry *entity.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	r.audit = append(r.audit, &e)
	return nil
}

func (r *auditRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*entity.AuditEntry{}
	for _, e := range r.audit {
		if e.InvoiceID == invoiceID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *auditRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = nil
	return nil
}

// ---- transactions ----

type txManager Store

// WithTransaction runs fn directly; each repository call is atomic on its own
func (t *txManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var (
	_ port.VendorPatternRepository     = (*vendorPatternRepo)(nil)
	_ port.CorrectionPatternRepository = (*correctionPatternRepo)(nil)
	_ port.ResolutionRepository        = (*resolutionRepo)(nil)
	_ port.ProcessedInvoiceRepository  = (*processedInvoiceRepo)(nil)
	_ port.AuditRepository             = (*auditRepo)(nil)
	_ port.TransactionManager          = (*txManager)(nil)
)
