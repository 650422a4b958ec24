package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const processedInvoiceColumns = `
	invoice_id, vendor, original_data, normalized_data, proposed_corrections,
	requires_human_review, reasoning, confidence_score, final_decision,
	purchase_orders, delivery_notes, processed_at, updated_at`

type processedInvoiceRow struct {
	InvoiceID           string         `db:"invoice_id"`
	Vendor              string         `db:"vendor"`
	OriginalData        string         `db:"original_data"`
	NormalizedData      string         `db:"normalized_data"`
	ProposedCorrections string         `db:"proposed_corrections"`
	RequiresHumanReview bool           `db:"requires_human_review"`
	Reasoning           string         `db:"reasoning"`
	ConfidenceScore     float64        `db:"confidence_score"`
	FinalDecision       sql.NullString `db:"final_decision"`
	PurchaseOrders      string         `db:"purchase_orders"`
	DeliveryNotes       string         `db:"delivery_notes"`
	ProcessedAt         time.Time      `db:"processed_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (row *processedInvoiceRow) toEntity() (*entity.ProcessedInvoice, error) {
	record := &entity.ProcessedInvoice{
		InvoiceID:           row.InvoiceID,
		Vendor:              row.Vendor,
		RequiresHumanReview: row.RequiresHumanReview,
		Reasoning:           row.Reasoning,
		ConfidenceScore:     row.ConfidenceScore,
		FinalDecision:       row.FinalDecision.String,
		ProcessedAt:         row.ProcessedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}

	payloads := []struct {
		name string
		raw  string
		dest interface{}
	}{
		{"original data", row.OriginalData, &record.Original},
		{"normalized data", row.NormalizedData, &record.Normalized},
		{"proposed corrections", row.ProposedCorrections, &record.ProposedCorrections},
		{"purchase orders", row.PurchaseOrders, &record.PurchaseOrders},
		{"delivery notes", row.DeliveryNotes, &record.DeliveryNotes},
	}
	for _, p := range payloads {
		if err := decodeJSON(p.raw, p.dest); err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return record, nil
}

// ProcessedInvoiceRepository implements port.ProcessedInvoiceRepository
type ProcessedInvoiceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewProcessedInvoiceRepository creates a new processed invoice repository
func NewProcessedInvoiceRepository(db *sqldb.DB, logger *zap.Logger) port.ProcessedInvoiceRepository {
	return &ProcessedInvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the record or replaces the latest decision. final_decision and the
// first processed_at are kept.
func (r *ProcessedInvoiceRepository) Upsert(ctx context.Context, record *entity.ProcessedInvoice) error {
	original, err := encodeJSON(record.Original)
	if err != nil {
		return fmt.Errorf("failed to encode original invoice: %w", err)
	}
	normalized, err := encodeJSON(record.Normalized)
	if err != nil {
		return fmt.Errorf("failed to encode normalized invoice: %w", err)
	}
	proposed, err := encodeJSON(nonNilStrings(record.ProposedCorrections))
	if err != nil {
		return fmt.Errorf("failed to encode proposed corrections: %w", err)
	}
	orders, err := encodeJSON(record.PurchaseOrders)
	if err != nil {
		return fmt.Errorf("failed to encode purchase orders: %w", err)
	}
	notes, err := encodeJSON(record.DeliveryNotes)
	if err != nil {
		return fmt.Errorf("failed to encode delivery notes: %w", err)
	}

	query := `
		INSERT INTO processed_invoices (` + processedInvoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id) DO UPDATE SET
			vendor = excluded.vendor,
			original_data = excluded.original_data,
			normalized_data = excluded.normalized_data,
			proposed_corrections = excluded.proposed_corrections,
			requires_human_review = excluded.requires_human_review,
			reasoning = excluded.reasoning,
			confidence_score = excluded.confidence_score,
			purchase_orders = excluded.purchase_orders,
			delivery_notes = excluded.delivery_notes,
			updated_at = excluded.updated_at
	`

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		record.InvoiceID,
		record.Vendor,
		original,
		normalized,
		proposed,
		record.RequiresHumanReview,
		record.Reasoning,
		record.ConfidenceScore,
		nullString(record.FinalDecision),
		orders,
		notes,
		record.ProcessedAt,
		record.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert processed invoice", zap.String("invoice_id", record.InvoiceID), zap.Error(err))
		return fmt.Errorf("failed to upsert processed invoice: %w", err)
	}
	return nil
}

// GetByInvoiceID retrieves the latest decision for an invoice
func (r *ProcessedInvoiceRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error) {
	query := `SELECT ` + processedInvoiceColumns + `
		FROM processed_invoices
		WHERE invoice_id = ?`

	exec := r.db.Executor(ctx)

	var row processedInvoiceRow
	err := exec.GetContext(ctx, &row, exec.Rebind(query), invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("processed invoice %s: %w", invoiceID, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get processed invoice", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get processed invoice: %w", err)
	}

	record, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("failed to decode processed invoice %s: %w", invoiceID, err)
	}
	return record, nil
}

// ListByVendor retrieves the vendor's other processed invoices, oldest first
func (r *ProcessedInvoiceRepository) ListByVendor(ctx context.Context, vendor, excludeInvoiceID string) ([]*entity.ProcessedInvoice, error) {
	query := `SELECT ` + processedInvoiceColumns + `
		FROM processed_invoices
		WHERE vendor = ? AND invoice_id <> ?
		ORDER BY processed_at ASC, invoice_id ASC`

	return r.list(ctx, "list processed invoices by vendor", query, vendor, excludeInvoiceID)
}

// SetFinalDecision records the human decision on a processed invoice
func (r *ProcessedInvoiceRepository) SetFinalDecision(ctx context.Context, invoiceID, decision string) error {
	query := `
		UPDATE processed_invoices
		SET final_decision = ?, updated_at = ?
		WHERE invoice_id = ?
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, exec.Rebind(query), decision, time.Now().UTC(), invoiceID)
	if err != nil {
		r.logger.Error("Failed to set final decision", zap.String("invoice_id", invoiceID), zap.Error(err))
		return fmt.Errorf("failed to set final decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("processed invoice %s: %w", invoiceID, entity.ErrNotFound)
	}
	return nil
}

// ListAwaitingReview retrieves undecided invoices flagged for review whose latest
// decision is older than evaluatedBefore, least recently evaluated first
func (r *ProcessedInvoiceRepository) ListAwaitingReview(ctx context.Context, evaluatedBefore time.Time, limit int) ([]*entity.ProcessedInvoice, error) {
	query := `SELECT ` + processedInvoiceColumns + `
		FROM processed_invoices
		WHERE requires_human_review = ?
			AND (final_decision IS NULL OR final_decision = '')
			AND updated_at < ?
		ORDER BY updated_at ASC, invoice_id ASC`
	args := []interface{}{true, evaluatedBefore.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.list(ctx, "list invoices awaiting review", query, args...)
}

// DeleteAll removes every processed invoice
func (r *ProcessedInvoiceRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM processed_invoices`); err != nil {
		r.logger.Error("Failed to delete processed invoices", zap.Error(err))
		return fmt.Errorf("failed to delete processed invoices: %w", err)
	}
	return nil
}

func (r *ProcessedInvoiceRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*entity.ProcessedInvoice, error) {
	exec := r.db.Executor(ctx)

	var rows []processedInvoiceRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	records := make([]*entity.ProcessedInvoice, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toEntity()
		if err != nil {
			r.logger.Warn("Skipping undecodable processed invoice",
				zap.String("invoice_id", rows[i].InvoiceID), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

var _ port.ProcessedInvoiceRepository = (*ProcessedInvoiceRepository)(nil)
