package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

type auditRow struct {
	ID        string         `db:"id"`
	InvoiceID string         `db:"invoice_id"`
	Step      string         `db:"step"`
	Operation string         `db:"operation"`
	Details   sql.NullString `db:"details"`
	Timestamp time.Time      `db:"timestamp"`
}

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit trail repository
func NewAuditRepository(db *sqldb.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores an audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_trail (id, invoice_id, step, operation, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	_, err := exec.ExecContext(ctx, exec.Rebind(query),
		entry.ID,
		entry.InvoiceID,
		string(entry.Step),
		entry.Operation,
		nullString(string(entry.Details)),
		entry.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("invoice_id", entry.InvoiceID),
			zap.String("operation", entry.Operation),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByInvoice retrieves the invoice's audit trail in insertion order
func (r *AuditRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, invoice_id, step, operation, details, timestamp
		FROM audit_trail
		WHERE invoice_id = ?
		ORDER BY timestamp ASC, seq ASC
	`

	exec := r.db.Executor(ctx)

	var rows []auditRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(query), invoiceID); err != nil {
		r.logger.Error("Failed to list audit trail", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}

	entries := make([]*entity.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := &entity.AuditEntry{
			ID:        row.ID,
			InvoiceID: row.InvoiceID,
			Step:      entity.AuditStep(row.Step),
			Operation: row.Operation,
			Timestamp: row.Timestamp.UTC(),
		}
		if row.Details.Valid {
			entry.Details = json.RawMessage(row.Details.String)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteAll removes every audit entry
func (r *AuditRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM audit_trail`); err != nil {
		r.logger.Error("Failed to delete audit trail", zap.Error(err))
		return fmt.Errorf("failed to delete audit trail: %w", err)
	}
	return nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
