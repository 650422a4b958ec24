package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const resolutionColumns = `
	id, invoice_id, vendor, issue_type, issue_description, human_action,
	correction_applied, context, created_at`

type resolutionRow struct {
	ID                string    `db:"id"`
	InvoiceID         string    `db:"invoice_id"`
	Vendor            string    `db:"vendor"`
	IssueType         string    `db:"issue_type"`
	IssueDescription  string    `db:"issue_description"`
	HumanAction       string    `db:"human_action"`
	CorrectionApplied string    `db:"correction_applied"`
	Context           string    `db:"context"`
	CreatedAt         time.Time `db:"created_at"`
}

func (row *resolutionRow) toEntity() (*entity.ResolutionRecord, error) {
	record := &entity.ResolutionRecord{
		ID:               row.ID,
		InvoiceID:        row.InvoiceID,
		Vendor:           row.Vendor,
		IssueType:        entity.IssueType(row.IssueType),
		IssueDescription: row.IssueDescription,
		HumanAction:      row.HumanAction,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if err := decodeJSON(row.CorrectionApplied, &record.CorrectionApplied); err != nil {
		return nil, fmt.Errorf("correction applied: %w", err)
	}
	if err := decodeJSON(row.Context, &record.Context); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	return record, nil
}

// ResolutionRepository implements port.ResolutionRepository
type ResolutionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewResolutionRepository creates a new resolution repository
func NewResolutionRepository(db *sqldb.DB, logger *zap.Logger) port.ResolutionRepository {
	return &ResolutionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a resolution record
func (r *ResolutionRepository) Create(ctx context.Context, record *entity.ResolutionRecord) error {
	applied, err := encodeJSON(record.CorrectionApplied)
	if err != nil {
		return fmt.Errorf("failed to encode corrections: %w", err)
	}
	resolutionCtx, err := encodeJSON(record.Context)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}

	query := `
		INSERT INTO resolution_memory (` + resolutionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		record.ID,
		record.InvoiceID,
		record.Vendor,
		string(record.IssueType),
		record.IssueDescription,
		record.HumanAction,
		applied,
		resolutionCtx,
		record.CreatedAt,
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("resolution %s: %w", record.ID, entity.ErrDuplicateKey)
	}
	if err != nil {
		r.logger.Error("Failed to create resolution", zap.String("invoice_id", record.InvoiceID), zap.Error(err))
		return fmt.Errorf("failed to create resolution: %w", err)
	}
	return nil
}

// ListRecent retrieves the newest resolutions for a vendor
func (r *ResolutionRepository) ListRecent(ctx context.Context, vendor string, issueType entity.IssueType, limit int) ([]*entity.ResolutionRecord, error) {
	query := `SELECT ` + resolutionColumns + `
		FROM resolution_memory
		WHERE vendor = ?`
	args := []interface{}{vendor}
	if issueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, string(issueType))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.list(ctx, "list recent resolutions", query, args...)
}

// ListAll retrieves every resolution in creation order
func (r *ResolutionRepository) ListAll(ctx context.Context) ([]*entity.ResolutionRecord, error) {
	query := `SELECT ` + resolutionColumns + `
		FROM resolution_memory
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, "list all resolutions", query)
}

// DeleteAll removes every resolution
func (r *ResolutionRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM resolution_memory`); err != nil {
		r.logger.Error("Failed to delete resolutions", zap.Error(err))
		return fmt.Errorf("failed to delete resolutions: %w", err)
	}
	return nil
}

func (r *ResolutionRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*entity.ResolutionRecord, error) {
	exec := r.db.Executor(ctx)

	var rows []resolutionRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	records := make([]*entity.ResolutionRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toEntity()
		if err != nil {
			r.logger.Warn("Skipping undecodable resolution",
				zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

var _ port.ResolutionRepository = (*ResolutionRepository)(nil)
