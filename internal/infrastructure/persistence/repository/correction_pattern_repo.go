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

const correctionPatternColumns = `
	id, vendor, correction_type, condition, correction_action, confidence,
	times_applied, times_successful, times_failed, source_invoice_ids,
	version, created_at, updated_at`

type correctionPatternRow struct {
	ID               string         `db:"id"`
	Vendor           sql.NullString `db:"vendor"`
	CorrectionType   string         `db:"correction_type"`
	Condition        string         `db:"condition"`
	CorrectionAction string         `db:"correction_action"`
	Confidence       float64        `db:"confidence"`
	TimesApplied     int            `db:"times_applied"`
	TimesSuccessful  int            `db:"times_successful"`
	TimesFailed      int            `db:"times_failed"`
	SourceInvoiceIDs string         `db:"source_invoice_ids"`
	Version          int            `db:"version"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (row *correctionPatternRow) toEntity() (*entity.CorrectionPattern, error) {
	condition, err := entity.DecodeCondition([]byte(row.Condition))
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	action, err := entity.DecodeAction([]byte(row.CorrectionAction))
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	var sources []string
	if err := decodeJSON(row.SourceInvoiceIDs, &sources); err != nil {
		return nil, fmt.Errorf("source invoice ids: %w", err)
	}

	p := &entity.CorrectionPattern{
		ID:               row.ID,
		CorrectionType:   entity.CorrectionType(row.CorrectionType),
		Condition:        condition,
		Action:           action,
		Confidence:       row.Confidence,
		TimesApplied:     row.TimesApplied,
		TimesSuccessful:  row.TimesSuccessful,
		TimesFailed:      row.TimesFailed,
		SourceInvoiceIDs: sources,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if row.Vendor.Valid {
		p.Vendor = entity.VendorPtr(row.Vendor.String)
	}
	return p, nil
}

// CorrectionPatternRepository implements port.CorrectionPatternRepository
type CorrectionPatternRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewCorrectionPatternRepository creates a new correction pattern repository
func NewCorrectionPatternRepository(db *sqldb.DB, logger *zap.Logger) port.CorrectionPatternRepository {
	return &CorrectionPatternRepository{
		db:     db,
		logger: logger,
	}
}

// ListApplicable retrieves the vendor's rules and the global rules
func (r *CorrectionPatternRepository) ListApplicable(ctx context.Context, vendor string, minConfidence float64) ([]*entity.CorrectionPattern, error) {
	query := `SELECT ` + correctionPatternColumns + `
		FROM correction_memory
		WHERE (vendor = ? OR vendor IS NULL) AND confidence >= ?
		ORDER BY confidence DESC, created_at ASC, id ASC`

	return r.list(ctx, "list applicable correction patterns", query, vendor, minConfidence)
}

// GetByID retrieves a rule by ID
func (r *CorrectionPatternRepository) GetByID(ctx context.Context, id string) (*entity.CorrectionPattern, error) {
	query := `SELECT ` + correctionPatternColumns + `
		FROM correction_memory
		WHERE id = ?`

	exec := r.db.Executor(ctx)

	var row correctionPatternRow
	err := exec.GetContext(ctx, &row, exec.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("correction pattern %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get correction pattern", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get correction pattern: %w", err)
	}

	p, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("failed to decode correction pattern %s: %w", id, err)
	}
	return p, nil
}

// Create inserts a new rule
func (r *CorrectionPatternRepository) Create(ctx context.Context, pattern *entity.CorrectionPattern) error {
	condition, err := entity.EncodeCondition(pattern.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode condition: %w", err)
	}
	action, err := entity.EncodeAction(pattern.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	sources, err := encodeJSON(nonNilStrings(pattern.SourceInvoiceIDs))
	if err != nil {
		return fmt.Errorf("failed to encode source invoice ids: %w", err)
	}

	var vendor sql.NullString
	if pattern.Vendor != nil {
		vendor = sql.NullString{String: *pattern.Vendor, Valid: true}
	}

	query := `
		INSERT INTO correction_memory (` + correctionPatternColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		pattern.ID,
		vendor,
		string(pattern.CorrectionType),
		string(condition),
		string(action),
		pattern.Confidence,
		pattern.TimesApplied,
		pattern.TimesSuccessful,
		pattern.TimesFailed,
		sources,
		pattern.Version,
		pattern.CreatedAt,
		pattern.UpdatedAt,
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("correction pattern %s: %w", pattern.ID, entity.ErrDuplicateKey)
	}
	if err != nil {
		r.logger.Error("Failed to create correction pattern", zap.String("id", pattern.ID), zap.Error(err))
		return fmt.Errorf("failed to create correction pattern: %w", err)
	}
	return nil
}

// Update writes the counters and confidence if the stored version still matches
func (r *CorrectionPatternRepository) Update(ctx context.Context, pattern *entity.CorrectionPattern) error {
	sources, err := encodeJSON(nonNilStrings(pattern.SourceInvoiceIDs))
	if err != nil {
		return fmt.Errorf("failed to encode source invoice ids: %w", err)
	}

	query := `
		UPDATE correction_memory
		SET confidence = ?, times_applied = ?, times_successful = ?, times_failed = ?,
			source_invoice_ids = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, exec.Rebind(query),
		pattern.Confidence,
		pattern.TimesApplied,
		pattern.TimesSuccessful,
		pattern.TimesFailed,
		sources,
		pattern.UpdatedAt,
		pattern.ID,
		pattern.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update correction pattern", zap.String("id", pattern.ID), zap.Error(err))
		return fmt.Errorf("failed to update correction pattern: %w", err)
	}

	if err := checkVersionedUpdate(ctx, exec, result, "correction_memory", pattern.ID, pattern.Version); err != nil {
		return err
	}
	pattern.Version++
	return nil
}

// ListAll retrieves every rule in creation order
func (r *CorrectionPatternRepository) ListAll(ctx context.Context) ([]*entity.CorrectionPattern, error) {
	query := `SELECT ` + correctionPatternColumns + `
		FROM correction_memory
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, "list all correction patterns", query)
}

// DeleteAll removes every rule
func (r *CorrectionPatternRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM correction_memory`); err != nil {
		r.logger.Error("Failed to delete correction patterns", zap.Error(err))
		return fmt.Errorf("failed to delete correction patterns: %w", err)
	}
	return nil
}

func (r *CorrectionPatternRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*entity.CorrectionPattern, error) {
	exec := r.db.Executor(ctx)

	var rows []correctionPatternRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	patterns := make([]*entity.CorrectionPattern, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity()
		if err != nil {
			r.logger.Warn("Skipping undecodable correction pattern",
				zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ port.CorrectionPatternRepository = (*CorrectionPatternRepository)(nil)
