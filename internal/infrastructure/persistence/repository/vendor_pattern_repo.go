package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const vendorPatternColumns = `
	id, vendor, pattern_type, pattern_key, pattern_value, confidence,
	times_applied, times_successful, times_failed, version,
	last_applied_at, created_at, updated_at`

type vendorPatternRow struct {
	ID              string       `db:"id"`
	Vendor          string       `db:"vendor"`
	PatternType     string       `db:"pattern_type"`
	PatternKey      string       `db:"pattern_key"`
	PatternValue    string       `db:"pattern_value"`
	Confidence      float64      `db:"confidence"`
	TimesApplied    int          `db:"times_applied"`
	TimesSuccessful int          `db:"times_successful"`
	TimesFailed     int          `db:"times_failed"`
	Version         int          `db:"version"`
	LastAppliedAt   sql.NullTime `db:"last_applied_at"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (row *vendorPatternRow) toEntity() (*entity.VendorPattern, error) {
	patternType := entity.PatternType(row.PatternType)
	value, err := entity.DecodePatternValue(patternType, row.PatternKey, []byte(row.PatternValue))
	if err != nil {
		return nil, err
	}

	p := &entity.VendorPattern{
		ID:              row.ID,
		Vendor:          row.Vendor,
		Type:            patternType,
		Key:             row.PatternKey,
		Value:           value,
		Confidence:      row.Confidence,
		TimesApplied:    row.TimesApplied,
		TimesSuccessful: row.TimesSuccessful,
		TimesFailed:     row.TimesFailed,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.LastAppliedAt.Valid {
		t := row.LastAppliedAt.Time.UTC()
		p.LastAppliedAt = &t
	}
	return p, nil
}

// VendorPatternRepository implements port.VendorPatternRepository
type VendorPatternRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewVendorPatternRepository creates a new vendor pattern repository
func NewVendorPatternRepository(db *sqldb.DB, logger *zap.Logger) port.VendorPatternRepository {
	return &VendorPatternRepository{
		db:     db,
		logger: logger,
	}
}

// ListByVendor retrieves the vendor's patterns above minConfidence
func (r *VendorPatternRepository) ListByVendor(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error) {
	query := `SELECT ` + vendorPatternColumns + `
		FROM vendor_memory
		WHERE vendor = ? AND confidence >= ?`
	args := []interface{}{vendor, minConfidence}
	if patternType != "" {
		query += ` AND pattern_type = ?`
		args = append(args, string(patternType))
	}
	query += ` ORDER BY confidence DESC, created_at ASC, id ASC`

	return r.list(ctx, "list vendor patterns", query, args...)
}

// GetByKey retrieves a pattern by its unique key
func (r *VendorPatternRepository) GetByKey(ctx context.Context, key entity.PatternKey) (*entity.VendorPattern, error) {
	query := `SELECT ` + vendorPatternColumns + `
		FROM vendor_memory
		WHERE vendor = ? AND pattern_type = ? AND pattern_key = ?`

	return r.get(ctx, key.String(), query, key.Vendor, string(key.Type), key.Key)
}

// GetByID retrieves a pattern by ID
func (r *VendorPatternRepository) GetByID(ctx context.Context, id string) (*entity.VendorPattern, error) {
	query := `SELECT ` + vendorPatternColumns + `
		FROM vendor_memory
		WHERE id = ?`

	return r.get(ctx, id, query, id)
}

// Create inserts a new pattern
func (r *VendorPatternRepository) Create(ctx context.Context, pattern *entity.VendorPattern) error {
	value, err := json.Marshal(pattern.Value)
	if err != nil {
		return fmt.Errorf("failed to encode pattern value: %w", err)
	}

	query := `
		INSERT INTO vendor_memory (` + vendorPatternColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	_, err = exec.ExecContext(ctx, exec.Rebind(query),
		pattern.ID,
		pattern.Vendor,
		string(pattern.Type),
		pattern.Key,
		string(value),
		pattern.Confidence,
		pattern.TimesApplied,
		pattern.TimesSuccessful,
		pattern.TimesFailed,
		pattern.Version,
		nullTime(pattern.LastAppliedAt),
		pattern.CreatedAt,
		pattern.UpdatedAt,
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("vendor pattern %s: %w", pattern.PatternKey(), entity.ErrDuplicateKey)
	}
	if err != nil {
		r.logger.Error("Failed to create vendor pattern", zap.String("key", pattern.PatternKey().String()), zap.Error(err))
		return fmt.Errorf("failed to create vendor pattern: %w", err)
	}
	return nil
}

// Update writes the pattern if its stored version still matches
func (r *VendorPatternRepository) Update(ctx context.Context, pattern *entity.VendorPattern) error {
	value, err := json.Marshal(pattern.Value)
	if err != nil {
		return fmt.Errorf("failed to encode pattern value: %w", err)
	}

	query := `
		UPDATE vendor_memory
		SET pattern_value = ?, confidence = ?, times_applied = ?, times_successful = ?,
			times_failed = ?, last_applied_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, exec.Rebind(query),
		string(value),
		pattern.Confidence,
		pattern.TimesApplied,
		pattern.TimesSuccessful,
		pattern.TimesFailed,
		nullTime(pattern.LastAppliedAt),
		pattern.UpdatedAt,
		pattern.ID,
		pattern.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update vendor pattern", zap.String("id", pattern.ID), zap.Error(err))
		return fmt.Errorf("failed to update vendor pattern: %w", err)
	}

	if err := checkVersionedUpdate(ctx, exec, result, "vendor_memory", pattern.ID, pattern.Version); err != nil {
		return err
	}
	pattern.Version++
	return nil
}

// ListAll retrieves every pattern in creation order
func (r *VendorPatternRepository) ListAll(ctx context.Context) ([]*entity.VendorPattern, error) {
	query := `SELECT ` + vendorPatternColumns + `
		FROM vendor_memory
		ORDER BY created_at ASC, id ASC`

	return r.list(ctx, "list all vendor patterns", query)
}

// DeleteAll removes every pattern
func (r *VendorPatternRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM vendor_memory`); err != nil {
		r.logger.Error("Failed to delete vendor patterns", zap.Error(err))
		return fmt.Errorf("failed to delete vendor patterns: %w", err)
	}
	return nil
}

func (r *VendorPatternRepository) get(ctx context.Context, ref, query string, args ...interface{}) (*entity.VendorPattern, error) {
	exec := r.db.Executor(ctx)

	var row vendorPatternRow
	err := exec.GetContext(ctx, &row, exec.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vendor pattern %s: %w", ref, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get vendor pattern", zap.String("ref", ref), zap.Error(err))
		return nil, fmt.Errorf("failed to get vendor pattern: %w", err)
	}

	p, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("failed to decode vendor pattern %s: %w", row.ID, err)
	}
	return p, nil
}

// list skips rows whose payload cannot be decoded
func (r *VendorPatternRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*entity.VendorPattern, error) {
	exec := r.db.Executor(ctx)

	var rows []vendorPatternRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	patterns := make([]*entity.VendorPattern, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity()
		if err != nil {
			r.logger.Warn("Skipping undecodable vendor pattern",
				zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

var _ port.VendorPatternRepository = (*VendorPatternRepository)(nil)
