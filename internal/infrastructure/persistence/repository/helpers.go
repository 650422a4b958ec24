package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
)

// checkVersionedUpdate tells a lost optimistic update apart from a missing row
func checkVersionedUpdate(ctx context.Context, exec sqldb.Executor, result sql.Result, table, id string, version int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var count int
	if err := exec.GetContext(ctx, &count, exec.Rebind(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to check %s row %s: %w", table, id, err)
	}
	if count == 0 {
		return fmt.Errorf("%s row %s: %w", table, id, entity.ErrNotFound)
	}
	return fmt.Errorf("%s row %s at version %d: %w", table, id, version, entity.ErrVersionConflict)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJSON(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeJSON(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}
