package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// ErrorLogRepo implements storage.ErrorLogRepository using PostgreSQL.
type ErrorLogRepo struct {
	db *DB
}

// NewErrorLogRepo creates a new PostgreSQL error log repository.
func NewErrorLogRepo(db *DB) *ErrorLogRepo {
	return &ErrorLogRepo{db: db}
}

type errorLogRow struct {
	ID            string         `db:"id"`
	CorrelationID sql.NullString `db:"correlation_id"`
	Level         string         `db:"level"`
	LoggedAt      time.Time      `db:"logged_at"`
	ErrorType     string         `db:"error_type"`
	ErrorCode     sql.NullString `db:"error_code"`
	Message       string         `db:"message"`
	Fingerprint   string         `db:"fingerprint"`
	Payload       []byte         `db:"payload"`
}

func toRow(e *domain.ErrorLogEntry) (errorLogRow, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return errorLogRow{}, fmt.Errorf("marshal entry: %w", err)
	}
	row := errorLogRow{
		ID:          e.ID,
		Level:       string(e.Level),
		LoggedAt:    e.Time,
		ErrorType:   string(e.Error.Type),
		Message:     e.Error.Message,
		Fingerprint: e.Fingerprint,
		Payload:     payload,
	}
	if e.CorrelationID != "" {
		row.CorrelationID = sql.NullString{String: e.CorrelationID, Valid: true}
	}
	if e.Error.Code != "" {
		row.ErrorCode = sql.NullString{String: e.Error.Code, Valid: true}
	}
	return row, nil
}

// Add stores a batch of entries in one transaction.
func (r *ErrorLogRepo) Add(ctx context.Context, entries []*domain.ErrorLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO error_log (id, correlation_id, level, logged_at, error_type, error_code, message, fingerprint, payload)
		VALUES (:id, :correlation_id, :level, :logged_at, :error_type, :error_code, :message, :fingerprint, :payload)
	`
	for _, e := range entries {
		row, err := toRow(e)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("insert error log entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *ErrorLogRepo) Recent(ctx context.Context, limit int) ([]*domain.ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []errorLogRow
	query := `
		SELECT id, correlation_id, level, logged_at, error_type, error_code, message, fingerprint, payload
		FROM error_log
		ORDER BY logged_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select error log: %w", err)
	}

	out := make([]*domain.ErrorLogEntry, 0, len(rows))
	for _, row := range rows {
		var e domain.ErrorLogEntry
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry %s: %w", row.ID, err)
		}
		out = append(out, &e)
	}
	return out, nil
}

// CountByType aggregates stored entries per error type.
func (r *ErrorLogRepo) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT error_type, COUNT(*) FROM error_log GROUP BY error_type`)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		out[typ] = count
	}
	return out, rows.Err()
}

// Prune keeps only the newest entries.
func (r *ErrorLogRepo) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM error_log
		WHERE id NOT IN (
			SELECT id FROM error_log ORDER BY logged_at DESC LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune error log: %w", err)
	}
	return res.RowsAffected()
}
