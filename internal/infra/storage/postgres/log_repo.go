package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage"
)

// LogRepo implements storage.LogRepository using PostgreSQL.
type LogRepo struct {
	db *DB
}

var _ storage.LogRepository = (*LogRepo)(nil)

// NewLogRepo creates a new PostgreSQL log repository.
func NewLogRepo(db *DB) *LogRepo {
	return &LogRepo{db: db}
}

type logRow struct {
	Timestamp   time.Time `db:"ts"`
	Level       string    `db:"level"`
	Message     string    `db:"message"`
	Category    string    `db:"category"`
	Properties  []byte    `db:"properties"`
	App         string    `db:"app"`
	Environment string    `db:"environment"`
	Version     string    `db:"version"`
}

// SaveBatch inserts all records in one transaction.
func (r *LogRepo) SaveBatch(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	defer observe("save_logs", time.Now())

	rows := make([]logRow, len(records))
	for i, rec := range records {
		props, err := marshalJSON(rec.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties: %w", err)
		}
		rows[i] = logRow{
			Timestamp:   rec.Timestamp,
			Level:       rec.Level,
			Message:     rec.Message,
			Category:    rec.Category,
			Properties:  props,
			App:         rec.App,
			Environment: rec.Environment,
			Version:     rec.Version,
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO log_records (ts, level, message, category, properties, app, environment, version)
		VALUES (:ts, :level, :message, :category, :properties, :app, :environment, :version)
	`
	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert log records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log records: %w", err)
	}
	return nil
}

// Recent returns the newest records, newest first.
func (r *LogRepo) Recent(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	defer observe("recent_logs", time.Now())

	query := `
		SELECT ts, level, message, category, properties, app, environment, version
		FROM log_records
		ORDER BY id DESC
		LIMIT $1
	`
	var rows []logRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to select log records: %w", err)
	}

	out := make([]domain.LogRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.LogRecord{
			Timestamp:   row.Timestamp,
			Level:       row.Level,
			Message:     row.Message,
			Category:    row.Category,
			App:         row.App,
			Environment: row.Environment,
			Version:     row.Version,
		}
		if len(row.Properties) > 0 {
			if err := json.Unmarshal(row.Properties, &rec.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteBefore removes records received before the cutoff.
func (r *LogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	defer observe("prune_logs", time.Now())
	res, err := r.db.ExecContext(ctx, `DELETE FROM log_records WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune log records: %w", err)
	}
	return res.RowsAffected()
}

func marshalJSON(v any) ([]byte, error) {
	switch m := v.(type) {
	case map[string]any:
		if len(m) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(m) == 0 {
			return nil, nil
		}
	case map[string]map[string]any:
		if len(m) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
