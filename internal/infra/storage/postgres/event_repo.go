package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/telemetry"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

var _ storage.EventRepository = (*EventRepo)(nil)

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

type eventRow struct {
	ID          string         `db:"id"`
	Kind        string         `db:"kind"`
	Level       string         `db:"level"`
	Message     string         `db:"message"`
	ErrorName   string         `db:"error_name"`
	Stack       string         `db:"stack"`
	Fingerprint pq.StringArray `db:"fingerprint"`
	IssueKey    string         `db:"issue_key"`
	Tags        []byte         `db:"tags"`
	Contexts    []byte         `db:"contexts"`
	Extra       []byte         `db:"extra"`
	App         string         `db:"app"`
	Environment string         `db:"environment"`
	Release     string         `db:"release"`
	OccurredAt  time.Time      `db:"occurred_at"`
}

// Save inserts the event; an existing ID is left untouched.
func (r *EventRepo) Save(ctx context.Context, ev *telemetry.Event, issueKey string) error {
	defer observe("save_event", time.Now())

	row := eventRow{
		ID:          ev.ID,
		Kind:        ev.Kind,
		Level:       string(ev.Level),
		Message:     ev.Message,
		ErrorName:   ev.ErrorName,
		Stack:       ev.Stack,
		Fingerprint: pq.StringArray(ev.Fingerprint),
		IssueKey:    issueKey,
		App:         ev.App,
		Environment: ev.Environment,
		Release:     ev.Release,
		OccurredAt:  ev.Timestamp,
	}
	if row.Fingerprint == nil {
		row.Fingerprint = pq.StringArray{}
	}
	var err error
	if row.Tags, err = marshalJSON(ev.Tags); err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if row.Contexts, err = marshalJSON(ev.Contexts); err != nil {
		return fmt.Errorf("failed to marshal contexts: %w", err)
	}
	if row.Extra, err = marshalJSON(ev.Extra); err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	query := `
		INSERT INTO telemetry_events (
			id, kind, level, message, error_name, stack, fingerprint, issue_key,
			tags, contexts, extra, app, environment, release, occurred_at
		) VALUES (
			:id, :kind, :level, :message, :error_name, :stack, :fingerprint, :issue_key,
			:tags, :contexts, :extra, :app, :environment, :release, :occurred_at
		)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetByID retrieves an event.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*telemetry.Event, error) {
	defer observe("get_event", time.Now())

	query := `
		SELECT id, kind, level, message, error_name, stack, fingerprint, issue_key,
		       tags, contexts, extra, app, environment, release, occurred_at
		FROM telemetry_events
		WHERE id = $1
	`
	var row eventRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	ev := &telemetry.Event{
		ID:          row.ID,
		Kind:        row.Kind,
		Level:       telemetry.Level(row.Level),
		Message:     row.Message,
		ErrorName:   row.ErrorName,
		Stack:       row.Stack,
		Fingerprint: []string(row.Fingerprint),
		App:         row.App,
		Environment: row.Environment,
		Release:     row.Release,
		Timestamp:   row.OccurredAt,
	}
	if err := unmarshalJSON(row.Tags, &ev.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := unmarshalJSON(row.Contexts, &ev.Contexts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contexts: %w", err)
	}
	if err := unmarshalJSON(row.Extra, &ev.Extra); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
	}
	return ev, nil
}

// DeleteBefore removes events received before the cutoff.
func (r *EventRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	defer observe("prune_events", time.Now())
	res, err := r.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
