package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/telemetry"
)

var (
	// ErrEventNotFound is returned when an event doesn't exist
	ErrEventNotFound = errors.New("event not found")

	// ErrIssueNotFound is returned when an issue doesn't exist
	ErrIssueNotFound = errors.New("issue not found")
)

// Prunable removes rows older than a cutoff.
type Prunable interface {
	// DeleteBefore deletes rows received before the cutoff and returns how many
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// LogRepository handles shipped log records
type LogRepository interface {
	Prunable

	// SaveBatch saves a batch of log records
	SaveBatch(ctx context.Context, records []domain.LogRecord) error

	// Recent returns the newest records, newest first
	Recent(ctx context.Context, limit int) ([]domain.LogRecord, error)
}

// EventRepository handles captured exceptions and messages
type EventRepository interface {
	Prunable

	// Save saves an event under its issue key. Saving an existing ID is a no-op.
	Save(ctx context.Context, ev *telemetry.Event, issueKey string) error

	// GetByID retrieves an event
	GetByID(ctx context.Context, id string) (*telemetry.Event, error)
}

// IssueRepository groups events by fingerprint
type IssueRepository interface {
	// Record counts ev against the issue with the given key
	Record(ctx context.Context, key string, ev *telemetry.Event) (*domain.Issue, error)

	// Get retrieves one issue
	Get(ctx context.Context, key string) (*domain.Issue, error)

	// Top returns the most frequent issues
	Top(ctx context.Context, limit int) ([]*domain.Issue, error)

	// Resolve removes an issue
	Resolve(ctx context.Context, key string) error
}

// IssueFromEvent builds the first occurrence of an issue.
func IssueFromEvent(key string, ev *telemetry.Event) *domain.Issue {
	title := ev.Message
	if ev.ErrorName != "" {
		title = ev.ErrorName + ": " + ev.Message
	}
	return &domain.Issue{
		Key:         key,
		Title:       title,
		Level:       string(ev.Level),
		Fingerprint: ev.Fingerprint,
		FirstSeen:   ev.Timestamp,
	}
}

// Touch applies a new occurrence to an issue.
func Touch(issue *domain.Issue, ev *telemetry.Event, count int64) {
	issue.Count = count
	issue.LastEventID = ev.ID
	issue.LastSeen = ev.Timestamp
	issue.Level = string(ev.Level)
}

// IssueKey returns the grouping key for an event.
func IssueKey(ev *telemetry.Event) string {
	if len(ev.Fingerprint) > 0 {
		return domain.FingerprintKey(ev.Fingerprint)
	}
	return domain.FingerprintKey([]string{ev.Kind, ev.ErrorName, ev.Message})
}
