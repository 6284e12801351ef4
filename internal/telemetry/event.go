// Package telemetry forwards captured failures and log records to an external sink.
package telemetry

import (
	"context"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Level is the sink-side level of an event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// LevelFor maps a severity to an event level.
func LevelFor(s domain.Severity) Level {
	switch s {
	case domain.SeverityCritical:
		return LevelFatal
	case domain.SeverityHigh, domain.SeverityMedium:
		return LevelError
	default:
		return LevelWarning
	}
}

const (
	KindException = "exception"
	KindMessage   = "message"
)

// Event is one captured exception or message as sent to the sink.
type Event struct {
	ID          string                    `json:"id"`
	Kind        string                    `json:"kind"`
	Level       Level                     `json:"level"`
	Message     string                    `json:"message"`
	ErrorName   string                    `json:"error_name,omitempty"`
	Stack       string                    `json:"stack,omitempty"`
	Fingerprint []string                  `json:"fingerprint,omitempty"`
	Tags        map[string]string         `json:"tags,omitempty"`
	Contexts    map[string]map[string]any `json:"contexts,omitempty"`
	Extra       map[string]any            `json:"extra,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
	App         string                    `json:"app"`
	Environment string                    `json:"environment"`
	Release     string                    `json:"release"`
}

// CaptureOptions annotate a captured exception.
type CaptureOptions struct {
	Tags        map[string]string
	Context     map[string]any
	Extra       map[string]any
	Fingerprint []string
	Level       Level
}

// MessageOptions annotate a captured message.
type MessageOptions struct {
	Level Level
	Tags  map[string]string
	Extra map[string]any
}

// Transport delivers events and log batches to the sink.
type Transport interface {
	SendEvent(ctx context.Context, ev Event) error
	SendLogs(ctx context.Context, records []domain.LogRecord) error
}

// Stats are the emitter's running counters.
type Stats struct {
	ErrorCount    int
	LastErrorTime time.Time
	Queued        int
	Shipped       int
	Dropped       int
	FlushFailures int
	Throttled     int
}
