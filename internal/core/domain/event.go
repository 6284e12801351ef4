package domain

import (
	"maps"
	"time"
)

// ErrorEvent is a single captured failure. It is immutable once built.
type ErrorEvent struct {
	Err            error          `json:"-"`
	Name           string         `json:"name"`
	Message        string         `json:"message"`
	Stack          string         `json:"stack,omitempty"`
	RenderStack    string         `json:"render_stack,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Context        map[string]any `json:"context,omitempty"`
	TelemetryID    string         `json:"telemetry_id,omitempty"`
	Classification Classification `json:"classification"`
}

// NewErrorEvent builds an event from err. The context map is copied.
func NewErrorEvent(err error, at time.Time, ctx map[string]any, renderStack string) ErrorEvent {
	ev := ErrorEvent{
		Err:         err,
		Name:        ErrorName(err),
		Stack:       ErrorStack(err),
		RenderStack: renderStack,
		OccurredAt:  at,
		Context:     maps.Clone(ctx),
	}
	if err != nil {
		ev.Message = err.Error()
	}
	return ev
}

// Phase is the state of a boundary.
type Phase int

const (
	PhaseHealthy Phase = iota
	PhaseFailed
)

func (p Phase) String() string {
	if p == PhaseFailed {
		return "failed"
	}
	return "healthy"
}
