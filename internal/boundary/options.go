package boundary

import (
	"log/slog"
	"maps"
	"time"

	"github.com/vietddude/faultline/internal/boundary/fallback"
	"github.com/vietddude/faultline/internal/boundary/retry"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
	"github.com/vietddude/faultline/internal/telemetry"
)

// Reporter is the telemetry sink a boundary reports to. Implementations must
// not call back into the boundary.
type Reporter interface {
	CaptureException(err error, opts telemetry.CaptureOptions) string
	CaptureMessage(text string, opts telemetry.MessageOptions) string
	Log(rec domain.LogRecord)
}

// FeedbackLinker is optionally implemented by a Reporter that offers a
// user-feedback page for a captured event.
type FeedbackLinker interface {
	ReportDialogURL(eventID string) string
}

// Options configure a Boundary.
type Options struct {
	ComponentName string
	Context       map[string]any
	Tags          map[string]string

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	Fallback fallback.Renderer
	OnError  func(err error, ctx map[string]any)
	OnReset  func()

	Reporter  Reporter
	Scheduler timer.Scheduler
	Logger    *slog.Logger
	Now       func() time.Time

	// Environment returns client-side details such as userAgent and url
	// that are added to the structured failure record.
	Environment func() map[string]string

	DevMode bool
}

func (o Options) withDefaults() Options {
	if o.ComponentName == "" {
		o.ComponentName = "ErrorBoundary"
	}
	o.Context = maps.Clone(o.Context)
	o.Tags = maps.Clone(o.Tags)
	if o.MaxRetries <= 0 {
		o.MaxRetries = retry.DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = retry.DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = retry.DefaultMaxDelay
	}
	if o.Fallback == nil {
		o.Fallback = fallback.Default
	}
	if o.Reporter == nil {
		o.Reporter = nopReporter{}
	}
	if o.Scheduler == nil {
		o.Scheduler = timer.Real{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type nopReporter struct{}

func (nopReporter) CaptureException(error, telemetry.CaptureOptions) string { return "" }
func (nopReporter) CaptureMessage(string, telemetry.MessageOptions) string  { return "" }
func (nopReporter) Log(domain.LogRecord)                                    {}
