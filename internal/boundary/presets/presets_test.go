package presets

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/boundary"
	"github.com/vietddude/faultline/internal/boundary/fallback"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
	"github.com/vietddude/faultline/internal/telemetry"
)

type recordingReporter struct {
	opts []telemetry.CaptureOptions
}

func (r *recordingReporter) CaptureException(_ error, opts telemetry.CaptureOptions) string {
	r.opts = append(r.opts, opts)
	return "evt"
}

func (r *recordingReporter) CaptureMessage(string, telemetry.MessageOptions) string { return "msg" }
func (r *recordingReporter) Log(domain.LogRecord)                                   {}

func baseOptions(r *recordingReporter) boundary.Options {
	return boundary.Options{
		Reporter:  r,
		Scheduler: timer.NewManual(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func fail(b *boundary.Boundary) fallback.View {
	return b.Render(func() (boundary.Node, error) {
		return nil, errors.New("boom")
	}).(fallback.View)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name      string
		build     func(boundary.Options) *boundary.Boundary
		component string
		kind      string
		context   map[string]any
		title     string
		severity  domain.Severity
	}{
		{
			name:      "api",
			build:     func(o boundary.Options) *boundary.Boundary { return API("/api/students", "GET", o) },
			component: "APIErrorBoundary",
			kind:      "api",
			context:   map[string]any{"endpoint": "/api/students", "method": "GET"},
			title:     "Could not load data",
			severity:  domain.SeverityMedium,
		},
		{
			name:      "auth",
			build:     func(o boundary.Options) *boundary.Boundary { return Auth("login", o) },
			component: "AuthErrorBoundary",
			kind:      "auth",
			context:   map[string]any{"authContext": "login"},
			title:     "Authentication error",
			severity:  domain.SeverityHigh,
		},
		{
			name:      "database",
			build:     func(o boundary.Options) *boundary.Boundary { return Database("select", "classes", o) },
			component: "DatabaseErrorBoundary",
			kind:      "database",
			context:   map[string]any{"operation": "select", "table": "classes"},
			title:     "Data error",
			severity:  domain.SeverityMedium,
		},
		{
			name:      "form",
			build:     func(o boundary.Options) *boundary.Boundary { return Form("StudentForm", o) },
			component: "FormErrorBoundary",
			kind:      "form",
			context:   map[string]any{"formName": "StudentForm"},
			title:     "Form error",
			severity:  domain.SeverityMedium,
		},
		{
			name:      "page",
			build:     func(o boundary.Options) *boundary.Boundary { return Page("Dashboard", o) },
			component: "PageErrorBoundary",
			kind:      "page",
			context:   map[string]any{"page": "Dashboard"},
			title:     "This page could not be displayed",
			severity:  domain.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingReporter{}
			b := tt.build(baseOptions(r))
			require.Equal(t, tt.component, b.ComponentName())

			view := fail(b)
			require.Equal(t, tt.title, view.Title)

			require.Len(t, r.opts, 1)
			opts := r.opts[0]
			require.Equal(t, tt.kind, opts.Tags["boundary_type"])
			require.Equal(t, tt.component, opts.Tags["component"])
			for k, v := range tt.context {
				require.Equal(t, v, opts.Context[k], k)
			}
			require.Equal(t, tt.severity, b.State().CurrentFailure.Classification.Severity)
		})
	}
}

func TestPresets_CallerOverrides(t *testing.T) {
	r := &recordingReporter{}
	opts := baseOptions(r)
	opts.ComponentName = "PaymentCheckoutForm"
	opts.Context = map[string]any{"step": "card"}
	opts.Tags = map[string]string{"team": "billing"}

	b := Form("checkout", opts)
	require.Equal(t, "PaymentCheckoutForm", b.ComponentName())

	fail(b)
	got := r.opts[0]
	require.Equal(t, "card", got.Context["step"])
	require.Equal(t, "checkout", got.Context["formName"])
	require.Equal(t, "billing", got.Tags["team"])
	require.Equal(t, "form", got.Tags["boundary_type"])
	require.Equal(t, domain.SeverityCritical, b.State().CurrentFailure.Classification.Severity)
}

func TestPresets_ExhaustedAuthSendsToLogin(t *testing.T) {
	r := &recordingReporter{}
	opts := baseOptions(r)
	opts.MaxRetries = 1

	b := Auth("session", opts)
	fail(b)
	b.Reset()
	view := fail(b)

	home, ok := view.Action(fallback.ActionHome)
	require.True(t, ok)
	require.Equal(t, "/login", home.Href)
	require.Equal(t, "Go to sign in", home.Label)
}
