package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		ctx      map[string]any
		category domain.Category
		severity domain.Severity
	}{
		{
			name:     "chunk load by name",
			err:      domain.NewRenderError("ChunkLoadError", "Loading chunk 4 failed."),
			category: domain.CategoryChunkLoad,
			severity: domain.SeverityCritical,
		},
		{
			name:     "chunk load by message",
			err:      errors.New("Loading CSS chunk 12 failed"),
			category: domain.CategoryChunkLoad,
			severity: domain.SeverityCritical,
		},
		{
			name:     "null property access",
			err:      domain.NewRenderError("TypeError", "Cannot read properties of null (reading 'x')"),
			category: domain.CategoryNullReference,
			severity: domain.SeverityHigh,
		},
		{
			name:     "type error without null access",
			err:      domain.NewRenderError("TypeError", "x.map is not a function"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "nil pointer panic",
			err:      errors.New("runtime error: invalid memory address or nil pointer dereference"),
			category: domain.CategoryNullReference,
			severity: domain.SeverityHigh,
		},
		{
			name:     "reference error",
			err:      domain.NewRenderError("ReferenceError", "student is not defined"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityHigh,
		},
		{
			name:     "fetch failure",
			err:      errors.New("Failed to fetch"),
			category: domain.CategoryNetwork,
			severity: domain.SeverityMedium,
		},
		{
			name:     "network error with 5xx status",
			err:      domain.NewRenderError("NetworkError", "request failed"),
			ctx:      map[string]any{"status": 503},
			category: domain.CategoryNetwork,
			severity: domain.SeverityHigh,
		},
		{
			name:     "network error with 4xx status",
			err:      domain.NewRenderError("NetworkError", "request failed"),
			ctx:      map[string]any{"status": "404"},
			category: domain.CategoryNetwork,
			severity: domain.SeverityMedium,
		},
		{
			name:     "go net error",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			category: domain.CategoryNetwork,
			severity: domain.SeverityMedium,
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("load classes: %w", context.DeadlineExceeded),
			category: domain.CategoryNetwork,
			severity: domain.SeverityMedium,
		},
		{
			name:     "syntax error",
			err:      domain.NewRenderError("SyntaxError", "Unexpected token < in JSON"),
			category: domain.CategorySyntax,
			severity: domain.SeverityMedium,
		},
		{
			name:     "categorized validation",
			err:      domain.WithCategory(domain.CategoryValidation, errors.New("email is required")),
			category: domain.CategoryValidation,
			severity: domain.SeverityLow,
		},
		{
			name:     "categorized database",
			err:      domain.WithCategory(domain.CategoryDatabase, errors.New("relation students does not exist")),
			category: domain.CategoryDatabase,
			severity: domain.SeverityHigh,
		},
		{
			name:     "generic",
			err:      errors.New("boom"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "nil error",
			err:      nil,
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "auth component escalates",
			err:      errors.New("boom"),
			ctx:      map[string]any{"component": "AuthModal"},
			category: domain.CategoryUnknown,
			severity: domain.SeverityHigh,
		},
		{
			name:     "login boundary escalates",
			err:      domain.WithCategory(domain.CategoryValidation, errors.New("bad password")),
			ctx:      map[string]any{"boundary": "LoginForm"},
			category: domain.CategoryValidation,
			severity: domain.SeverityHigh,
		},
		{
			name:     "payment component escalates to critical",
			err:      errors.New("boom"),
			ctx:      map[string]any{"component": "PaymentCheckout"},
			category: domain.CategoryUnknown,
			severity: domain.SeverityCritical,
		},
		{
			name:     "chunk load in payment stays critical",
			err:      domain.NewRenderError("ChunkLoadError", "Loading chunk 7 failed"),
			ctx:      map[string]any{"component": "PaymentForm"},
			category: domain.CategoryChunkLoad,
			severity: domain.SeverityCritical,
		},
		{
			name:     "null reference in auth stays high",
			err:      domain.NewRenderError("TypeError", "Cannot read properties of undefined (reading 'id')"),
			ctx:      map[string]any{"component": "AuthProvider"},
			category: domain.CategoryNullReference,
			severity: domain.SeverityHigh,
		},
		{
			name:     "safari load failed",
			err:      domain.NewRenderError("TypeError", "Load failed"),
			category: domain.CategoryNetwork,
			severity: domain.SeverityMedium,
		},
		{
			name:     "load failed needs a type error",
			err:      errors.New("load failed"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "payload failure is not network",
			err:      errors.New("payload failed validation"),
			ctx:      map[string]any{"component": "ProfileForm"},
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "upload failure is not network",
			err:      errors.New("image upload failed"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "download failure is not network",
			err:      errors.New("file download failed: disk full"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
		{
			name:     "type error mentioning load failed is not network",
			err:      domain.NewRenderError("TypeError", "image upload failed"),
			category: domain.CategoryUnknown,
			severity: domain.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.ctx)
			require.Equal(t, tt.category, got.Category)
			require.Equal(t, tt.severity, got.Severity)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	inputs := []struct {
		err error
		ctx map[string]any
	}{
		{domain.NewRenderError("ChunkLoadError", "Loading chunk 4 failed"), nil},
		{errors.New("boom"), map[string]any{"component": "PaymentCheckout", "url": "https://app.test/pay?x=1"}},
		{domain.NewRenderError("NetworkError", "offline"), map[string]any{"status": 502.0}},
	}

	for _, in := range inputs {
		first := Classify(in.err, in.ctx)
		second := Classify(in.err, in.ctx)
		require.Equal(t, first, second)
		require.Equal(t, first.Key(), second.Key())
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("all parts", func(t *testing.T) {
		c := Classify(errors.New("boom"), map[string]any{
			"component": "ClassList",
			"url":       "https://school.test/classes/12?tab=roster",
		})
		require.Equal(t, []string{"Error", "boom", "ClassList", "/classes/12"}, c.Fingerprint)
	})

	t.Run("absent parts filtered", func(t *testing.T) {
		c := Classify(errors.New("boom"), nil)
		require.Equal(t, []string{"Error", "boom"}, c.Fingerprint)
	})

	t.Run("unparseable url skipped", func(t *testing.T) {
		c := Classify(errors.New("boom"), map[string]any{"url": "http://[::1"})
		require.Equal(t, []string{"Error", "boom"}, c.Fingerprint)
	})

	t.Run("message truncated", func(t *testing.T) {
		msg := strings.Repeat("é", 150)
		c := Classify(errors.New(msg), nil)
		require.Equal(t, strings.Repeat("é", MessageLimit), c.Fingerprint[1])
	})

	t.Run("boundary used when component missing", func(t *testing.T) {
		c := Classify(errors.New("boom"), map[string]any{"boundary": "APIErrorBoundary"})
		require.Equal(t, []string{"Error", "boom", "APIErrorBoundary"}, c.Fingerprint)
	})
}
