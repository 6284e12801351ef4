// Package presets configures boundaries for common subsystems. Each preset
// fixes the component name, the context shape and the fallback wording.
package presets

import (
	"maps"

	"github.com/vietddude/faultline/internal/boundary"
	"github.com/vietddude/faultline/internal/boundary/fallback"
)

// API protects a subtree backed by an HTTP endpoint.
func API(endpoint, method string, opts boundary.Options) *boundary.Boundary {
	return build(opts, "APIErrorBoundary", "api",
		map[string]any{"endpoint": endpoint, "method": method},
		fallback.Copy{
			Title:   "Could not load data",
			Message: "The server did not respond as expected.",
		})
}

// Auth protects sign-in and session flows.
func Auth(authContext string, opts boundary.Options) *boundary.Boundary {
	return build(opts, "AuthErrorBoundary", "auth",
		map[string]any{"authContext": authContext},
		fallback.Copy{
			Title:     "Authentication error",
			Message:   "We could not verify your session. Please sign in again.",
			HomeLabel: "Go to sign in",
			HomeHref:  "/login",
		})
}

// Database protects a subtree that reads or writes a table.
func Database(operation, table string, opts boundary.Options) *boundary.Boundary {
	return build(opts, "DatabaseErrorBoundary", "database",
		map[string]any{"operation": operation, "table": table},
		fallback.Copy{
			Title:   "Data error",
			Message: "We could not access the records you asked for.",
		})
}

// Form protects a form.
func Form(formName string, opts boundary.Options) *boundary.Boundary {
	return build(opts, "FormErrorBoundary", "form",
		map[string]any{"formName": formName},
		fallback.Copy{
			Title:      "Form error",
			Message:    "The form could not be displayed. Your changes were not saved.",
			RetryLabel: "Reload form",
		})
}

// Page protects a whole page.
func Page(pageName string, opts boundary.Options) *boundary.Boundary {
	return build(opts, "PageErrorBoundary", "page",
		map[string]any{"page": pageName},
		fallback.Copy{
			Title:     "This page could not be displayed",
			HomeLabel: "Back to dashboard",
			HomeHref:  "/dashboard",
		})
}

// build fills in the preset's fields. Caller-supplied values win.
func build(opts boundary.Options, name, kind string, ctx map[string]any, c fallback.Copy) *boundary.Boundary {
	if opts.ComponentName == "" {
		opts.ComponentName = name
	}

	merged := ctx
	maps.Copy(merged, opts.Context)
	opts.Context = merged

	tags := map[string]string{"boundary_type": kind}
	maps.Copy(tags, opts.Tags)
	opts.Tags = tags

	if opts.Fallback == nil {
		opts.Fallback = fallback.WithCopy(c)
	}
	return boundary.New(opts)
}
