// Package classifier maps a failure and its context to a category, a severity
// and a grouping fingerprint.
package classifier

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Context keys read by Classify.
const (
	KeyComponent = "component"
	KeyBoundary  = "boundary"
	KeyStatus    = "status"
	KeyURL       = "url"
)

// MessageLimit is how many characters of the message go into the fingerprint.
const MessageLimit = 100

var (
	chunkNames    = []string{"ChunkLoadError", "ModuleLoadError"}
	chunkMarkers  = []string{"loading chunk", "loading css chunk", "failed to fetch dynamically imported module", "importing a module script failed"}
	nullMarkers   = []string{"cannot read propert", "cannot set propert", "of null", "of undefined", "is null", "is undefined", "null is not an object", "undefined is not an object"}
	networkNames  = []string{"NetworkError", "FetchError", "AbortError", "TimeoutError"}
	fetchMarkers  = []string{"failed to fetch", "fetch failed", "network error", "networkerror", "network request failed"}
	authMarkers   = []string{"auth", "login"}
	paymentMarker = []string{"payment", "checkout"}
)

// Classify is pure and total: the same error and context always produce the
// same classification, and every input produces one.
func Classify(err error, ctx map[string]any) domain.Classification {
	name := domain.ErrorName(err)
	message := ""
	if err != nil {
		message = err.Error()
	}
	lower := strings.ToLower(message)
	component := ComponentName(ctx)

	category, severity := match(err, name, lower, ctx)

	comp := strings.ToLower(component)
	if containsAny(comp, authMarkers) {
		severity = severity.AtLeast(domain.SeverityHigh)
	}
	if containsAny(comp, paymentMarker) {
		severity = severity.AtLeast(domain.SeverityCritical)
	}

	return domain.Classification{
		Category:    category,
		Severity:    severity,
		Fingerprint: Fingerprint(name, message, component, stringValue(ctx, KeyURL)),
	}
}

// match applies the name and message rules; the first matching rule wins.
func match(err error, name, lower string, ctx map[string]any) (domain.Category, domain.Severity) {
	switch {
	case oneOf(name, chunkNames) || containsAny(lower, chunkMarkers):
		return domain.CategoryChunkLoad, domain.SeverityCritical

	case name == "TypeError" && containsAny(lower, nullMarkers),
		strings.Contains(lower, "nil pointer dereference"):
		return domain.CategoryNullReference, domain.SeverityHigh

	case name == "ReferenceError":
		return domain.CategoryUnknown, domain.SeverityHigh

	case oneOf(name, networkNames) || containsAny(lower, fetchMarkers) || isNetworkError(err),
		name == "TypeError" && strings.TrimSpace(lower) == "load failed":
		if status, ok := statusCode(ctx); ok && status >= 500 {
			return domain.CategoryNetwork, domain.SeverityHigh
		}
		return domain.CategoryNetwork, domain.SeverityMedium

	case name == "SyntaxError":
		return domain.CategorySyntax, domain.SeverityMedium
	}

	var categorized domain.Categorized
	if errors.As(err, &categorized) {
		if c := categorized.Category(); c.Valid() {
			return c, c.Baseline()
		}
	}
	return domain.CategoryUnknown, domain.SeverityMedium
}

// Fingerprint builds the grouping key parts, skipping absent ones.
func Fingerprint(name, message, component, rawURL string) []string {
	fp := []string{name, truncate(message, MessageLimit)}
	if component != "" {
		fp = append(fp, component)
	}
	if p := urlPath(rawURL); p != "" {
		fp = append(fp, p)
	}
	return fp
}

// ComponentName returns the component or boundary name from ctx.
func ComponentName(ctx map[string]any) string {
	if c := stringValue(ctx, KeyComponent); c != "" {
		return c
	}
	return stringValue(ctx, KeyBoundary)
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusCode(ctx map[string]any) (int, bool) {
	switch v := ctx[KeyStatus].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func urlPath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

func stringValue(ctx map[string]any, key string) string {
	s, _ := ctx[key].(string)
	return s
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
