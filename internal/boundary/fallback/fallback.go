// Package fallback builds the replacement view shown by a failed boundary.
package fallback

import (
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/boundary/history"
	"github.com/vietddude/faultline/internal/core/domain"
)

// RecentLimit is how many history items a view shows.
const RecentLimit = 3

// Props is everything a fallback renderer receives.
type Props struct {
	Err            error
	Event          domain.ErrorEvent
	Classification domain.Classification
	Reset          func()
	TelemetryID    string
	RetryCount     int
	MaxRetries     int
	CanRetry       bool
	AutoRetryIn    time.Duration
	History        history.History
	ComponentName  string
	DevMode        bool
	FeedbackURL    string
}

// Renderer produces the node displayed in place of a failed subtree.
// A panic raised here is not recovered by the boundary that called it.
type Renderer func(Props) any

// ActionKind identifies a fallback affordance.
type ActionKind string

const (
	ActionRetry    ActionKind = "retry"
	ActionHome     ActionKind = "home"
	ActionFeedback ActionKind = "feedback"
)

// Action is a button or link on the fallback view.
type Action struct {
	Kind  ActionKind
	Label string
	Href  string
	Run   func()
}

// RecentItem is one line of the history shown on the view.
type RecentItem struct {
	Name       string
	Message    string
	Category   string
	OccurredAt time.Time
}

// DevDetails are only shown in development mode.
type DevDetails struct {
	Message     string
	Stack       string
	RenderStack string
}

// View is the default fallback presentation.
type View struct {
	Title       string
	Message     string
	Badge       string
	Severity    string
	Attempt     string
	AutoRetry   string
	TelemetryID string
	Recent      []RecentItem
	Actions     []Action
	Details     *DevDetails
}

// Copy is the wording of a view. Empty fields fall back to category defaults.
type Copy struct {
	Title      string
	Message    string
	RetryLabel string
	HomeLabel  string
	HomeHref   string
}

var categoryCopy = map[domain.Category]Copy{
	domain.CategoryChunkLoad: {
		Title:   "A new version is available",
		Message: "Part of the application failed to load. Reloading usually fixes this.",
	},
	domain.CategoryNetwork: {
		Title:   "Connection problem",
		Message: "We could not reach the server. Check your connection and try again.",
	},
	domain.CategoryNullReference: {
		Title:   "Something is missing",
		Message: "Some data this page needs was not available.",
	},
	domain.CategoryAuth: {
		Title:   "Authentication problem",
		Message: "Your session may have expired. Please sign in again.",
	},
	domain.CategoryDatabase: {
		Title:   "Data unavailable",
		Message: "We could not load or save your data right now.",
	},
	domain.CategoryValidation: {
		Title:   "Please check your input",
		Message: "Some of the information entered is not valid.",
	},
}

var defaultCopy = Copy{
	Title:      "Something went wrong",
	Message:    "An unexpected error occurred. Our team has been notified.",
	RetryLabel: "Try again",
	HomeLabel:  "Go to home",
	HomeHref:   "/",
}

// Default renders the category-aware default view.
func Default(p Props) any {
	return Build(p, Copy{})
}

// WithCopy returns a renderer using c for wording.
func WithCopy(c Copy) Renderer {
	return func(p Props) any { return Build(p, c) }
}

// Build assembles a View. Every failed state gets a title, a badge and either
// a retry or a safe-exit action.
func Build(p Props, c Copy) View {
	c = resolveCopy(p.Classification.Category, c)

	v := View{
		Title:       c.Title,
		Message:     c.Message,
		Badge:       p.Classification.Category.Label(),
		Severity:    p.Classification.Severity.String(),
		TelemetryID: p.TelemetryID,
	}
	if p.RetryCount > 0 {
		v.Attempt = fmt.Sprintf("Attempt %d of %d", p.RetryCount, p.MaxRetries)
	}
	if p.AutoRetryIn > 0 {
		v.AutoRetry = fmt.Sprintf("Retrying automatically in %s", p.AutoRetryIn.Round(time.Millisecond))
	}

	for _, ev := range p.History.Recent(RecentLimit) {
		v.Recent = append(v.Recent, RecentItem{
			Name:       ev.Name,
			Message:    ev.Message,
			Category:   ev.Classification.Category.Label(),
			OccurredAt: ev.OccurredAt,
		})
	}

	if p.CanRetry && p.Reset != nil {
		v.Actions = append(v.Actions, Action{Kind: ActionRetry, Label: c.RetryLabel, Run: p.Reset})
	} else {
		v.Actions = append(v.Actions, Action{Kind: ActionHome, Label: c.HomeLabel, Href: c.HomeHref})
	}
	if p.FeedbackURL != "" {
		v.Actions = append(v.Actions, Action{Kind: ActionFeedback, Label: "Send feedback", Href: p.FeedbackURL})
	}

	if p.DevMode {
		v.Details = &DevDetails{
			Message:     p.Event.Message,
			Stack:       p.Event.Stack,
			RenderStack: p.Event.RenderStack,
		}
	}
	return v
}

// Action returns the first action of the given kind.
func (v View) Action(kind ActionKind) (Action, bool) {
	for _, a := range v.Actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

// Text renders the view as plain text.
func (v View) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s, %s]\n", v.Title, v.Badge, v.Severity)
	fmt.Fprintln(&b, v.Message)
	if v.Attempt != "" {
		fmt.Fprintln(&b, v.Attempt)
	}
	if v.AutoRetry != "" {
		fmt.Fprintln(&b, v.AutoRetry)
	}
	if len(v.Recent) > 0 {
		fmt.Fprintln(&b, "Recent errors:")
		for _, r := range v.Recent {
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", r.Name, r.Message, r.Category)
		}
	}
	if v.TelemetryID != "" {
		fmt.Fprintf(&b, "Error ID: %s\n", v.TelemetryID)
	}
	for _, a := range v.Actions {
		if a.Href != "" {
			fmt.Fprintf(&b, "[%s] -> %s\n", a.Label, a.Href)
		} else {
			fmt.Fprintf(&b, "[%s]\n", a.Label)
		}
	}
	if v.Details != nil {
		fmt.Fprintf(&b, "--- %s\n", v.Details.Message)
		if v.Details.Stack != "" {
			fmt.Fprintln(&b, v.Details.Stack)
		}
		if v.Details.RenderStack != "" {
			fmt.Fprintln(&b, v.Details.RenderStack)
		}
	}
	return b.String()
}

func resolveCopy(cat domain.Category, c Copy) Copy {
	base := defaultCopy
	if cc, ok := categoryCopy[cat]; ok {
		base.Title = cc.Title
		base.Message = cc.Message
	}
	if c.Title == "" {
		c.Title = base.Title
	}
	if c.Message == "" {
		c.Message = base.Message
	}
	if c.RetryLabel == "" {
		c.RetryLabel = base.RetryLabel
	}
	if c.HomeLabel == "" {
		c.HomeLabel = base.HomeLabel
	}
	if c.HomeHref == "" {
		c.HomeHref = base.HomeHref
	}
	return c
}
