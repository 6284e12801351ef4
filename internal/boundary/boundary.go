// Package boundary implements a subtree-scoped fault barrier. A Boundary
// renders its subtree while Healthy, catches render failures, reports them,
// and renders a fallback while Failed until it is reset.
package boundary

import (
	"fmt"
	"maps"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/boundary/classifier"
	"github.com/vietddude/faultline/internal/boundary/fallback"
	"github.com/vietddude/faultline/internal/boundary/history"
	"github.com/vietddude/faultline/internal/boundary/retry"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/telemetry"
)

// Node is whatever the host renders.
type Node = any

// Subtree renders the protected content. A returned error or a panic is a
// render failure.
type Subtree func() (Node, error)

const (
	triggerManual = "manual"
	triggerAuto   = "auto"
)

// State is a snapshot of a boundary.
type State struct {
	Phase          domain.Phase
	CurrentFailure *domain.ErrorEvent
	RetryCount     int
	MaxRetries     int
	History        history.History
	RetryPending   bool
	RetryDelay     time.Duration
}

// Boundary is safe for concurrent use. Catches are serialized.
type Boundary struct {
	opts   Options
	policy retry.Policy

	mu         sync.Mutex
	phase      domain.Phase
	current    *domain.ErrorEvent
	retryCount int
	history    history.History
	pending    timer.Handle
	retryDelay time.Duration
	gen        uint64
	catches    uint64
	closed     bool
}

// New creates a Healthy boundary.
func New(opts Options) *Boundary {
	opts = opts.withDefaults()
	return &Boundary{
		opts: opts,
		policy: retry.Policy{
			MaxRetries: opts.MaxRetries,
			BaseDelay:  opts.BaseDelay,
			MaxDelay:   opts.MaxDelay,
		},
		history: history.New(),
	}
}

// ComponentName returns the boundary's name.
func (b *Boundary) ComponentName() string { return b.opts.ComponentName }

// Render returns the subtree's output while Healthy and the fallback while
// Failed. A failing subtree moves the boundary to Failed in the same call.
func (b *Boundary) Render(subtree Subtree) Node {
	if b.Phase() == domain.PhaseFailed {
		return b.renderFallback()
	}

	node, err, stack := renderSubtree(subtree)
	if err == nil {
		return node
	}
	b.Catch(err, stack)
	return b.renderFallback()
}

func renderSubtree(subtree Subtree) (node Node, err error, stack string) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			stack = string(debug.Stack())
		}
	}()
	node, err = subtree()
	if err != nil {
		stack = domain.ErrorStack(err)
	}
	return node, err, stack
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// Catch is the synchronous catch hook: it records err as the current failure.
// Catching while already Failed replaces the current failure and reschedules
// any automatic retry.
func (b *Boundary) Catch(err error, renderStack string) {
	if err == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	retryCount := b.retryCount
	b.mu.Unlock()

	ctx := b.eventContext()
	cls := classifier.Classify(err, ctx)
	event := domain.NewErrorEvent(err, b.opts.Now(), ctx, renderStack)
	event.Classification = cls

	event.TelemetryID = b.opts.Reporter.CaptureException(err, telemetry.CaptureOptions{
		Tags:        b.captureTags(cls, retryCount),
		Context:     ctx,
		Extra:       map[string]any{"renderStack": renderStack, "retryCount": retryCount},
		Fingerprint: cls.Fingerprint,
		Level:       telemetry.LevelFor(cls.Severity),
	})
	b.opts.Reporter.Log(b.failureRecord(event, retryCount))
	metrics.BoundaryErrorsTotal.WithLabelValues(b.opts.ComponentName, string(cls.Category), cls.Severity.String()).Inc()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.history = b.history.Push(event)
	b.current = &event
	b.phase = domain.PhaseFailed
	b.cancelPendingLocked()
	b.catches++
	seq := b.catches
	saturated := b.history.Saturated(cls.Key())
	occurrences := b.history.Len()
	onError := b.opts.OnError
	b.mu.Unlock()

	if saturated {
		b.opts.Logger.Warn("error boundary keeps failing with the same error",
			"component", b.opts.ComponentName,
			"fingerprint", strings.Join(cls.Fingerprint, " | "),
			"occurrences", occurrences,
		)
	}
	b.invokeOnError(onError, err, ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	// the hook may have reset the boundary, or a newer catch may own it now
	if b.closed || b.phase != domain.PhaseFailed || b.catches != seq {
		return
	}
	decision := b.policy.Decide(cls, b.retryCount)
	if decision.ShouldAutoRetry {
		b.scheduleLocked(decision.Delay, cls.Category)
	}
}

// Reset clears the current failure. It reports whether the boundary was Failed.
func (b *Boundary) Reset() bool {
	return b.reset(triggerManual, 0)
}

// Close cancels any pending automatic retry. The boundary ignores later catches.
func (b *Boundary) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cancelPendingLocked()
}

// Phase returns the current phase.
func (b *Boundary) Phase() domain.Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// State returns a snapshot of the boundary.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := State{
		Phase:        b.phase,
		RetryCount:   b.retryCount,
		MaxRetries:   b.opts.MaxRetries,
		History:      b.history,
		RetryPending: b.pending != nil,
		RetryDelay:   b.retryDelay,
	}
	if b.current != nil {
		ev := *b.current
		s.CurrentFailure = &ev
	}
	return s
}

func (b *Boundary) reset(trigger string, gen uint64) bool {
	b.mu.Lock()
	if trigger == triggerAuto && (gen != b.gen || b.pending == nil) {
		b.mu.Unlock()
		return false
	}
	if b.phase != domain.PhaseFailed {
		b.mu.Unlock()
		return false
	}
	b.cancelPendingLocked()
	b.retryCount++
	failedAt := b.current.OccurredAt
	b.current = nil
	b.phase = domain.PhaseHealthy
	retryCount := b.retryCount
	onReset := b.opts.OnReset
	b.mu.Unlock()

	b.captureRecovery(trigger, retryCount, b.opts.Now().Sub(failedAt))
	metrics.BoundaryRecoveriesTotal.WithLabelValues(b.opts.ComponentName, trigger).Inc()

	if onReset != nil {
		b.safely("onReset", onReset)
	}
	return true
}

func (b *Boundary) scheduleLocked(delay time.Duration, cat domain.Category) {
	b.gen++
	gen := b.gen
	b.retryDelay = delay
	b.pending = b.opts.Scheduler.Schedule(delay, func() { b.reset(triggerAuto, gen) })

	metrics.BoundaryAutoRetriesScheduled.WithLabelValues(b.opts.ComponentName, string(cat)).Inc()
	metrics.BoundaryRetryDelay.WithLabelValues(b.opts.ComponentName).Observe(delay.Seconds())
}

func (b *Boundary) cancelPendingLocked() {
	if b.pending == nil {
		return
	}
	b.pending.Cancel()
	b.pending = nil
	b.retryDelay = 0
	b.gen++
}

func (b *Boundary) renderFallback() Node {
	b.mu.Lock()
	if b.current == nil {
		b.mu.Unlock()
		return nil
	}
	ev := *b.current
	props := fallback.Props{
		Err:            ev.Err,
		Event:          ev,
		Classification: ev.Classification,
		Reset:          func() { b.Reset() },
		TelemetryID:    ev.TelemetryID,
		RetryCount:     b.retryCount,
		MaxRetries:     b.opts.MaxRetries,
		CanRetry:       b.policy.CanRetry(b.retryCount),
		History:        b.history,
		ComponentName:  b.opts.ComponentName,
		DevMode:        b.opts.DevMode,
	}
	if b.pending != nil {
		props.AutoRetryIn = b.retryDelay
	}
	render := b.opts.Fallback
	b.mu.Unlock()

	if linker, ok := b.opts.Reporter.(FeedbackLinker); ok {
		props.FeedbackURL = linker.ReportDialogURL(ev.TelemetryID)
	}
	return render(props)
}

func (b *Boundary) eventContext() map[string]any {
	ctx := maps.Clone(b.opts.Context)
	if ctx == nil {
		ctx = make(map[string]any, 1)
	}
	ctx[classifier.KeyComponent] = b.opts.ComponentName
	return ctx
}

func (b *Boundary) captureTags(cls domain.Classification, retryCount int) map[string]string {
	tags := maps.Clone(b.opts.Tags)
	if tags == nil {
		tags = make(map[string]string, 5)
	}
	tags["boundary"] = "true"
	tags["component"] = b.opts.ComponentName
	tags["category"] = string(cls.Category)
	tags["severity"] = cls.Severity.String()
	tags["retryCount"] = fmt.Sprint(retryCount)
	return tags
}

func (b *Boundary) failureRecord(ev domain.ErrorEvent, retryCount int) domain.LogRecord {
	props := map[string]any{
		"component":   b.opts.ComponentName,
		"errorName":   ev.Name,
		"errorMsg":    ev.Message,
		"category":    string(ev.Classification.Category),
		"severity":    ev.Classification.Severity.String(),
		"fingerprint": ev.Classification.Fingerprint,
		"telemetryId": ev.TelemetryID,
		"retryCount":  retryCount,
	}
	if ev.Stack != "" {
		props["stack"] = ev.Stack
	}
	if ev.RenderStack != "" {
		props["renderStack"] = ev.RenderStack
	}
	for k, v := range ev.Context {
		if _, taken := props[k]; !taken {
			props[k] = v
		}
	}
	if b.opts.Environment != nil {
		for k, v := range b.opts.Environment() {
			props[k] = v
		}
	}
	return domain.LogRecord{
		Timestamp:  ev.OccurredAt,
		Level:      "error",
		Message:    "Error boundary caught error",
		Category:   "ui",
		Properties: props,
	}
}

func (b *Boundary) captureRecovery(trigger string, retryCount int, sinceFailure time.Duration) {
	msg := fmt.Sprintf("%s recovered from error", b.opts.ComponentName)
	b.opts.Reporter.CaptureMessage(msg, telemetry.MessageOptions{
		Level: telemetry.LevelInfo,
		Tags: map[string]string{
			"boundary":  "true",
			"component": b.opts.ComponentName,
			"recovery":  trigger,
		},
		Extra: map[string]any{
			"retryCount":         retryCount,
			"timeSinceFailureMs": sinceFailure.Milliseconds(),
		},
	})
	b.opts.Reporter.Log(domain.LogRecord{
		Timestamp: b.opts.Now(),
		Level:     "info",
		Message:   "Error boundary recovered",
		Category:  "ui",
		Properties: map[string]any{
			"component":          b.opts.ComponentName,
			"recovery":           trigger,
			"retryCount":         retryCount,
			"timeSinceFailureMs": sinceFailure.Milliseconds(),
		},
	})
}

func (b *Boundary) invokeOnError(hook func(error, map[string]any), err error, ctx map[string]any) {
	if hook == nil {
		return
	}
	b.safely("onError", func() { hook(err, maps.Clone(ctx)) })
}

// safely runs a caller hook, logging instead of propagating its panic.
func (b *Boundary) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Warn("error boundary hook panicked",
				"component", b.opts.ComponentName,
				"hook", name,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
