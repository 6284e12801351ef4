package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
	"github.com/vietddude/faultline/internal/metrics"
)

// Config controls the emitter.
type Config struct {
	App          string
	Environment  string
	Version      string
	Enabled      bool
	DashboardURL string

	BatchSize     int
	FlushInterval time.Duration
	MaxQueue      int
	Timeout       time.Duration
	RateLimit     float64
	Burst         int
}

// DefaultConfig returns batch size 10 and a 5s flush interval.
func DefaultConfig() Config {
	return Config{
		App:           "faultline",
		Environment:   "development",
		BatchSize:     10,
		FlushInterval: 5 * time.Second,
		MaxQueue:      1000,
		Timeout:       10 * time.Second,
		RateLimit:     10,
		Burst:         20,
	}
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithScheduler sets the scheduler used for the flush timer.
func WithScheduler(s timer.Scheduler) Option {
	return func(e *Emitter) { e.scheduler = s }
}

// WithDispatcher sets how background sends run. The default starts a goroutine.
func WithDispatcher(dispatch func(func())) Option {
	return func(e *Emitter) { e.dispatcher = dispatch }
}

// WithLogger sets the console logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.log = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// Emitter captures exceptions and ships log records. Network sends happen only
// when enabled; the console logger always receives captures. No method panics
// or returns transport errors to the caller, except Flush.
type Emitter struct {
	cfg        Config
	transport  Transport
	scheduler  timer.Scheduler
	dispatcher func(func())
	log        *slog.Logger
	now        func() time.Time
	limiter    *rate.Limiter

	mu         sync.Mutex
	tags       map[string]string
	contexts   map[string]map[string]any
	queue      []queued
	flushTimer timer.Handle
	timerGen   uint64
	flushing   bool
	closed     bool
	stats      Stats

	inflight sync.WaitGroup
}

type queued struct {
	rec      domain.LogRecord
	attempts int
}

// NewEmitter creates an emitter. transport may be nil, which disables network sends.
func NewEmitter(cfg Config, transport Transport, opts ...Option) *Emitter {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = def.MaxQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	e := &Emitter{
		cfg:       cfg,
		transport: transport,
		scheduler: timer.Real{},
		log:       slog.Default(),
		now:       time.Now,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		tags:      make(map[string]string),
		contexts:  make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = func(fn func()) { go fn() }
	}
	return e
}

// Enabled reports whether network sends are active.
func (e *Emitter) Enabled() bool {
	return e.cfg.Enabled && e.transport != nil
}

// SetTag attaches a tag to every subsequent capture.
func (e *Emitter) SetTag(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tags[key] = value
}

// SetContext attaches a named context to every subsequent capture.
// A nil map removes it.
func (e *Emitter) SetContext(name string, values map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if values == nil {
		delete(e.contexts, name)
		return
	}
	e.contexts[name] = maps.Clone(values)
}

// CaptureException records err and returns its telemetry id immediately.
func (e *Emitter) CaptureException(err error, opts CaptureOptions) string {
	if err == nil {
		err = errors.New("nil error")
	}
	level := opts.Level
	if level == "" {
		level = LevelError
	}

	now := e.now()
	ev := Event{
		ID:          uuid.NewString(),
		Kind:        KindException,
		Level:       level,
		Message:     err.Error(),
		ErrorName:   domain.ErrorName(err),
		Stack:       domain.ErrorStack(err),
		Fingerprint: opts.Fingerprint,
		Extra:       maps.Clone(opts.Extra),
		Timestamp:   now,
	}

	e.mu.Lock()
	e.stats.ErrorCount++
	e.stats.LastErrorTime = now
	e.annotateLocked(&ev, opts.Tags)
	e.mu.Unlock()
	if len(opts.Context) > 0 {
		if ev.Contexts == nil {
			ev.Contexts = make(map[string]map[string]any)
		}
		ev.Contexts["boundary"] = maps.Clone(opts.Context)
	}

	e.log.Error("captured exception",
		"telemetry_id", ev.ID,
		"error", ev.Message,
		"name", ev.ErrorName,
		"level", string(level),
		"fingerprint", strings.Join(ev.Fingerprint, " | "),
	)
	e.send(ev)
	return ev.ID
}

// CaptureMessage records an informational event and returns its telemetry id.
func (e *Emitter) CaptureMessage(text string, opts MessageOptions) string {
	level := opts.Level
	if level == "" {
		level = LevelInfo
	}
	ev := Event{
		ID:        uuid.NewString(),
		Kind:      KindMessage,
		Level:     level,
		Message:   text,
		Extra:     maps.Clone(opts.Extra),
		Timestamp: e.now(),
	}

	e.mu.Lock()
	e.annotateLocked(&ev, opts.Tags)
	e.mu.Unlock()

	e.log.Log(context.Background(), slogLevel(level), text, "telemetry_id", ev.ID)
	e.send(ev)
	return ev.ID
}

// ReportDialogURL returns the user-feedback URL for an event, or "" when no
// dashboard is configured.
func (e *Emitter) ReportDialogURL(eventID string) string {
	if e.cfg.DashboardURL == "" || eventID == "" {
		return ""
	}
	u, err := url.Parse(e.cfg.DashboardURL)
	if err != nil {
		return ""
	}
	u = u.JoinPath("feedback")
	q := u.Query()
	q.Set("eventId", eventID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Queued = len(e.queue)
	return s
}

// Wait blocks until in-flight background sends finish.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

// Close stops the flush timer, ships what is queued and waits for in-flight sends.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopTimerLocked()
	e.mu.Unlock()

	if err := e.waitInflight(ctx); err != nil {
		return err
	}
	err := e.Flush(ctx)
	if errors.Is(err, ErrFlushInProgress) {
		if werr := e.waitInflight(ctx); werr != nil {
			return werr
		}
		err = e.Flush(ctx)
	}
	return err
}

func (e *Emitter) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) annotateLocked(ev *Event, tags map[string]string) {
	ev.App = e.cfg.App
	ev.Environment = e.cfg.Environment
	ev.Release = e.cfg.Version

	ev.Tags = maps.Clone(e.tags)
	if ev.Tags == nil {
		ev.Tags = make(map[string]string, len(tags))
	}
	maps.Copy(ev.Tags, tags)

	if len(e.contexts) > 0 {
		ev.Contexts = make(map[string]map[string]any, len(e.contexts))
		for k, v := range e.contexts {
			ev.Contexts[k] = maps.Clone(v)
		}
	}
}

func (e *Emitter) send(ev Event) {
	if !e.Enabled() {
		metrics.TelemetryEventsTotal.WithLabelValues(ev.Kind, "disabled").Inc()
		return
	}
	if !e.limiter.Allow() {
		e.mu.Lock()
		e.stats.Throttled++
		e.mu.Unlock()
		metrics.TelemetryEventsTotal.WithLabelValues(ev.Kind, "throttled").Inc()
		return
	}

	// Registered under the lock so Close waits for it.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		metrics.TelemetryEventsTotal.WithLabelValues(ev.Kind, "closed").Inc()
		return
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	e.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
		defer cancel()
		if err := e.transport.SendEvent(ctx, ev); err != nil {
			metrics.TelemetryEventsTotal.WithLabelValues(ev.Kind, "failed").Inc()
			e.log.Warn("failed to send telemetry event", "telemetry_id", ev.ID, "error", err)
			return
		}
		metrics.TelemetryEventsTotal.WithLabelValues(ev.Kind, "sent").Inc()
	})
}

// background runs fn through the dispatcher, swallowing panics.
func (e *Emitter) background(fn func()) {
	e.inflight.Add(1)
	e.run(fn)
}

// run dispatches fn for an inflight slot the caller already added.
func (e *Emitter) run(fn func()) {
	e.dispatcher(func() {
		defer e.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("telemetry send panicked", "panic", fmt.Sprint(r))
			}
		}()
		fn()
	})
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
