package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
)

// ============================================================================
// Mock Transport
// ============================================================================

type mockTransport struct {
	mu       sync.Mutex
	events   []Event
	batches  [][]domain.LogRecord
	failLogs int
	failAll  bool
}

func (m *mockTransport) SendEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("sink unavailable")
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockTransport) SendLogs(_ context.Context, recs []domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll || m.failLogs > 0 {
		m.failLogs--
		return errors.New("sink unavailable")
	}
	cp := make([]domain.LogRecord, len(recs))
	copy(cp, recs)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockTransport) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *mockTransport) Batches() [][]domain.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.LogRecord(nil), m.batches...)
}

func syncDispatch(fn func()) { fn() }

func newTestEmitter(t *testing.T, cfg Config, tr Transport) (*Emitter, *timer.Manual) {
	t.Helper()
	sched := timer.NewManual()
	e := NewEmitter(cfg, tr,
		WithScheduler(sched),
		WithDispatcher(syncDispatch),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return e, sched
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.App = "school-admin"
	cfg.Environment = "production"
	cfg.Version = "1.4.0"
	return cfg
}

func record(msg string) domain.LogRecord {
	return domain.LogRecord{Level: "info", Message: msg, Category: "app"}
}

// ============================================================================
// Capture Tests
// ============================================================================

func TestCaptureException(t *testing.T) {
	tr := &mockTransport{}
	e, _ := newTestEmitter(t, enabledConfig(), tr)
	e.SetTag("tenant", "north-high")
	e.SetContext("user", map[string]any{"id": "u-1"})

	id := e.CaptureException(domain.NewRenderError("TypeError", "bad"), CaptureOptions{
		Tags:        map[string]string{"component": "Roster"},
		Context:     map[string]any{"component": "Roster"},
		Fingerprint: []string{"TypeError", "bad", "Roster"},
		Level:       LevelError,
	})
	require.NotEmpty(t, id)

	events := tr.Events()
	require.Len(t, events, 1)
	ev := events[0]
	require.Equal(t, id, ev.ID)
	require.Equal(t, KindException, ev.Kind)
	require.Equal(t, "TypeError", ev.ErrorName)
	require.Equal(t, "bad", ev.Message)
	require.Equal(t, "north-high", ev.Tags["tenant"])
	require.Equal(t, "Roster", ev.Tags["component"])
	require.Equal(t, "u-1", ev.Contexts["user"]["id"])
	require.Equal(t, "Roster", ev.Contexts["boundary"]["component"])
	require.Equal(t, "school-admin", ev.App)
	require.Equal(t, "1.4.0", ev.Release)

	stats := e.Stats()
	require.Equal(t, 1, stats.ErrorCount)
	require.False(t, stats.LastErrorTime.IsZero())
}

func TestCaptureException_DisabledStillReturnsID(t *testing.T) {
	tr := &mockTransport{}
	var buf bytes.Buffer
	e := NewEmitter(DefaultConfig(), tr,
		WithDispatcher(syncDispatch),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	id := e.CaptureException(errors.New("boom"), CaptureOptions{})
	require.NotEmpty(t, id)
	require.Empty(t, tr.Events())
	require.Contains(t, buf.String(), id)
	require.Equal(t, 1, e.Stats().ErrorCount)
}

func TestCaptureException_TransportFailureSwallowed(t *testing.T) {
	tr := &mockTransport{failAll: true}
	e, _ := newTestEmitter(t, enabledConfig(), tr)

	require.NotPanics(t, func() {
		id := e.CaptureException(errors.New("boom"), CaptureOptions{})
		require.NotEmpty(t, id)
	})
}

func TestCaptureException_NilError(t *testing.T) {
	tr := &mockTransport{}
	e, _ := newTestEmitter(t, enabledConfig(), tr)

	require.NotEmpty(t, e.CaptureException(nil, CaptureOptions{}))
	require.Equal(t, "nil error", tr.Events()[0].Message)
}

func TestCaptureException_Throttled(t *testing.T) {
	tr := &mockTransport{}
	cfg := enabledConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 2
	e, _ := newTestEmitter(t, cfg, tr)

	for i := 0; i < 5; i++ {
		require.NotEmpty(t, e.CaptureException(fmt.Errorf("e%d", i), CaptureOptions{}))
	}
	require.Len(t, tr.Events(), 2)
	require.Equal(t, 3, e.Stats().Throttled)
	require.Equal(t, 5, e.Stats().ErrorCount)
}

func TestCaptureMessage(t *testing.T) {
	tr := &mockTransport{}
	e, _ := newTestEmitter(t, enabledConfig(), tr)

	id := e.CaptureMessage("Roster recovered from error", MessageOptions{
		Tags:  map[string]string{"recovery": "manual"},
		Extra: map[string]any{"retryCount": 1},
	})

	events := tr.Events()
	require.Len(t, events, 1)
	require.Equal(t, id, events[0].ID)
	require.Equal(t, KindMessage, events[0].Kind)
	require.Equal(t, LevelInfo, events[0].Level)
	require.Equal(t, 1, events[0].Extra["retryCount"])
	require.Zero(t, e.Stats().ErrorCount)
}

func TestSetContext_NilRemoves(t *testing.T) {
	tr := &mockTransport{}
	e, _ := newTestEmitter(t, enabledConfig(), tr)

	e.SetContext("user", map[string]any{"id": "u-1"})
	e.SetContext("user", nil)
	e.CaptureMessage("hello", MessageOptions{})

	require.Nil(t, tr.Events()[0].Contexts)
}

func TestReportDialogURL(t *testing.T) {
	cfg := enabledConfig()
	e, _ := newTestEmitter(t, cfg, nil)
	require.Empty(t, e.ReportDialogURL("abc"))

	cfg.DashboardURL = "https://errors.school.test/app"
	e, _ = newTestEmitter(t, cfg, nil)
	require.Equal(t, "https://errors.school.test/app/feedback?eventId=abc", e.ReportDialogURL("abc"))
	require.Empty(t, e.ReportDialogURL(""))
}

func TestLevelFor(t *testing.T) {
	require.Equal(t, LevelFatal, LevelFor(domain.SeverityCritical))
	require.Equal(t, LevelError, LevelFor(domain.SeverityHigh))
	require.Equal(t, LevelError, LevelFor(domain.SeverityMedium))
	require.Equal(t, LevelWarning, LevelFor(domain.SeverityLow))
}

// ============================================================================
// Batch Tests
// ============================================================================

func TestLog_FlushesAtBatchSize(t *testing.T) {
	tr := &mockTransport{}
	e, sched := newTestEmitter(t, enabledConfig(), tr)

	for i := 0; i < 9; i++ {
		e.Log(record(fmt.Sprintf("r%d", i)))
	}
	require.Empty(t, tr.Batches())
	require.Equal(t, 1, sched.Pending())

	e.Log(record("r9"))
	batches := tr.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 10)
	require.Equal(t, "r0", batches[0][0].Message)
	require.Equal(t, "school-admin", batches[0][0].App)
	require.Equal(t, "production", batches[0][0].Environment)
	require.False(t, batches[0][0].Timestamp.IsZero())
	require.Zero(t, sched.Pending())
	require.Equal(t, 10, e.Stats().Shipped)
}

func TestLog_FlushesOnInterval(t *testing.T) {
	tr := &mockTransport{}
	e, sched := newTestEmitter(t, enabledConfig(), tr)

	e.Log(record("a"))
	sched.Advance(2 * time.Second)
	e.Log(record("b"))
	sched.Advance(2999 * time.Millisecond)
	require.Empty(t, tr.Batches())

	sched.Advance(time.Millisecond)
	batches := tr.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
}

func TestLog_DisabledIsNoop(t *testing.T) {
	tr := &mockTransport{}
	e, sched := newTestEmitter(t, DefaultConfig(), tr)

	for i := 0; i < 20; i++ {
		e.Log(record("x"))
	}
	require.Empty(t, tr.Batches())
	require.Zero(t, sched.Pending())
	require.Zero(t, e.Stats().Queued)
}

func TestFlush_RequeuesOnceThenDrops(t *testing.T) {
	tr := &mockTransport{failLogs: 2}
	e, sched := newTestEmitter(t, enabledConfig(), tr)

	e.Log(record("a"))
	e.Log(record("b"))

	require.Error(t, e.Flush(context.Background()))
	require.Equal(t, 2, e.Stats().Queued)
	require.Equal(t, 1, sched.Pending())

	e.Log(record("c"))
	require.Error(t, e.Flush(context.Background()))

	stats := e.Stats()
	require.Equal(t, 2, stats.Dropped)
	require.Equal(t, 1, stats.Queued)
	require.Equal(t, 2, stats.FlushFailures)

	require.NoError(t, e.Flush(context.Background()))
	batches := tr.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, "c", batches[0][0].Message)
}

func TestFlush_RequeuedBatchGoesFirst(t *testing.T) {
	tr := &mockTransport{failLogs: 1}
	e, _ := newTestEmitter(t, enabledConfig(), tr)

	e.Log(record("a"))
	require.Error(t, e.Flush(context.Background()))
	e.Log(record("b"))
	require.NoError(t, e.Flush(context.Background()))

	batch := tr.Batches()[0]
	require.Equal(t, "a", batch[0].Message)
	require.Equal(t, "b", batch[1].Message)
}

func TestLog_QueueCapDropsOldest(t *testing.T) {
	tr := &mockTransport{failAll: true}
	cfg := enabledConfig()
	cfg.BatchSize = 100
	cfg.MaxQueue = 3
	e, _ := newTestEmitter(t, cfg, tr)

	for i := 0; i < 5; i++ {
		e.Log(record(fmt.Sprintf("r%d", i)))
	}
	stats := e.Stats()
	require.Equal(t, 3, stats.Queued)
	require.Equal(t, 2, stats.Dropped)

	tr.mu.Lock()
	tr.failAll = false
	tr.mu.Unlock()
	require.NoError(t, e.Flush(context.Background()))
	batch := tr.Batches()[0]
	require.Equal(t, "r2", batch[0].Message)
	require.Equal(t, "r4", batch[2].Message)
}

func TestClose_FlushesAndStops(t *testing.T) {
	tr := &mockTransport{}
	e, sched := newTestEmitter(t, enabledConfig(), tr)

	e.Log(record("a"))
	require.NoError(t, e.Close(context.Background()))
	require.Len(t, tr.Batches(), 1)
	require.Zero(t, sched.Pending())

	e.Log(record("late"))
	require.Zero(t, e.Stats().Queued)
	require.NoError(t, e.Close(context.Background()))
}

func TestClose_DropsLaterCaptures(t *testing.T) {
	tr := &mockTransport{}
	dispatched := 0
	e := NewEmitter(enabledConfig(), tr,
		WithScheduler(timer.NewManual()),
		WithDispatcher(func(fn func()) { dispatched++; fn() }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	require.NotEmpty(t, e.CaptureException(errors.New("before close"), CaptureOptions{}))
	require.NoError(t, e.Close(context.Background()))
	require.Equal(t, 1, dispatched)

	require.NotEmpty(t, e.CaptureException(errors.New("after close"), CaptureOptions{}))
	require.NotEmpty(t, e.CaptureMessage("recovered", MessageOptions{}))
	require.Equal(t, 1, dispatched)

	events := tr.Events()
	require.Len(t, events, 1)
	require.Equal(t, "before close", events[0].Message)
	e.Wait()
}

func TestEmitter_ConcurrentLog(t *testing.T) {
	tr := &mockTransport{}
	cfg := enabledConfig()
	e := NewEmitter(cfg, tr, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				e.Log(record(fmt.Sprintf("g%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, e.Close(context.Background()))

	total := 0
	for _, b := range tr.Batches() {
		total += len(b)
	}
	require.Equal(t, 200, total)
}
