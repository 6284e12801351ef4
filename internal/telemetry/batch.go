package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
)

// ErrFlushInProgress is returned by Flush when another flush is sending.
var ErrFlushInProgress = errors.New("flush already in progress")

// Log queues a record for shipping. The batch is sent when it reaches
// BatchSize or FlushInterval after the first queued record, whichever is first.
func (e *Emitter) Log(rec domain.LogRecord) {
	if !e.Enabled() {
		return
	}
	rec = e.stamp(rec)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, queued{rec: rec})
	e.trimLocked()
	full := len(e.queue) >= e.cfg.BatchSize
	if full {
		e.stopTimerLocked()
	} else {
		e.armTimerLocked()
	}
	metrics.TelemetryQueueLength.Set(float64(len(e.queue)))
	e.mu.Unlock()

	if full {
		e.background(func() { _ = e.Flush(context.Background()) })
	}
}

// Flush sends queued records in one call. On failure the batch goes back to
// the front of the queue once; records that already failed a flush are dropped.
func (e *Emitter) Flush(ctx context.Context) error {
	if e.transport == nil {
		return nil
	}

	e.mu.Lock()
	if e.flushing {
		e.mu.Unlock()
		return ErrFlushInProgress
	}
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return nil
	}
	batch := e.queue
	e.queue = nil
	e.flushing = true
	e.stopTimerLocked()
	e.mu.Unlock()

	records := make([]domain.LogRecord, len(batch))
	for i, q := range batch {
		records[i] = q.rec
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	start := time.Now()
	err := e.transport.SendLogs(sendCtx, records)
	cancel()
	metrics.TelemetryFlushLatency.Observe(time.Since(start).Seconds())

	e.mu.Lock()
	e.flushing = false
	if err != nil {
		e.stats.FlushFailures++
		retry := make([]queued, 0, len(batch)+len(e.queue))
		dropped := 0
		for _, q := range batch {
			if q.attempts > 0 {
				dropped++
				continue
			}
			q.attempts++
			retry = append(retry, q)
		}
		e.queue = append(retry, e.queue...)
		e.stats.Dropped += dropped
		metrics.TelemetryLogsTotal.WithLabelValues("failed").Add(float64(len(batch)))
		metrics.TelemetryLogsTotal.WithLabelValues("dropped").Add(float64(dropped))
		e.trimLocked()
	} else {
		e.stats.Shipped += len(batch)
		metrics.TelemetryLogsTotal.WithLabelValues("shipped").Add(float64(len(batch)))
	}
	again := err == nil && !e.closed && len(e.queue) >= e.cfg.BatchSize
	if len(e.queue) > 0 && !e.closed && !again {
		e.armTimerLocked()
	}
	metrics.TelemetryQueueLength.Set(float64(len(e.queue)))
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("failed to ship log batch", "records", len(batch), "error", err)
	}
	if again {
		e.background(func() { _ = e.Flush(context.Background()) })
	}
	return err
}

func (e *Emitter) stamp(rec domain.LogRecord) domain.LogRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.now()
	}
	if rec.App == "" {
		rec.App = e.cfg.App
	}
	if rec.Environment == "" {
		rec.Environment = e.cfg.Environment
	}
	if rec.Version == "" {
		rec.Version = e.cfg.Version
	}
	return rec
}

// trimLocked drops the oldest records beyond MaxQueue.
func (e *Emitter) trimLocked() {
	over := len(e.queue) - e.cfg.MaxQueue
	if over <= 0 {
		return
	}
	e.queue = append([]queued(nil), e.queue[over:]...)
	e.stats.Dropped += over
	metrics.TelemetryLogsTotal.WithLabelValues("dropped").Add(float64(over))
}

func (e *Emitter) armTimerLocked() {
	if e.flushTimer != nil {
		return
	}
	e.timerGen++
	gen := e.timerGen
	e.flushTimer = e.scheduler.Schedule(e.cfg.FlushInterval, func() { e.onFlushTimer(gen) })
}

func (e *Emitter) stopTimerLocked() {
	if e.flushTimer != nil {
		e.flushTimer.Cancel()
		e.flushTimer = nil
	}
}

func (e *Emitter) onFlushTimer(gen uint64) {
	e.mu.Lock()
	if gen != e.timerGen || e.flushTimer == nil {
		e.mu.Unlock()
		return
	}
	e.flushTimer = nil
	e.mu.Unlock()
	e.background(func() { _ = e.Flush(context.Background()) })
}
