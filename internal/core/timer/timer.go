// Package timer provides cancellable delayed callbacks.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a scheduled callback.
type Handle interface {
	// Cancel stops the callback. It reports whether the callback was still pending.
	Cancel() bool
}

// Scheduler runs fn once after delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
}

// Real schedules on the runtime timer. Callbacks run on their own goroutine.
type Real struct{}

func (Real) Schedule(delay time.Duration, fn func()) Handle {
	return realHandle{t: time.AfterFunc(delay, fn)}
}

type realHandle struct {
	t *time.Timer
}

func (h realHandle) Cancel() bool {
	return h.t.Stop()
}

// Manual is a Scheduler driven by Advance. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTask
}

type manualTask struct {
	m   *Manual
	at  time.Duration
	seq uint64
	fn  func()
}

// NewManual returns a Manual scheduler at offset zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(delay time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	m.seq++
	task := &manualTask{m: m, at: m.now + delay, seq: m.seq, fn: fn}
	m.pending = append(m.pending, task)
	return task
}

// Advance moves the clock forward by d and runs every callback that became due.
// Callbacks scheduled by those callbacks also run if they fall within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		task := m.nextDueLocked(target)
		if task == nil {
			break
		}
		m.now = task.at
		m.mu.Unlock()
		task.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Elapsed returns how far the clock has advanced.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks that have not run or been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// NextDelay returns the time until the earliest pending callback.
func (m *Manual) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0, false
	}
	m.sortLocked()
	return m.pending[0].at - m.now, true
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTask {
	if len(m.pending) == 0 {
		return nil
	}
	m.sortLocked()
	task := m.pending[0]
	if task.at > target {
		return nil
	}
	m.pending = m.pending[1:]
	return task
}

func (m *Manual) sortLocked() {
	sort.Slice(m.pending, func(i, j int) bool {
		if m.pending[i].at == m.pending[j].at {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].at < m.pending[j].at
	})
}

func (t *manualTask) Cancel() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}
