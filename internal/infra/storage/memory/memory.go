package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/telemetry"
)

type storedLog struct {
	rec        domain.LogRecord
	receivedAt time.Time
}

type storedEvent struct {
	ev         telemetry.Event
	issueKey   string
	receivedAt time.Time
}

// MemoryStorage backs the collector when no database or redis is configured.
type MemoryStorage struct {
	logs   []storedLog
	events map[string]storedEvent
	issues map[string]*domain.Issue
	now    func() time.Time
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[string]storedEvent),
		issues: make(map[string]*domain.Issue),
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------
// Log Repository
// -----------------------------------------------------------------------------

type LogRepo struct {
	store *MemoryStorage
}

func NewLogRepo(store *MemoryStorage) *LogRepo {
	return &LogRepo{store: store}
}

func (r *LogRepo) SaveBatch(ctx context.Context, records []domain.LogRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := r.store.now()
	for _, rec := range records {
		r.store.logs = append(r.store.logs, storedLog{rec: rec, receivedAt: now})
	}
	return nil
}

func (r *LogRepo) Recent(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if limit <= 0 || limit > len(r.store.logs) {
		limit = len(r.store.logs)
	}
	out := make([]domain.LogRecord, 0, limit)
	for i := len(r.store.logs) - 1; i >= len(r.store.logs)-limit; i-- {
		out = append(out, r.store.logs[i].rec)
	}
	return out, nil
}

func (r *LogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.logs[:0]
	var deleted int64
	for _, l := range r.store.logs {
		if l.receivedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	r.store.logs = kept
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) Save(ctx context.Context, ev *telemetry.Event, issueKey string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.events[ev.ID]; exists {
		return nil
	}
	r.store.events[ev.ID] = storedEvent{ev: *ev, issueKey: issueKey, receivedAt: r.store.now()}
	return nil
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*telemetry.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.events[id]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	ev := e.ev
	return &ev, nil
}

func (r *EventRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for id, e := range r.store.events {
		if e.receivedAt.Before(before) {
			delete(r.store.events, id)
			deleted++
		}
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Issue Repository
// -----------------------------------------------------------------------------

type IssueRepo struct {
	store *MemoryStorage
}

func NewIssueRepo(store *MemoryStorage) *IssueRepo {
	return &IssueRepo{store: store}
}

func (r *IssueRepo) Record(ctx context.Context, key string, ev *telemetry.Event) (*domain.Issue, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	issue, ok := r.store.issues[key]
	if !ok {
		issue = storage.IssueFromEvent(key, ev)
		r.store.issues[key] = issue
	}
	storage.Touch(issue, ev, issue.Count+1)
	cp := *issue
	return &cp, nil
}

func (r *IssueRepo) Get(ctx context.Context, key string) (*domain.Issue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	issue, ok := r.store.issues[key]
	if !ok {
		return nil, storage.ErrIssueNotFound
	}
	cp := *issue
	return &cp, nil
}

func (r *IssueRepo) Top(ctx context.Context, limit int) ([]*domain.Issue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Issue, 0, len(r.store.issues))
	for _, issue := range r.store.issues {
		cp := *issue
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Key < out[j].Key
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *IssueRepo) Resolve(ctx context.Context, key string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.issues[key]; !ok {
		return storage.ErrIssueNotFound
	}
	delete(r.store.issues, key)
	return nil
}

var (
	_ storage.LogRepository   = (*LogRepo)(nil)
	_ storage.EventRepository = (*EventRepo)(nil)
	_ storage.IssueRepository = (*IssueRepo)(nil)
)
