// Package history keeps the most recent failures of one boundary.
package history

import "github.com/vietddude/faultline/internal/core/domain"

// DefaultLimit is the number of events a History retains.
const DefaultLimit = 5

// History is an immutable bounded sequence of events, oldest first.
// Push returns a new History and never modifies the receiver.
type History struct {
	events []domain.ErrorEvent
	limit  int
}

// New returns an empty History holding at most DefaultLimit events.
func New() History {
	return History{limit: DefaultLimit}
}

// WithLimit returns an empty History holding at most limit events.
func WithLimit(limit int) History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return History{limit: limit}
}

// Push appends ev, evicting the oldest event when the limit is exceeded.
func (h History) Push(ev domain.ErrorEvent) History {
	limit := h.Limit()
	start := 0
	if len(h.events)+1 > limit {
		start = len(h.events) + 1 - limit
	}
	kept := h.events[start:]

	next := make([]domain.ErrorEvent, 0, len(kept)+1)
	next = append(next, kept...)
	next = append(next, ev)
	return History{events: next, limit: limit}
}

// Limit returns the maximum number of retained events.
func (h History) Limit() int {
	if h.limit <= 0 {
		return DefaultLimit
	}
	return h.limit
}

func (h History) Len() int { return len(h.events) }

// Events returns a copy of the retained events in push order.
func (h History) Events() []domain.ErrorEvent {
	out := make([]domain.ErrorEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Last returns the most recently pushed event.
func (h History) Last() (domain.ErrorEvent, bool) {
	if len(h.events) == 0 {
		return domain.ErrorEvent{}, false
	}
	return h.events[len(h.events)-1], true
}

// Recent returns up to n of the newest events, newest first.
func (h History) Recent(n int) []domain.ErrorEvent {
	if n < 0 {
		n = 0
	}
	if n > len(h.events) {
		n = len(h.events)
	}
	out := make([]domain.ErrorEvent, 0, n)
	for i := len(h.events) - 1; i >= len(h.events)-n; i-- {
		out = append(out, h.events[i])
	}
	return out
}

// Repeats counts retained events whose fingerprint key equals key.
func (h History) Repeats(key string) int {
	n := 0
	for _, ev := range h.events {
		if ev.Classification.Key() == key {
			n++
		}
	}
	return n
}

// Saturated reports whether every retained slot holds the same failure as key.
func (h History) Saturated(key string) bool {
	return len(h.events) == h.Limit() && h.Repeats(key) == len(h.events)
}
