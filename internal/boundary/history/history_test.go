package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
)

func event(msg string) domain.ErrorEvent {
	return domain.ErrorEvent{
		Message:        msg,
		Classification: domain.Classification{Fingerprint: []string{"Error", msg}},
	}
}

func messages(evs []domain.ErrorEvent) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Message
	}
	return out
}

func TestPush_Bounded(t *testing.T) {
	h := New()
	for i := 1; i <= 7; i++ {
		h = h.Push(event(fmt.Sprintf("e%d", i)))
	}

	require.Equal(t, 5, h.Len())
	require.Equal(t, []string{"e3", "e4", "e5", "e6", "e7"}, messages(h.Events()))
}

func TestPush_Immutable(t *testing.T) {
	h1 := New().Push(event("a")).Push(event("b"))
	h2 := h1.Push(event("c"))

	require.Equal(t, []string{"a", "b"}, messages(h1.Events()))
	require.Equal(t, []string{"a", "b", "c"}, messages(h2.Events()))

	full := New()
	for i := 0; i < DefaultLimit; i++ {
		full = full.Push(event(fmt.Sprintf("f%d", i)))
	}
	before := messages(full.Events())
	_ = full.Push(event("x"))
	require.Equal(t, before, messages(full.Events()))
}

func TestEvents_ReturnsCopy(t *testing.T) {
	h := New().Push(event("a"))
	evs := h.Events()
	evs[0].Message = "changed"

	require.Equal(t, "a", h.Events()[0].Message)
}

func TestZeroValueUsesDefaultLimit(t *testing.T) {
	var h History
	for i := 0; i < 6; i++ {
		h = h.Push(event(fmt.Sprintf("e%d", i)))
	}
	require.Equal(t, DefaultLimit, h.Len())
}

func TestRecentAndLast(t *testing.T) {
	_, ok := New().Last()
	require.False(t, ok)

	h := New().Push(event("a")).Push(event("b")).Push(event("c")).Push(event("d"))

	last, ok := h.Last()
	require.True(t, ok)
	require.Equal(t, "d", last.Message)
	require.Equal(t, []string{"d", "c", "b"}, messages(h.Recent(3)))
	require.Equal(t, []string{"d", "c", "b", "a"}, messages(h.Recent(10)))
}

func TestRepeats(t *testing.T) {
	h := WithLimit(3)
	same := event("boom")
	key := same.Classification.Key()

	h = h.Push(same).Push(event("other"))
	require.Equal(t, 1, h.Repeats(key))
	require.False(t, h.Saturated(key))

	h = h.Push(same).Push(same).Push(same)
	require.Equal(t, 3, h.Repeats(key))
	require.True(t, h.Saturated(key))
}

func TestRecent_NonPositive(t *testing.T) {
	h := New().Push(event("a")).Push(event("b"))

	require.NotPanics(t, func() { h.Recent(-1) })
	require.Empty(t, h.Recent(-1))
	require.Empty(t, h.Recent(0))
	require.Empty(t, New().Recent(-3))
}
