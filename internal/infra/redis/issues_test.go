package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/telemetry"
)

func TestIssueRepo_Keys(t *testing.T) {
	r := &IssueRepo{namespace: "school-admin"}

	if got := r.indexKey(); got != "issues:school-admin" {
		t.Errorf("Expected issues:school-admin, got %s", got)
	}
	if got := r.issueKey("abc"); got != "issue:school-admin:abc" {
		t.Errorf("Expected issue:school-admin:abc, got %s", got)
	}
}

func TestIssueRepo_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	repo := NewIssueRepo(client, fmt.Sprintf("test-%d", time.Now().UnixNano()), time.Minute)

	ev := &telemetry.Event{ID: "e1", ErrorName: "TypeError", Message: "bad", Level: telemetry.LevelError, Timestamp: time.Now()}
	if _, err := repo.Record(ctx, "k1", ev); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	ev2 := *ev
	ev2.ID = "e2"
	issue, err := repo.Record(ctx, "k1", &ev2)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if issue.Count != 2 || issue.LastEventID != "e2" {
		t.Errorf("Unexpected issue: %+v", issue)
	}

	top, err := repo.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 1 || top[0].Key != "k1" {
		t.Errorf("Unexpected top: %+v", top)
	}

	if err := repo.Resolve(ctx, "k1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := repo.Resolve(ctx, "k1"); !errors.Is(err, storage.ErrIssueNotFound) {
		t.Errorf("Expected ErrIssueNotFound, got %v", err)
	}
}
