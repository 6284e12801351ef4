package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/telemetry"
)

// DefaultIssueTTL is how long an issue is kept after its last occurrence.
const DefaultIssueTTL = 7 * 24 * time.Hour

// IssueRepo implements IssueRepository using Redis. Counts live in a sorted
// set; the latest issue snapshot is a JSON blob with a TTL.
type IssueRepo struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

var _ storage.IssueRepository = (*IssueRepo)(nil)

// NewIssueRepo creates a new Redis-backed issue repository.
func NewIssueRepo(client *Client, namespace string, ttl time.Duration) *IssueRepo {
	if namespace == "" {
		namespace = "default"
	}
	if ttl <= 0 {
		ttl = DefaultIssueTTL
	}
	return &IssueRepo{
		rdb:       client.rdb,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Key helpers
func (r *IssueRepo) indexKey() string {
	return fmt.Sprintf("issues:%s", r.namespace)
}

func (r *IssueRepo) issueKey(key string) string {
	return fmt.Sprintf("issue:%s:%s", r.namespace, key)
}

// Record increments the issue's count and stores the latest occurrence.
func (r *IssueRepo) Record(ctx context.Context, key string, ev *telemetry.Event) (*domain.Issue, error) {
	count, err := r.rdb.ZIncrBy(ctx, r.indexKey(), 1, key).Result()
	if err != nil {
		return nil, fmt.Errorf("zincrby failed: %w", err)
	}

	issue, err := r.Get(ctx, key)
	if errors.Is(err, storage.ErrIssueNotFound) {
		issue = storage.IssueFromEvent(key, ev)
	} else if err != nil {
		return nil, err
	}
	storage.Touch(issue, ev, int64(count))

	data, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issue: %w", err)
	}
	if err := r.rdb.Set(ctx, r.issueKey(key), data, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to set issue: %w", err)
	}
	return issue, nil
}

// Get retrieves one issue.
func (r *IssueRepo) Get(ctx context.Context, key string) (*domain.Issue, error) {
	data, err := r.rdb.Get(ctx, r.issueKey(key)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	var issue domain.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issue: %w", err)
	}
	return &issue, nil
}

// Top returns the issues with the highest counts.
func (r *IssueRepo) Top(ctx context.Context, limit int) ([]*domain.Issue, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	results, err := r.rdb.ZRevRangeWithScores(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	issues := make([]*domain.Issue, 0, len(results))
	for _, z := range results {
		key, ok := z.Member.(string)
		if !ok {
			continue
		}
		issue, err := r.Get(ctx, key)
		if errors.Is(err, storage.ErrIssueNotFound) {
			// Snapshot expired but key still indexed, remove it
			r.rdb.ZRem(ctx, r.indexKey(), key)
			continue
		}
		if err != nil {
			return nil, err
		}
		issue.Count = int64(z.Score)
		issues = append(issues, issue)
	}
	return issues, nil
}

// Resolve removes an issue and its snapshot.
func (r *IssueRepo) Resolve(ctx context.Context, key string) error {
	removed, err := r.rdb.ZRem(ctx, r.indexKey(), key).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from index: %w", err)
	}
	if err := r.rdb.Del(ctx, r.issueKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	if removed == 0 {
		return storage.ErrIssueNotFound
	}
	return nil
}
