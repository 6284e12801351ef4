package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/metrics"
)

// DefaultSchedule runs the pruner once an hour.
const DefaultSchedule = "@hourly"

// Target is one prunable table.
type Target struct {
	Name string
	Repo storage.Prunable
}

// Pruner deletes old data based on retention policy.
type Pruner struct {
	retention time.Duration
	schedule  string
	targets   []Target
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, schedule string, targets ...Target) *Pruner {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Pruner{
		retention: retention,
		schedule:  schedule,
		targets:   targets,
		now:       time.Now,
	}
}

// Start runs the pruner until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	if p.retention <= 0 {
		return nil // Retention disabled
	}

	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			slog.Error("[Pruner] prune failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}

	// Initial prune
	if _, err := p.Prune(ctx); err != nil {
		slog.Error("[Pruner] prune failed", "error", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Prune deletes everything older than the retention window and returns the row count.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)

	var total int64
	var errs []error
	for _, t := range p.targets {
		n, err := t.Repo.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		total += n
		if n > 0 {
			metrics.StoragePrunedTotal.WithLabelValues(t.Name).Add(float64(n))
			slog.Info("[Pruner] pruned rows", "table", t.Name, "count", n, "cutoff", cutoff)
		}
	}
	return total, errors.Join(errs...)
}
