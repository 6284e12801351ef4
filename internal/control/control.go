// Package control wires configuration into running components.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/faultline/internal/collector"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/core/worker"
	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/infra/storage/memory"
	"github.com/vietddude/faultline/internal/infra/storage/postgres"
)

// Collector is the ingest application: HTTP/gRPC server, storage and pruner.
type Collector struct {
	cfg         *config.AppConfig
	server      *collector.Server
	pruner      *worker.Pruner
	stores      collector.Stores
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewCollector creates a Collector with all dependencies initialized.
func NewCollector(ctx context.Context, cfg *config.AppConfig) (*Collector, error) {
	c := &Collector{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	var logRepo storage.LogRepository
	var eventRepo storage.EventRepository
	var issueRepo storage.IssueRepository
	var checks []collector.Check
	store := memory.NewMemoryStorage()

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		c.db = db
		logRepo = postgres.NewLogRepo(db)
		eventRepo = postgres.NewEventRepo(db)
		checks = append(checks, collector.Check{Name: "postgres", Probe: db.Health, Critical: true})
		slog.Info("Using PostgreSQL storage")
	} else {
		logRepo = memory.NewLogRepo(store)
		eventRepo = memory.NewEventRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Issue Grouping
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, grouping issues in memory", "error", err)
		} else {
			c.redisClient = client
			issueRepo = redisclient.NewIssueRepo(client, cfg.Redis.Namespace, cfg.Redis.IssueTTL)
			checks = append(checks, collector.Check{Name: "redis", Probe: client.Health})
		}
	}
	if issueRepo == nil {
		issueRepo = memory.NewIssueRepo(store)
	}

	c.stores = collector.Stores{Logs: logRepo, Events: eventRepo, Issues: issueRepo}

	// 3. Server and Pruner
	c.server = collector.NewServer(collector.Config{
		Port:         cfg.Server.Port,
		GRPCPort:     cfg.Server.GRPCPort,
		Token:        cfg.Collector.Token,
		MaxBodyBytes: cfg.Collector.MaxBodyBytes,
	}, c.stores, collector.NewMonitor(checks...))

	c.pruner = worker.NewPruner(cfg.Collector.Retention, cfg.Collector.PruneSchedule,
		worker.Target{Name: "log_records", Repo: logRepo},
		worker.Target{Name: "telemetry_events", Repo: eventRepo},
	)

	return c, nil
}

// Stores returns the collector's persistence backends.
func (c *Collector) Stores() collector.Stores {
	return c.stores
}

// Server returns the HTTP/gRPC server.
func (c *Collector) Server() *collector.Server {
	return c.server
}

// Run serves until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	// Start DB Metrics Collector
	if c.db != nil {
		c.db.StartMetricsCollector(ctx)
	}

	c.log.Info("Starting collector",
		"port", c.cfg.Server.Port,
		"grpc_port", c.cfg.Server.GRPCPort,
		"retention", c.cfg.Collector.Retention,
	)
	return c.server.Run(ctx, c.pruner.Start)
}

// Close releases storage connections.
func (c *Collector) Close() error {
	c.log.Info("Stopping collector...")

	// Close Redis
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
