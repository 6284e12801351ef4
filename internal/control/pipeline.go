package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/faultline/internal/boundary"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/infra/httpsink"
	"github.com/vietddude/faultline/internal/logging"
	"github.com/vietddude/faultline/internal/telemetry"
)

// Pipeline is the reporting side: the emitter, category loggers and the
// shared boundary settings.
type Pipeline struct {
	cfg     *config.AppConfig
	Emitter *telemetry.Emitter
	Logs    logging.Set
	sink    *httpsink.Client
}

// NewPipeline builds the emitter from cfg. Without an endpoint the emitter
// only logs to the console.
func NewPipeline(cfg *config.AppConfig, opts ...telemetry.Option) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}

	var transport telemetry.Transport
	if cfg.Telemetry.Endpoint != "" {
		sink, err := httpsink.New(httpsink.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Token:    cfg.Telemetry.Token,
			Timeout:  cfg.Telemetry.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init telemetry sink: %w", err)
		}
		p.sink = sink
		transport = sink
	}

	p.Emitter = telemetry.NewEmitter(telemetry.Config{
		App:           cfg.App.Name,
		Environment:   cfg.App.Environment,
		Version:       cfg.App.Version,
		Enabled:       cfg.Telemetry.Enabled,
		DashboardURL:  cfg.Telemetry.DashboardURL,
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
		MaxQueue:      cfg.Telemetry.MaxQueue,
		Timeout:       cfg.Telemetry.Timeout,
		RateLimit:     cfg.Telemetry.RateLimit,
		Burst:         cfg.Telemetry.Burst,
	}, transport, opts...)
	p.Logs = logging.NewSet(p.Emitter)

	if !p.Emitter.Enabled() {
		slog.Info("Telemetry disabled, captures go to the console only")
	}
	return p, nil
}

// BoundaryOptions returns options carrying the configured retry settings and
// this pipeline as reporter.
func (p *Pipeline) BoundaryOptions(componentName string) boundary.Options {
	return boundary.Options{
		ComponentName: componentName,
		MaxRetries:    p.cfg.Boundary.MaxRetries,
		BaseDelay:     p.cfg.Boundary.BaseDelay,
		MaxDelay:      p.cfg.Boundary.MaxDelay,
		Reporter:      p.Emitter,
		DevMode:       p.cfg.App.DevMode,
	}
}

// SinkHealth reports delivery health, or false when no sink is configured.
func (p *Pipeline) SinkHealth() (httpsink.Health, bool) {
	if p.sink == nil {
		return httpsink.Health{}, false
	}
	return p.sink.Health(), true
}

// Close flushes queued records.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.Emitter.Close(ctx)
}
