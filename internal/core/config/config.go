package config

import (
	"time"

	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	App       AppInfo            `yaml:"app"`
	Server    ServerConfig       `yaml:"server"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
	Boundary  BoundaryConfig     `yaml:"boundary"`
	Collector CollectorConfig    `yaml:"collector"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// AppInfo identifies the reporting application.
type AppInfo struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // development, staging, production
	Version     string `yaml:"version"`
	DevMode     bool   `yaml:"dev_mode"`
}

// ServerConfig holds collector listen settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// TelemetryConfig holds the sink client settings.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	Token         string        `yaml:"token"`
	DashboardURL  string        `yaml:"dashboard_url"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxQueue      int           `yaml:"max_queue"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rate_limit"` // exceptions per second
	Burst         int           `yaml:"burst"`
}

// BoundaryConfig holds retry settings shared by every boundary.
type BoundaryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// CollectorConfig holds ingest settings.
type CollectorConfig struct {
	Token         string        `yaml:"token"`
	Retention     time.Duration `yaml:"retention"` // 0 = keep forever
	PruneSchedule string        `yaml:"prune_schedule"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Production reports whether the app runs in production.
func (c *AppConfig) Production() bool {
	return c.App.Environment == "production"
}
