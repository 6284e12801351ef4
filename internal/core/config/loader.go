package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. An empty path yields defaults.
// Environment overrides are applied after the file.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.App.Name == "" {
		cfg.App.Name = "school-admin"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	t := &cfg.Telemetry
	if t.BatchSize <= 0 {
		t.BatchSize = 10
	}
	if t.FlushInterval <= 0 {
		t.FlushInterval = 5 * time.Second
	}
	if t.MaxQueue <= 0 {
		t.MaxQueue = 1000
	}
	if t.Timeout <= 0 {
		t.Timeout = 10 * time.Second
	}
	if t.RateLimit <= 0 {
		t.RateLimit = 10
	}
	if t.Burst <= 0 {
		t.Burst = 20
	}

	b := &cfg.Boundary
	if b.MaxRetries <= 0 {
		b.MaxRetries = 3
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = time.Second
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 30 * time.Second
	}

	c := &cfg.Collector
	if c.Retention == 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "@hourly"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnv applies the variables the deployment sets directly.
func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Environment = v
	}
	if v := os.Getenv("TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TELEMETRY_ENABLED %q: %w", v, err)
		}
		cfg.Telemetry.Enabled = enabled
	} else if cfg.App.Environment == "production" {
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("LOG_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_BATCH_SIZE %q: %w", v, err)
		}
		cfg.Telemetry.BatchSize = n
	}
	if v := os.Getenv("LOG_FLUSH_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_FLUSH_INTERVAL %q: %w", v, err)
		}
		cfg.Telemetry.FlushInterval = d
	}
	return nil
}

// parseInterval accepts a Go duration or a plain millisecond count.
func parseInterval(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
