// Package collector is the self-hosted ingest side of the telemetry sink.
package collector

import (
	"context"
	"sync"
	"time"
)

// SystemStatus represents the overall health state of the collector or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// cacheFor bounds how often dependencies are pinged.
const cacheFor = 10 * time.Second

// Check probes one dependency.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Critical bool // failure makes the collector critical rather than degraded
}

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full collector health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

// Monitor aggregates health status from the collector's dependencies.
type Monitor struct {
	checks     []Check
	now        func() time.Time
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(checks ...Check) *Monitor {
	return &Monitor{checks: checks, now: time.Now}
}

// CheckHealth probes every dependency, reusing a recent report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
		CheckedAt:    now,
	}

	// Worst case wins
	for _, c := range m.checks {
		h := ComponentHealth{Status: StatusHealthy}
		if err := c.Probe(ctx); err != nil {
			h.Error = err.Error()
			h.Status = StatusDegraded
			if c.Critical {
				h.Status = StatusCritical
			}
		}
		report.Components[c.Name] = h

		switch {
		case h.Status == StatusCritical:
			report.SystemStatus = StatusCritical
		case h.Status == StatusDegraded && report.SystemStatus == StatusHealthy:
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}
