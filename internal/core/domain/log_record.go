package domain

import "time"

// LogRecord is the wire shape accepted by the log-shipping endpoint.
type LogRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Category    string         `json:"category"`
	Properties  map[string]any `json:"properties,omitempty"`
	App         string         `json:"app"`
	Environment string         `json:"environment"`
	Version     string         `json:"version"`
}

// Issue is a group of telemetry events sharing a fingerprint.
type Issue struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Level       string    `json:"level"`
	Fingerprint []string  `json:"fingerprint"`
	Count       int64     `json:"count"`
	LastEventID string    `json:"last_event_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}
