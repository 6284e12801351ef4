// Package httpsink ships telemetry events and log batches to a collector over HTTP.
package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/telemetry"
)

const (
	LogsPath   = "/api/logs"
	EventsPath = "/api/events"

	maxErrorBody = 512
)

// ErrRateLimited is returned when the sink answers 429.
var ErrRateLimited = errors.New("sink rate limited")

// Config holds the sink endpoint.
type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Health is a snapshot of delivery outcomes.
type Health struct {
	Available     bool
	LastSuccessAt time.Time
	LastError     string
	SuccessCount  int
	FailureCount  int
}

// Client implements telemetry.Transport.
type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client

	mu     sync.RWMutex
	health Health
}

var _ telemetry.Transport = (*Client)(nil)

// New creates a client for the collector at cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", base.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		base:  base,
		token: cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: Health{Available: true},
	}, nil
}

// SendLogs posts a batch of log records as a JSON array.
func (c *Client) SendLogs(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	return c.post(ctx, LogsPath, records)
}

// SendEvent posts one captured exception or message.
func (c *Client) SendEvent(ctx context.Context, ev telemetry.Event) error {
	return c.post(ctx, EventsPath, ev)
}

// Health returns the current delivery health.
func (c *Client) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(path).String(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(err)
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		err := fmt.Errorf("%w, retry after: %s", ErrRateLimited, resp.Header.Get("Retry-After"))
		c.recordFailure(err)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		c.recordFailure(err)
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.recordSuccess()
	return nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.Available = true
	c.health.LastSuccessAt = time.Now()
	c.health.SuccessCount++
}

func (c *Client) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.FailureCount++
	c.health.LastError = err.Error()
	if c.health.FailureCount > 3 && time.Since(c.health.LastSuccessAt) > time.Minute {
		c.health.Available = false
	}
}
