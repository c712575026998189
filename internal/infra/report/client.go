package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/core/domain"
)

// Config holds remote telemetry sink settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client ships sanitized log entries to an HTTP collector. It
// satisfies the errlog.Sink interface.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a remote report client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name identifies the sink in logs and metrics.
func (c *Client) Name() string { return "remote" }

// Write POSTs a batch of entries as a JSON array.
func (c *Client) Write(ctx context.Context, entries []*domain.ErrorLogEntry) error {
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}
