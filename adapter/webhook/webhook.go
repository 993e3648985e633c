// Package webhook publishes run-finished events as JSON HTTP POSTs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pithecene-io/warden/adapter"
	"github.com/pithecene-io/warden/iox"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Config configures the webhook adapter. Only URL is required.
type Config struct {
	URL     string
	Headers map[string]string // set after the built-in headers, so they can override them
	Timeout time.Duration     // per request
	Retries int               // attempts after the first
	Backoff time.Duration     // wait before the first retry, doubling after
}

// Adapter POSTs each event to a single URL.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.DefaultBackoff
	}
	return &Adapter{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Publish sends event as JSON. Network errors, 5xx, 408 and 429 are retried;
// any other 4xx fails at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		err := a.post(ctx, event.RunID, body)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retryable reports whether the receiver may accept the same event later.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

func (a *Adapter) post(ctx context.Context, runID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Warden-Event", adapter.EventTypeRunFinished)
	req.Header.Set("X-Warden-Run-ID", runID)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
