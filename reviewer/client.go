// Package reviewer consults an external judge about the worker's progress.
//
// The judge is any OpenAI-compatible chat-completion endpoint. Review makes a
// single attempt; ReviewWithRetry retries with exponential backoff and falls
// back to a synthetic continue decision when every attempt fails. An
// unreachable judge never aborts a run.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/types"
)

const (
	// DefaultBaseURL is the default judge endpoint (a local Ollama server).
	DefaultBaseURL = "http://localhost:11434/v1"
	// DefaultModel is the default judge model.
	DefaultModel = "ollama/llama3.1"
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxAttempts is the default number of review attempts.
	DefaultMaxAttempts = 3
	// DefaultBackoffUnit scales the exponential backoff between attempts.
	DefaultBackoffUnit = time.Second
)

// maxErrorBody caps how much of a non-2xx body is kept in StatusError.
const maxErrorBody = 1024

// Config configures the reviewer client.
type Config struct {
	// BaseURL is the chat-completion API root; "/chat/completions" is appended.
	BaseURL string
	// Model is the judge model name.
	Model string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// MaxAttempts is the number of review attempts before falling back (default 3).
	MaxAttempts int
	// BackoffUnit is the base delay; attempt n+1 waits 2^n units (default 1s).
	BackoffUnit time.Duration
	// HTTPClient overrides the HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client
	// Logger receives attempt failures and fallbacks. Optional.
	Logger *log.Logger
}

// Client calls the judge endpoint.
type Client struct {
	config   Config
	endpoint string
	client   *http.Client
	logger   *log.Logger
}

// New creates a reviewer client, filling defaults for zero values.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		config:   cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		client:   httpClient,
		logger:   logger,
	}, nil
}

// Model returns the configured judge model.
func (c *Client) Model() string {
	return c.config.Model
}

// MaxAttempts returns the configured attempt budget.
func (c *Client) MaxAttempts() int {
	return c.config.MaxAttempts
}

// Review performs a single review attempt.
// All failures are returned as *UnavailableError.
func (c *Client) Review(ctx context.Context, rc types.ReviewContext) (types.Decision, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildPrompt(rc)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindTransport, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindTransport, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return types.Decision{}, &UnavailableError{
			Kind: ErrorKindStatus,
			Err:  &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(text))},
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindDecode, Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindDecode, Err: errors.New("no choices in response")}
	}

	content := parsed.Choices[0].Message.Content
	c.logger.Debug("reviewer raw response", map[string]any{"content": content})

	decision, err := types.ParseDecision([]byte(content))
	if err != nil {
		return types.Decision{}, &UnavailableError{Kind: ErrorKindDecision, Err: err}
	}
	return decision, nil
}

