// Package opencode drives an OpenCode server as the supervised worker.
//
// Client speaks the server's HTTP API: it creates sessions, posts prompts and
// subscribes to the /event Server-Sent Events stream, decoding bus events into
// worker events. Server spawns and reaps a local `opencode serve` process.
package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/worker"
)

// DefaultRequestTimeout bounds non-streaming API calls.
const DefaultRequestTimeout = 30 * time.Second

// sessionTitleLimit is how many characters of the task go into the session title.
const sessionTitleLimit = 50

// subscriptionBuffer is the event channel capacity of a subscription.
const subscriptionBuffer = 256

// ClientConfig configures the OpenCode client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. http://127.0.0.1:4096 (required).
	BaseURL string
	// Timeout bounds non-streaming requests (default 30s).
	Timeout time.Duration
	// HTTPClient overrides the transport. Its Timeout must be zero, since the
	// same client carries the event stream.
	HTTPClient *http.Client
	// Logger receives decode problems. Optional.
	Logger *log.Logger
}

// Client is an OpenCode API client. It implements worker.Worker.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	client  *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the server at cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("opencode client requires a base URL")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		baseURL: u,
		timeout: cfg.Timeout,
		client:  httpClient,
		logger:  logger,
	}, nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// SessionTitle returns the title used for a task's session.
func SessionTitle(task string) string {
	runes := []rune(task)
	if len(runes) > sessionTitleLimit {
		runes = runes[:sessionTitleLimit]
	}
	return "Runner task: " + string(runes)
}

// CreateSession creates a session and posts task as its first prompt.
func (c *Client) CreateSession(ctx context.Context, task string) (string, error) {
	var s session
	if err := c.doJSON(ctx, http.MethodPost, "/session", createSessionRequest{Title: SessionTitle(task)}, &s); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if s.ID == "" {
		return "", errors.New("create session: server returned no session id")
	}

	if err := c.SendMessage(ctx, s.ID, task); err != nil {
		return "", fmt.Errorf("send initial prompt: %w", err)
	}
	return s.ID, nil
}

// SendMessage posts text into the session without waiting for the reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) error {
	body := promptRequest{Parts: []textPartInput{{Type: "text", Text: text}}}
	path := "/session/" + url.PathEscape(sessionID) + "/prompt_async"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// Subscribe opens the server event stream and returns the events of sessionID.
// The subscription ends when the server closes the stream, the stream fails,
// ctx is canceled, or Close is called.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (worker.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.endpoint("/event"), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := readStatusError(resp, http.MethodGet, "/event")
		iox.DiscardClose(resp.Body)
		cancel()
		return nil, fmt.Errorf("subscribe: %w", statusErr)
	}

	sub := &subscription{
		ChannelSubscription: worker.NewChannelSubscription(subscriptionBuffer),
		cancel:              cancel,
	}
	go c.pump(streamCtx, resp.Body, sub, NewDecoder(sessionID))
	return sub, nil
}

// subscription ties a channel subscription to its HTTP stream.
type subscription struct {
	*worker.ChannelSubscription
	cancel context.CancelFunc
}

// Close stops the stream.
func (s *subscription) Close() error {
	s.cancel()
	return s.ChannelSubscription.Close()
}

// pump reads SSE payloads, decodes them, and feeds the subscription in order.
func (c *Client) pump(ctx context.Context, body io.ReadCloser, sub *subscription, dec *Decoder) {
	defer iox.DiscardClose(body)

	reader := newSSEReader(body)
	for {
		data, err := reader.Next()
		if err != nil {
			select {
			case <-sub.Done():
				sub.Finish(nil)
			default:
				if errors.Is(err, io.EOF) {
					sub.Finish(nil)
				} else if ctx.Err() != nil {
					sub.Finish(ctx.Err())
				} else {
					sub.Finish(fmt.Errorf("read event stream: %w", err))
				}
			}
			return
		}

		events, err := dec.Decode(data)
		if err != nil {
			c.logger.Debug("skipping undecodable event", map[string]any{"error": err.Error()})
			continue
		}
		for _, ev := range events {
			if !sub.Send(ev) {
				sub.Finish(nil)
				return
			}
		}
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// doJSON performs a bounded request with an optional JSON body and response.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp, method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response, method, path string) *StatusError {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Method: method,
		Path:   path,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(text)),
	}
}

// Verify Client implements the worker interface.
var _ worker.Worker = (*Client)(nil)
