// Package redis publishes run-finished events as JSON on a Redis pub/sub
// channel. Each event is also kept under <channel>:<run_id> for a while, so
// consumers that were not subscribed when the run ended can still fetch it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/warden/adapter"
)

// Defaults applied by New.
const (
	DefaultChannel = "warden:run_finished"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
	DefaultKeyTTL  = 24 * time.Hour
)

// Config configures the Redis adapter.
type Config struct {
	URL     string // redis://[:password@]host:port[/db], required
	Channel string
	Timeout time.Duration // per attempt
	Retries int
	Backoff time.Duration
	// KeyTTL is how long the event stays readable by key. Negative disables
	// the key; zero means DefaultKeyTTL.
	KeyTTL time.Duration
}

// Adapter publishes run-finished events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New parses the URL and fills in defaults. It does not connect.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.DefaultBackoff
	}
	if cfg.KeyTTL == 0 {
		cfg.KeyTTL = DefaultKeyTTL
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Channel returns the pub/sub channel name.
func (a *Adapter) Channel() string {
	return a.config.Channel
}

// EventKey is the key the event for runID is stored under.
func (a *Adapter) EventKey(runID string) string {
	return a.config.Channel + ":" + runID
}

// Publish stores and publishes event in one pipeline.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(attemptCtx, func(pipe goredis.Pipeliner) error {
			if a.config.KeyTTL > 0 {
				pipe.Set(attemptCtx, a.EventKey(event.RunID), body, a.config.KeyTTL)
			}
			pipe.Publish(attemptCtx, a.config.Channel, body)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
