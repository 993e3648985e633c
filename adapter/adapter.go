// Package adapter publishes run-finished notifications to downstream systems.
//
// Publishing is best-effort: a failed notification is logged and never
// changes the run outcome or exit code.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeRunFinished is the event_type of every published event.
const EventTypeRunFinished = "run_finished"

// RunFinishedEvent is the payload published when a supervised run ends.
type RunFinishedEvent struct {
	ContractVersion   string `json:"contract_version"`
	EventType         string `json:"event_type"` // always "run_finished"
	RunID             string `json:"run_id"`
	SessionID         string `json:"session_id"`
	Task              string `json:"task"`
	Outcome           string `json:"outcome"` // aborted, max_iterations, completed
	Message           string `json:"message"`
	ExitCode          int    `json:"exit_code"`
	Iterations        int    `json:"iterations"`
	TotalLinesSampled int    `json:"total_lines_sampled"`
	TotalRetries      int    `json:"total_retries"`
	StoragePath       string `json:"storage_path,omitempty"`
	Timestamp         string `json:"timestamp"` // RFC 3339
	DurationMs        int64  `json:"duration_ms"`
}

// Adapter publishes run-finished events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunFinishedEvent) error

	// Close releases adapter resources.
	Close() error
}

// DefaultBackoff is the wait before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry stops immediately.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Retry runs op up to 1+retries times, waiting backoff, 2×backoff, ... between
// attempts. It stops early on success, on a Permanent error, or when ctx ends.
func Retry(ctx context.Context, retries int, backoff time.Duration, op func(context.Context) error) error {
	attempts := 1 + max(retries, 0)
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		if i > 0 {
			timer := time.NewTimer(time.Duration(1<<uint(i-1)) * backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.err)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
