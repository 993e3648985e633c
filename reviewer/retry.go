package reviewer

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/warden/types"
)

// Outcome is the result of ReviewWithRetry. It always carries a decision.
type Outcome struct {
	// Decision is the judge's decision, or the synthetic fallback.
	Decision types.Decision
	// Attempts is the number of review attempts made.
	Attempts int
	// Retries is Attempts - 1.
	Retries int
	// Fallback is true when Decision was synthesized after every attempt failed.
	Fallback bool
	// LastErr is the error of the final failed attempt, if any.
	LastErr error
}

// FallbackReason is the reason attached to the synthetic decision.
func FallbackReason(attempts int) string {
	return fmt.Sprintf("Reviewer API unavailable after %d retries, continuing based on last known state", attempts)
}

// ReviewWithRetry calls Review up to MaxAttempts times. Before attempt n+1 it
// waits 2^n backoff units. When every attempt fails, or ctx ends during a
// backoff, it returns a continue decision.
func (c *Client) ReviewWithRetry(ctx context.Context, rc types.ReviewContext) Outcome {
	var lastErr error
	attempts := 0

	for i := range c.config.MaxAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i)) * c.config.BackoffUnit
			if !sleep(ctx, backoff) {
				lastErr = fmt.Errorf("backoff interrupted: %w", ctx.Err())
				break
			}
		}

		attempts++
		decision, err := c.Review(ctx, rc)
		if err == nil {
			if i > 0 {
				c.logger.Info("reviewer succeeded after retries", map[string]any{
					"iteration": rc.Iteration,
					"retries":   i,
				})
			}
			return Outcome{Decision: decision, Attempts: attempts, Retries: attempts - 1}
		}

		lastErr = err
		c.logger.Warn("review attempt failed", map[string]any{
			"iteration": rc.Iteration,
			"attempt":   attempts,
			"error":     err.Error(),
		})
	}

	c.logger.Error("reviewer unavailable, defaulting to continue", map[string]any{
		"iteration": rc.Iteration,
		"attempts":  attempts,
	})
	return Outcome{
		Decision: types.ContinueDecision(FallbackReason(attempts)),
		Attempts: attempts,
		Retries:  max(attempts-1, 0),
		Fallback: true,
		LastErr:  lastErr,
	}
}

// sleep waits for d or until ctx ends. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
