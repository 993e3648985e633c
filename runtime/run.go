// Package runtime runs the supervisory control loop.
//
// A run creates a worker session, then alternates between streaming worker
// events into a bounded sample and asking the reviewer whether the worker is
// still making progress. It ends when the reviewer aborts or the iteration
// budget is exhausted.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/reviewer"
	"github.com/pithecene-io/warden/sampler"
	"github.com/pithecene-io/warden/state"
	"github.com/pithecene-io/warden/types"
	"github.com/pithecene-io/warden/worker"
)

// Loop defaults.
const (
	DefaultMaxIterations     = 10
	DefaultInactivityTimeout = 30 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultIterationDelay    = 100 * time.Millisecond
	DefaultEmptySampleDelay  = time.Second
	DefaultSummaryWindow     = 5
)

// Reviewer judges a sample. Implementations must always return a decision;
// unavailability is resolved inside the reviewer.
type Reviewer interface {
	ReviewWithRetry(ctx context.Context, rc types.ReviewContext) reviewer.Outcome
}

var _ Reviewer = (*reviewer.Client)(nil)

// RunConfig configures a single supervised run.
type RunConfig struct {
	// RunID is the run identifier used in logs, reports and exports.
	RunID string
	// Task is the task text given to the worker (required).
	Task string
	// MaxIterations is the iteration budget (>= 1).
	MaxIterations int
	// InactivityTimeout forces a review after this much worker silence (> 0).
	InactivityTimeout time.Duration
	// BufferLines is the sample capacity in lines (default 100).
	BufferLines int
	// PollInterval is the watchdog slice while streaming (default 100ms).
	PollInterval time.Duration
	// IterationDelay is the pause after a continue decision (default 100ms).
	IterationDelay time.Duration
	// EmptySampleDelay is the pause before retrying an empty sample (default 1s).
	EmptySampleDelay time.Duration
	// SummaryWindow is how many previous summaries the reviewer sees (default 5).
	SummaryWindow int
	// StopWhenDrained ends the run as completed once a closed stream leaves
	// nothing to review. Set for finite event sources such as replays.
	StopWhenDrained bool
	// Worker is the supervised worker (required).
	Worker worker.Worker
	// Reviewer judges each sample (required).
	Reviewer Reviewer
	// Observer receives best-effort notifications. Optional.
	Observer Observer
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the run logger. If nil, a stderr logger is created.
	Logger *log.Logger
}

// Validate checks the config and fills defaults for optional fields.
// Returns a *ConfigError for invalid values.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.Task) == "" {
		return &ConfigError{Field: "task", Msg: "must not be empty"}
	}
	if c.MaxIterations < 1 {
		return &ConfigError{Field: "max_iterations", Msg: fmt.Sprintf("must be >= 1, got %d", c.MaxIterations)}
	}
	if c.InactivityTimeout <= 0 {
		return &ConfigError{Field: "inactivity_timeout", Msg: fmt.Sprintf("must be > 0, got %s", c.InactivityTimeout)}
	}
	if c.BufferLines < 0 {
		return &ConfigError{Field: "buffer_lines", Msg: fmt.Sprintf("must be >= 0, got %d", c.BufferLines)}
	}
	if c.Worker == nil {
		return &ConfigError{Field: "worker", Msg: "is required"}
	}
	if c.Reviewer == nil {
		return &ConfigError{Field: "reviewer", Msg: "is required"}
	}

	if c.BufferLines == 0 {
		c.BufferLines = sampler.DefaultCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IterationDelay < 0 {
		c.IterationDelay = 0
	}
	if c.EmptySampleDelay <= 0 {
		c.EmptySampleDelay = DefaultEmptySampleDelay
	}
	if c.SummaryWindow <= 0 {
		c.SummaryWindow = DefaultSummaryWindow
	}
	return nil
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunID is the run identifier.
	RunID string
	// SessionID is the worker session.
	SessionID string
	// Task is the supervised task text.
	Task string
	// Outcome is the terminal outcome.
	Outcome *types.RunOutcome
	// Iterations is the full decision ledger.
	Iterations []types.IterationRecord
	// TotalLinesSampled is the sum of reviewed sample sizes.
	TotalLinesSampled int
	// TotalRetries is the sum of reviewer retries.
	TotalRetries int
	// StartTime is when Execute began.
	StartTime time.Time
	// Duration is the total run duration.
	Duration time.Duration
	// EventCount is the number of worker events received.
	EventCount int64
	// Activity is the rendered activity log, one line per iteration.
	Activity []string
}

// RunOrchestrator runs the control loop for one run.
// The sample buffer and run state are owned exclusively by Execute.
type RunOrchestrator struct {
	config     *RunConfig
	logger     *log.Logger
	startTime  time.Time
	sessionID  string
	eventCount int64
}

// NewRunOrchestrator validates config and creates an orchestrator.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunID)
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute runs the supervised task end-to-end.
//
// Execution flow:
//  1. Create the worker session and subscribe to its events
//  2. Iterate: stream, snapshot, review, record, branch
//  3. Return the terminal outcome and the ledger
//
// Returned errors are setup failures (*SetupError) or context cancellation.
// Reviewer and stream failures never surface here.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	r.config.Collector.IncRunStarted()

	r.logger.Info("starting run", map[string]any{
		"max_iterations":     r.config.MaxIterations,
		"inactivity_timeout": r.config.InactivityTimeout.String(),
		"buffer_lines":       r.config.BufferLines,
	})
	r.notifyStatus(0, "Creating worker session...")

	sessionID, err := r.config.Worker.CreateSession(ctx, r.config.Task)
	if err != nil {
		r.logger.Error("failed to create session", map[string]any{"error": err.Error()})
		return nil, &SetupError{Stage: SetupStageCreateSession, Err: err}
	}
	r.sessionID = sessionID
	r.logger = r.logger.WithSession(sessionID)
	r.logger.Info("created session", nil)

	sub, err := r.config.Worker.Subscribe(ctx, sessionID)
	if err != nil {
		r.logger.Error("failed to subscribe", map[string]any{"error": err.Error()})
		return nil, &SetupError{Stage: SetupStageSubscribe, Err: err}
	}
	defer iox.DiscardClose(sub)

	st := state.New()
	outcome, err := r.loop(ctx, sub, st)
	if err != nil {
		r.logger.Warn("run interrupted", map[string]any{
			"iterations": st.Len(),
			"error":      err.Error(),
		})
		return nil, err
	}

	r.config.Collector.IncRunOutcome(string(outcome.Status))
	r.logger.Info("run finished", map[string]any{
		"outcome":    outcome.Status,
		"message":    outcome.Message,
		"iterations": st.Len(),
		"duration":   time.Since(r.startTime).String(),
	})
	r.notifyStatus(st.CurrentIteration(), fmt.Sprintf("Finished: %s - %s", outcome.Status, outcome.Message))

	return r.buildResult(outcome, st), nil
}

// loop drives iterations until a terminal outcome or cancellation.
func (r *RunOrchestrator) loop(ctx context.Context, sub worker.Subscription, st *state.RunState) (*types.RunOutcome, error) {
	buf := sampler.NewBuffer(r.config.BufferLines)
	drained, drainLogged := false, false

	for {
		// An empty sample leaves the slot open; the next pass reuses it.
		if !st.HasOpenIteration() {
			if st.IsMaxIterations(r.config.MaxIterations) {
				r.logger.Warn("maximum iterations reached", map[string]any{
					"max_iterations": r.config.MaxIterations,
				})
				return &types.RunOutcome{
					Status:  types.OutcomeMaxIterations,
					Message: fmt.Sprintf("maximum iterations (%d) reached", r.config.MaxIterations),
				}, nil
			}
			st.StartIteration()
			r.config.Collector.IncIterationStarted()
			r.logger.Info("starting iteration", map[string]any{
				"iteration":      st.CurrentIteration(),
				"max_iterations": r.config.MaxIterations,
			})
			r.notifyStatus(st.CurrentIteration(), fmt.Sprintf("Iteration %d/%d", st.CurrentIteration(), r.config.MaxIterations))
		}
		iteration := st.CurrentIteration()

		if !drained {
			trigger := r.streamUntilReview(ctx, sub, buf, iteration)
			if trigger == triggerCanceled {
				return nil, fmt.Errorf("run canceled during iteration %d: %w", iteration, ctx.Err())
			}
			r.config.Collector.IncStreamTrigger(string(trigger))
			drained = trigger == triggerClosed || trigger == triggerTransportError
		}

		sample := buf.Sample()
		sampleSize := buf.LineCount()
		if sampleSize == 0 {
			r.config.Collector.IncEmptySample()
			if drained && r.config.StopWhenDrained {
				return &types.RunOutcome{
					Status:  types.OutcomeCompleted,
					Message: "worker event stream drained",
				}, nil
			}
			switch {
			case !drained:
				r.logger.Warn("no output captured, retrying iteration", map[string]any{"iteration": iteration})
			case !drainLogged:
				r.logger.Warn("worker stream drained, waiting for output", map[string]any{"iteration": iteration})
				drainLogged = true
			default:
				r.logger.Debug("no output captured, retrying iteration", map[string]any{"iteration": iteration})
			}
			if !sleepCtx(ctx, r.config.EmptySampleDelay) {
				return nil, fmt.Errorf("run canceled during iteration %d: %w", iteration, ctx.Err())
			}
			continue
		}

		rc := types.ReviewContext{
			TaskDescription:   r.config.Task,
			Iteration:         iteration,
			PreviousSummaries: st.PreviousSummaries(r.config.SummaryWindow),
			CurrentSample:     sample,
		}
		r.logger.Debug("requesting review", map[string]any{
			"iteration":   iteration,
			"sample_size": sampleSize,
		})

		out := r.config.Reviewer.ReviewWithRetry(ctx, rc)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled during review of iteration %d: %w", iteration, err)
		}

		failures := out.Retries
		if out.Fallback {
			failures = out.Attempts
		}
		r.config.Collector.RecordReview(out.Attempts, failures, out.Fallback, string(out.Decision.Action))

		rec := st.RecordDecision(sampleSize, out.Decision, out.Retries)
		r.config.Collector.IncIterationRecorded()
		r.notify(Notification{Kind: NotificationDecision, Iteration: iteration, Record: &rec})

		r.logger.Info("iteration decision", map[string]any{
			"iteration":   iteration,
			"action":      rec.Decision.Action,
			"reason":      rec.Decision.Reason,
			"sample_size": sampleSize,
			"retries":     rec.RetryCount,
			"fallback":    out.Fallback,
		})

		switch out.Decision.Action {
		case types.ActionAbort:
			return &types.RunOutcome{
				Status:  types.OutcomeAborted,
				Message: out.Decision.Reason,
			}, nil
		default:
			buf.Clear()
			r.notifyStatus(iteration, st.StatusSummary())
			if !sleepCtx(ctx, r.config.IterationDelay) {
				return nil, fmt.Errorf("run canceled after iteration %d: %w", iteration, ctx.Err())
			}
		}
	}
}

func (r *RunOrchestrator) notify(n Notification) {
	if r.config.Observer == nil {
		return
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	if !r.config.Observer.Notify(n) {
		r.config.Collector.IncNotificationDropped()
	}
}

func (r *RunOrchestrator) notifyStatus(iteration int, text string) {
	r.notify(Notification{Kind: NotificationStatus, Iteration: iteration, Text: text})
}

// buildResult constructs the final run result.
func (r *RunOrchestrator) buildResult(outcome *types.RunOutcome, st *state.RunState) *RunResult {
	return &RunResult{
		RunID:             r.config.RunID,
		SessionID:         r.sessionID,
		Task:              r.config.Task,
		Outcome:           outcome,
		Iterations:        st.Iterations(),
		TotalLinesSampled: st.TotalLinesSampled(),
		TotalRetries:      st.TotalRetries(),
		StartTime:         r.startTime,
		Duration:          time.Since(r.startTime),
		EventCount:        r.eventCount,
		Activity:          st.ActivityLog(),
	}
}

// sleepCtx waits for d or until ctx ends. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
