package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/adapter"
	"github.com/pithecene-io/warden/cli/tui"
	"github.com/pithecene-io/warden/lode"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/state"
	"github.com/pithecene-io/warden/types"
)

const (
	// notificationBuffer bounds the monitor feed; overflow is dropped.
	notificationBuffer = 256
	// finishTimeout bounds export and publish after the loop ends.
	finishTimeout = 60 * time.Second
)

// session is one supervised execution with its post-run outputs.
type session struct {
	runCfg    *runtime.RunConfig
	logger    *log.Logger
	collector *metrics.Collector
	headless  bool
	quiet     bool
	out       io.Writer

	report     string
	storage    storageChoice
	lodeClient lode.Client
	lodeDay    string
	adapter    adapter.Adapter
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// exitForError maps a run error to its exit code.
func exitForError(err error) error {
	switch {
	case runtime.IsConfigError(err):
		return cli.Exit(err.Error(), runtime.ExitCodeConfigError)
	case runtime.IsSetupError(err):
		return cli.Exit(err.Error(), runtime.ExitCodeSetupFailure)
	case errors.Is(err, context.Canceled):
		return cli.Exit("interrupted", runtime.ExitCodeInterrupted)
	default:
		return cli.Exit(fmt.Sprintf("run failed: %v", err), runtime.ExitCodeAborted)
	}
}

// configExit reports an invalid setting with the config error exit code.
func configExit(err error) error {
	return cli.Exit(err.Error(), runtime.ExitCodeConfigError)
}

// execute runs the loop, then exports, reports and publishes.
// The returned error always carries the exit code.
func (s *session) execute(ctx context.Context, cancel context.CancelFunc) error {
	defer s.close()

	var notes chan runtime.Notification
	if s.headless {
		if !s.quiet {
			s.runCfg.Observer = s.printObserver()
		}
	} else {
		notes = make(chan runtime.Notification, notificationBuffer)
		s.runCfg.Observer = runtime.NewChannelObserver(notes)
	}

	orch, err := runtime.NewRunOrchestrator(s.runCfg)
	if err != nil {
		return exitForError(err)
	}

	var result *runtime.RunResult
	if s.headless {
		result, err = orch.Execute(ctx)
	} else {
		result, err = s.executeWithMonitor(ctx, cancel, orch, notes)
	}
	if err != nil {
		return exitForError(err)
	}

	exitCode := runtime.ExitCodeForOutcome(result.Outcome.Status)

	finishCtx, finishCancel := context.WithTimeout(context.Background(), finishTimeout)
	defer finishCancel()
	s.finish(finishCtx, result, exitCode)

	if !s.quiet {
		printRunResult(s.out, result, exitCode)
	}
	return cli.Exit("", exitCode)
}

type executeOutcome struct {
	result *runtime.RunResult
	err    error
}

// executeWithMonitor runs the loop behind the live monitor. Quitting the
// monitor cancels the run. If the monitor cannot start the run still
// completes, just without a view.
func (s *session) executeWithMonitor(ctx context.Context, cancel context.CancelFunc, orch *runtime.RunOrchestrator, notes chan runtime.Notification) (*runtime.RunResult, error) {
	mon := tui.NewMonitor(tui.MonitorOptions{
		RunID:         s.runCfg.RunID,
		Task:          s.runCfg.Task,
		MaxIterations: s.runCfg.MaxIterations,
		Notifications: notes,
		Interrupt:     cancel,
	})

	done := make(chan executeOutcome, 1)
	go func() {
		result, err := orch.Execute(ctx)
		done <- executeOutcome{result: result, err: err}

		msg := tui.FinishedMsg{Err: err}
		if result != nil && result.Outcome != nil {
			msg.Outcome = string(result.Outcome.Status)
			msg.Message = result.Outcome.Message
		}
		mon.Finish(msg)
	}()

	if err := mon.Run(); err != nil {
		s.logger.Warn("monitor stopped", map[string]any{"error": err.Error()})
	}
	r := <-done
	return r.result, r.err
}

// printObserver prints decisions as plain lines in headless mode.
func (s *session) printObserver() runtime.Observer {
	maxIterations := s.runCfg.MaxIterations
	return runtime.ObserverFunc(func(n runtime.Notification) bool {
		if n.Kind == runtime.NotificationDecision && n.Record != nil {
			fmt.Fprintln(s.out, state.FormatActivity(*n.Record, maxIterations))
		}
		return true
	})
}

// finish exports the ledger, writes the report and publishes the
// run-finished event. Failures are logged and never change the exit code.
func (s *session) finish(ctx context.Context, result *runtime.RunResult, exitCode int) {
	var storagePath string
	if s.lodeClient != nil {
		if err := s.export(ctx, result, exitCode); err != nil {
			s.logger.Error("ledger export failed", map[string]any{"error": err.Error()})
			fmt.Fprintf(os.Stderr, "Warning: ledger export failed: %v\n", err)
		} else {
			storagePath = buildStoragePath(s.storage, s.lodeDay, result.RunID)
		}
	}

	if s.report != "" {
		report := runtime.BuildRunReport(result, s.collector.Snapshot(), exitCode)
		if err := runtime.WriteRunReport(report, s.report); err != nil {
			s.logger.Error("report write failed", map[string]any{"error": err.Error()})
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if s.adapter != nil {
		event := buildRunFinishedEvent(result, exitCode, storagePath)
		if err := s.adapter.Publish(ctx, event); err != nil {
			s.logger.Warn("run-finished notification failed", map[string]any{"error": err.Error()})
		} else {
			s.logger.Info("run-finished notification sent", nil)
		}
	}
}

func (s *session) export(ctx context.Context, result *runtime.RunResult, exitCode int) error {
	client := lode.NewInstrumentedClient(s.lodeClient, s.collector)
	if err := client.WriteIterations(ctx, result.Iterations); err != nil {
		return fmt.Errorf("write iterations: %w", err)
	}
	snap := s.collector.Snapshot()
	if err := client.WriteSummary(ctx, newRunSummary(result, exitCode, &snap)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	s.logger.Info("ledger exported", map[string]any{
		"iterations": len(result.Iterations),
		"dataset":    s.storage.dataset,
	})
	return nil
}

func (s *session) close() {
	if s.lodeClient != nil {
		_ = s.lodeClient.Close()
	}
	if s.adapter != nil {
		_ = s.adapter.Close()
	}
}

func newRunSummary(result *runtime.RunResult, exitCode int, snap *metrics.Snapshot) lode.RunSummary {
	summary := lode.RunSummary{
		RunID:             result.RunID,
		SessionID:         result.SessionID,
		Task:              result.Task,
		ExitCode:          exitCode,
		Iterations:        len(result.Iterations),
		TotalLinesSampled: result.TotalLinesSampled,
		TotalRetries:      result.TotalRetries,
		DurationMs:        result.Duration.Milliseconds(),
		StartedAt:         result.StartTime.UTC(),
		Metrics:           snap,
	}
	if result.Outcome != nil {
		summary.Outcome = string(result.Outcome.Status)
		summary.Message = result.Outcome.Message
	}
	return summary
}

func printRunResult(w io.Writer, result *runtime.RunResult, exitCode int) {
	outcome := types.RunOutcome{}
	if result.Outcome != nil {
		outcome = *result.Outcome
	}
	fmt.Fprintf(w, "\nrun_id=%s, outcome=%s, iterations=%d, duration=%s\n",
		result.RunID,
		outcome.Status,
		len(result.Iterations),
		result.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:        %s\n", result.RunID)
	if result.SessionID != "" {
		fmt.Fprintf(w, "Session:       %s\n", result.SessionID)
	}
	fmt.Fprintf(w, "Outcome:       %s\n", outcome.Status)
	fmt.Fprintf(w, "Message:       %s\n", outcome.Message)
	fmt.Fprintf(w, "Exit code:     %d\n", exitCode)
	fmt.Fprintf(w, "Iterations:    %d\n", len(result.Iterations))
	fmt.Fprintf(w, "Lines sampled: %d\n", result.TotalLinesSampled)
	fmt.Fprintf(w, "Retries:       %d\n", result.TotalRetries)
	fmt.Fprintf(w, "Events:        %d\n", result.EventCount)
	fmt.Fprintf(w, "Duration:      %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Activity) > 0 {
		fmt.Fprintf(w, "\n=== Activity ===\n")
		for _, line := range result.Activity {
			fmt.Fprintln(w, line)
		}
	}
}
