package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID             string              `json:"run_id"`
	SessionID         string              `json:"session_id"`
	Task              string              `json:"task"`
	Outcome           types.OutcomeStatus `json:"outcome"`
	Message           string              `json:"message"`
	ExitCode          int                 `json:"exit_code"`
	DurationMs        int64               `json:"duration_ms"`
	EventCount        int64               `json:"event_count"`
	IterationCount    int                 `json:"iteration_count"`
	TotalLinesSampled int                 `json:"total_lines_sampled"`
	TotalRetries      int                 `json:"total_retries"`

	Iterations []types.IterationRecord `json:"iterations"`
	Metrics    *metrics.Snapshot       `json:"metrics"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, exitCode int) *RunReport {
	iterations := result.Iterations
	if iterations == nil {
		iterations = []types.IterationRecord{}
	}
	return &RunReport{
		RunID:             result.RunID,
		SessionID:         result.SessionID,
		Task:              result.Task,
		Outcome:           result.Outcome.Status,
		Message:           result.Outcome.Message,
		ExitCode:          exitCode,
		DurationMs:        result.Duration.Milliseconds(),
		EventCount:        result.EventCount,
		IterationCount:    len(result.Iterations),
		TotalLinesSampled: result.TotalLinesSampled,
		TotalRetries:      result.TotalRetries,
		Iterations:        iterations,
		Metrics:           &snap,
	}
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
