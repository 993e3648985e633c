// Package lode exports the iteration ledger and run summaries to a Lode
// dataset and reads them back.
//
// Records are JSONL, partitioned with a Hive layout of day/run_id/record_kind.
package lode

import (
	"encoding/json"
	"time"

	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "warden"

// RecordKind discriminator values.
const (
	RecordKindIteration  = "iteration"
	RecordKindRunSummary = "run_summary"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "run_id", "record_kind"}

// DeriveDay computes the partition day from run start time (YYYY-MM-DD, UTC).
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// RunSummary is the stored summary of one finished run.
type RunSummary struct {
	RunID             string            `json:"run_id"`
	SessionID         string            `json:"session_id"`
	Task              string            `json:"task"`
	Outcome           string            `json:"outcome"`
	Message           string            `json:"message"`
	ExitCode          int               `json:"exit_code"`
	Iterations        int               `json:"iterations"`
	TotalLinesSampled int               `json:"total_lines_sampled"`
	TotalRetries      int               `json:"total_retries"`
	DurationMs        int64             `json:"duration_ms"`
	StartedAt         time.Time         `json:"started_at"`
	Metrics           *metrics.Snapshot `json:"metrics,omitempty"`
}

// toIterationRecordMap converts a ledger entry to its storage form.
func toIterationRecordMap(rec types.IterationRecord, cfg Config) map[string]any {
	return map[string]any{
		"record_kind": RecordKindIteration,
		"run_id":      cfg.RunID,
		"day":         cfg.Day,
		"number":      rec.Number,
		"timestamp":   rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"sample_size": rec.SampleSize,
		"action":      string(rec.Decision.Action),
		"reason":      rec.Decision.Reason,
		"retry_count": rec.RetryCount,
	}
}

// toRunSummaryMap converts a summary to its storage form. The metrics
// snapshot is stored as a nested object.
func toRunSummaryMap(s RunSummary, cfg Config) (map[string]any, error) {
	record := map[string]any{
		"record_kind":         RecordKindRunSummary,
		"run_id":              cfg.RunID,
		"day":                 cfg.Day,
		"session_id":          s.SessionID,
		"task":                s.Task,
		"outcome":             s.Outcome,
		"message":             s.Message,
		"exit_code":           s.ExitCode,
		"iterations":          s.Iterations,
		"total_lines_sampled": s.TotalLinesSampled,
		"total_retries":       s.TotalRetries,
		"duration_ms":         s.DurationMs,
		"started_at":          s.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.Metrics != nil {
		data, err := json.Marshal(s.Metrics)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		record["metrics"] = m
	}
	return record, nil
}

// fromIterationRecordMap decodes a stored iteration record.
func fromIterationRecordMap(m map[string]any) types.IterationRecord {
	ts, _ := time.Parse(time.RFC3339Nano, toString(m["timestamp"]))
	return types.IterationRecord{
		Number:     int(toInt64(m["number"])),
		Timestamp:  ts,
		SampleSize: int(toInt64(m["sample_size"])),
		Decision: types.Decision{
			Action: types.Action(toString(m["action"])),
			Reason: toString(m["reason"]),
		},
		RetryCount: int(toInt64(m["retry_count"])),
	}
}

// fromRunSummaryMap decodes a stored run summary.
func fromRunSummaryMap(m map[string]any) RunSummary {
	started, _ := time.Parse(time.RFC3339Nano, toString(m["started_at"]))
	s := RunSummary{
		RunID:             toString(m["run_id"]),
		SessionID:         toString(m["session_id"]),
		Task:              toString(m["task"]),
		Outcome:           toString(m["outcome"]),
		Message:           toString(m["message"]),
		ExitCode:          int(toInt64(m["exit_code"])),
		Iterations:        int(toInt64(m["iterations"])),
		TotalLinesSampled: int(toInt64(m["total_lines_sampled"])),
		TotalRetries:      int(toInt64(m["total_retries"])),
		DurationMs:        toInt64(m["duration_ms"]),
		StartedAt:         started,
	}
	if raw, ok := m["metrics"].(map[string]any); ok {
		if data, err := json.Marshal(raw); err == nil {
			var snap metrics.Snapshot
			if json.Unmarshal(data, &snap) == nil {
				s.Metrics = &snap
			}
		}
	}
	return s
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
