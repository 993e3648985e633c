// Package state holds the append-only iteration ledger of a supervised run.
//
// RunState is owned by the control loop. Observers get copies (Iterations,
// LastIteration) or derived values; nothing outside the loop mutates it.
package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/warden/types"
)

// RunState tracks the iteration counter and the decision ledger.
type RunState struct {
	current   int
	records   []types.IterationRecord
	startTime time.Time
	now       func() time.Time
}

// New creates an empty RunState.
func New() *RunState {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *RunState {
	return &RunState{
		startTime: now(),
		now:       now,
	}
}

// StartIteration advances the iteration counter and returns the new value.
// No upper bound is enforced here.
func (s *RunState) StartIteration() int {
	s.current++
	return s.current
}

// CurrentIteration returns the current counter value (0 before the first iteration).
func (s *RunState) CurrentIteration() int {
	return s.current
}

// HasOpenIteration reports whether the current iteration was started but has
// no recorded decision yet.
func (s *RunState) HasOpenIteration() bool {
	return s.current > len(s.records)
}

// RecordDecision appends an immutable record for the current iteration.
func (s *RunState) RecordDecision(sampleSize int, decision types.Decision, retryCount int) types.IterationRecord {
	rec := types.IterationRecord{
		Number:     s.current,
		Timestamp:  s.now(),
		SampleSize: sampleSize,
		Decision:   decision,
		RetryCount: retryCount,
	}
	s.records = append(s.records, rec)
	return rec
}

// PreviousSummaries returns summaries of the last k records, oldest first.
func (s *RunState) PreviousSummaries(k int) []string {
	if k <= 0 || len(s.records) == 0 {
		return nil
	}
	start := max(len(s.records)-k, 0)
	out := make([]string, 0, len(s.records)-start)
	for _, rec := range s.records[start:] {
		out = append(out, rec.Summary())
	}
	return out
}

// IsMaxIterations reports whether the counter has reached limit.
func (s *RunState) IsMaxIterations(limit int) bool {
	return s.current >= limit
}

// Iterations returns a copy of the ledger.
func (s *RunState) Iterations() []types.IterationRecord {
	out := make([]types.IterationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of recorded iterations.
func (s *RunState) Len() int {
	return len(s.records)
}

// LastIteration returns the most recent record, if any.
func (s *RunState) LastIteration() (types.IterationRecord, bool) {
	if len(s.records) == 0 {
		return types.IterationRecord{}, false
	}
	return s.records[len(s.records)-1], true
}

// TotalLinesSampled sums the sample sizes of all records.
func (s *RunState) TotalLinesSampled() int {
	total := 0
	for _, rec := range s.records {
		total += rec.SampleSize
	}
	return total
}

// TotalRetries sums the retry counts of all records.
func (s *RunState) TotalRetries() int {
	total := 0
	for _, rec := range s.records {
		total += rec.RetryCount
	}
	return total
}

// StartTime returns when the run state was created.
func (s *RunState) StartTime() time.Time {
	return s.startTime
}

// Runtime returns the elapsed time since creation.
func (s *RunState) Runtime() time.Duration {
	return s.now().Sub(s.startTime)
}

// ActivityLog renders one line per recorded iteration:
// "[15:04:05] Iter 2/3: ✓ Continue - reason (12 lines, 0 retries)".
func (s *RunState) ActivityLog() []string {
	if len(s.records) == 0 {
		return []string{"No iterations yet"}
	}
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, FormatActivity(rec, s.current))
	}
	return out
}

// FormatActivity renders a single activity log line for rec.
func FormatActivity(rec types.IterationRecord, current int) string {
	mark := "✓"
	if rec.Decision.Action == types.ActionAbort {
		mark = "✗"
	}
	return fmt.Sprintf("[%s] Iter %d/%d: %s %s - %s (%d lines, %d retries)",
		rec.Timestamp.Format("15:04:05"),
		rec.Number, current,
		mark, rec.Decision.Action.Label(), rec.Decision.Reason,
		rec.SampleSize, rec.RetryCount)
}

// StatusSummary describes the latest decision in one line.
func (s *RunState) StatusSummary() string {
	rec, ok := s.LastIteration()
	if !ok {
		return "Initializing..."
	}
	verb := "Continuing"
	if rec.Decision.Action == types.ActionAbort {
		verb = "Abort"
	}
	return strings.TrimSpace(fmt.Sprintf("Iteration %d - %s: %s", rec.Number, verb, rec.Decision.Reason))
}
