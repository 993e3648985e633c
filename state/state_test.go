package state

import (
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/warden/types"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRunState_Empty(t *testing.T) {
	s := New()

	if got := s.PreviousSummaries(5); len(got) != 0 {
		t.Errorf("PreviousSummaries(5) = %v, want empty", got)
	}
	if s.CurrentIteration() != 0 {
		t.Errorf("CurrentIteration() = %d, want 0", s.CurrentIteration())
	}
	if s.HasOpenIteration() {
		t.Error("HasOpenIteration() = true on empty state")
	}
	if _, ok := s.LastIteration(); ok {
		t.Error("LastIteration() ok = true on empty state")
	}
	if got := s.StatusSummary(); got != "Initializing..." {
		t.Errorf("StatusSummary() = %q", got)
	}
	if got := s.ActivityLog(); len(got) != 1 || got[0] != "No iterations yet" {
		t.Errorf("ActivityLog() = %v", got)
	}
}

func TestRunState_SingleIteration(t *testing.T) {
	s := New()
	s.StartIteration()
	if !s.HasOpenIteration() {
		t.Fatal("HasOpenIteration() = false after StartIteration")
	}

	rec := s.RecordDecision(10, types.ContinueDecision("ok"), 0)
	if rec.Number != 1 {
		t.Errorf("record number = %d, want 1", rec.Number)
	}
	if s.HasOpenIteration() {
		t.Error("HasOpenIteration() = true after RecordDecision")
	}

	summaries := s.PreviousSummaries(5)
	if len(summaries) != 1 {
		t.Fatalf("PreviousSummaries(5) len = %d, want 1", len(summaries))
	}
	for _, part := range []string{"Iteration 1", "10 lines", "Continue", "ok"} {
		if !strings.Contains(summaries[0], part) {
			t.Errorf("summary %q missing %q", summaries[0], part)
		}
	}
}

func TestRunState_PreviousSummariesWindow(t *testing.T) {
	s := New()
	for i := 1; i <= 7; i++ {
		s.StartIteration()
		s.RecordDecision(i, types.ContinueDecision("step"), 0)
	}

	got := s.PreviousSummaries(5)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if !strings.HasPrefix(got[0], "Iteration 3 ") {
		t.Errorf("first summary = %q, want iteration 3", got[0])
	}
	if !strings.HasPrefix(got[4], "Iteration 7 ") {
		t.Errorf("last summary = %q, want iteration 7", got[4])
	}

	if got := s.PreviousSummaries(0); got != nil {
		t.Errorf("PreviousSummaries(0) = %v, want nil", got)
	}
	if got := s.PreviousSummaries(100); len(got) != 7 {
		t.Errorf("PreviousSummaries(100) len = %d, want 7", len(got))
	}
}

func TestRunState_IsMaxIterations(t *testing.T) {
	s := New()
	if s.IsMaxIterations(1) {
		t.Error("IsMaxIterations(1) = true at counter 0")
	}
	s.StartIteration()
	if !s.IsMaxIterations(1) {
		t.Error("IsMaxIterations(1) = false at counter 1")
	}
	if s.IsMaxIterations(2) {
		t.Error("IsMaxIterations(2) = true at counter 1")
	}
}

func TestRunState_Aggregates(t *testing.T) {
	s := New()
	s.StartIteration()
	s.RecordDecision(10, types.ContinueDecision("a"), 2)
	s.StartIteration()
	s.RecordDecision(25, types.AbortDecision("b"), 1)

	if got := s.TotalLinesSampled(); got != 35 {
		t.Errorf("TotalLinesSampled() = %d, want 35", got)
	}
	if got := s.TotalRetries(); got != 3 {
		t.Errorf("TotalRetries() = %d, want 3", got)
	}
	if got := s.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	// Aggregates are read-only.
	if got := s.TotalLinesSampled(); got != 35 {
		t.Errorf("second TotalLinesSampled() = %d", got)
	}
}

func TestRunState_IterationsIsCopy(t *testing.T) {
	s := New()
	s.StartIteration()
	s.RecordDecision(3, types.ContinueDecision("ok"), 0)

	iters := s.Iterations()
	iters[0].SampleSize = 999

	if got := s.Iterations()[0].SampleSize; got != 3 {
		t.Errorf("ledger mutated through copy: SampleSize = %d", got)
	}
}

func TestRunState_ActivityAndStatus(t *testing.T) {
	start := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)
	s := newWithClock(fixedClock(start))

	s.StartIteration()
	s.RecordDecision(12, types.ContinueDecision("progressing"), 0)
	s.StartIteration()
	s.RecordDecision(8, types.AbortDecision("looping"), 2)

	log := s.ActivityLog()
	if len(log) != 2 {
		t.Fatalf("ActivityLog() len = %d, want 2", len(log))
	}
	want0 := "[15:04:02] Iter 1/2: ✓ Continue - progressing (12 lines, 0 retries)"
	if log[0] != want0 {
		t.Errorf("ActivityLog()[0] = %q, want %q", log[0], want0)
	}
	want1 := "[15:04:03] Iter 2/2: ✗ Abort - looping (8 lines, 2 retries)"
	if log[1] != want1 {
		t.Errorf("ActivityLog()[1] = %q, want %q", log[1], want1)
	}

	if got := s.StatusSummary(); got != "Iteration 2 - Abort: looping" {
		t.Errorf("StatusSummary() = %q", got)
	}
	if got := s.Runtime(); got <= 0 {
		t.Errorf("Runtime() = %v, want > 0", got)
	}
}
