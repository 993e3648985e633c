package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/reviewer"
	"github.com/pithecene-io/warden/types"
	"github.com/pithecene-io/warden/worker"
)

// fakeWorker serves a single pre-filled subscription.
type fakeWorker struct {
	sub       *worker.ChannelSubscription
	createErr error
	subErr    error

	mu   sync.Mutex
	task string
}

func newFakeWorker(events ...types.Event) *fakeWorker {
	sub := worker.NewChannelSubscription(64)
	for _, ev := range events {
		sub.Send(ev)
	}
	return &fakeWorker{sub: sub}
}

func (w *fakeWorker) CreateSession(_ context.Context, task string) (string, error) {
	if w.createErr != nil {
		return "", w.createErr
	}
	w.mu.Lock()
	w.task = task
	w.mu.Unlock()
	return "ses_test", nil
}

func (w *fakeWorker) Subscribe(_ context.Context, _ string) (worker.Subscription, error) {
	if w.subErr != nil {
		return nil, w.subErr
	}
	return w.sub, nil
}

func (w *fakeWorker) SendMessage(context.Context, string, string) error { return nil }

// scriptedReviewer returns outcomes in order, repeating the last one.
type scriptedReviewer struct {
	mu       sync.Mutex
	outcomes []reviewer.Outcome
	contexts []types.ReviewContext
}

func decide(d types.Decision) reviewer.Outcome {
	return reviewer.Outcome{Decision: d, Attempts: 1}
}

func newScriptedReviewer(outcomes ...reviewer.Outcome) *scriptedReviewer {
	return &scriptedReviewer{outcomes: outcomes}
}

func (s *scriptedReviewer) ReviewWithRetry(_ context.Context, rc types.ReviewContext) reviewer.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = append(s.contexts, rc)
	if len(s.outcomes) == 0 {
		return decide(types.ContinueDecision("ok"))
	}
	out := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return out
}

func (s *scriptedReviewer) seen() []types.ReviewContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ReviewContext(nil), s.contexts...)
}

func testConfig(w worker.Worker, rv Reviewer) *RunConfig {
	return &RunConfig{
		RunID:             "run-test",
		Task:              "add a --verbose flag",
		MaxIterations:     3,
		InactivityTimeout: time.Second,
		PollInterval:      5 * time.Millisecond,
		IterationDelay:    time.Millisecond,
		EmptySampleDelay:  time.Millisecond,
		Worker:            w,
		Reviewer:          rv,
		Collector:         metrics.NewCollector("fake", "judge", "", "run-test"),
		Logger:            log.NewNop(),
	}
}

func execute(t *testing.T, cfg *RunConfig) *RunResult {
	t.Helper()
	orch, err := NewRunOrchestrator(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return result
}

func TestExecute_MaxIterationsAfterOneContinue(t *testing.T) {
	w := newFakeWorker(
		types.TextPartEvent{Text: "working on it"},
		types.MessageCompletedEvent{MessageID: "msg_1"},
	)
	rv := newScriptedReviewer(decide(types.ContinueDecision("progressing")))
	ch := make(chan Notification, 100)
	cfg := testConfig(w, rv)
	cfg.MaxIterations = 1
	cfg.Observer = NewChannelObserver(ch)

	result := execute(t, cfg)
	close(ch)

	if result.Outcome.Status != types.OutcomeMaxIterations {
		t.Fatalf("outcome = %q, want %q", result.Outcome.Status, types.OutcomeMaxIterations)
	}
	if len(result.Iterations) != 1 {
		t.Fatalf("iterations = %d, want 1", len(result.Iterations))
	}
	rec := result.Iterations[0]
	if rec.Number != 1 || rec.SampleSize != 1 || rec.Decision.Action != types.ActionContinue {
		t.Errorf("record = %+v", rec)
	}
	if result.SessionID != "ses_test" {
		t.Errorf("SessionID = %q", result.SessionID)
	}
	if w.task != cfg.Task {
		t.Errorf("worker task = %q, want %q", w.task, cfg.Task)
	}
	if got := len(rv.seen()); got != 1 {
		t.Errorf("reviews = %d, want 1", got)
	}
	if len(result.Activity) != 1 || !strings.Contains(result.Activity[0], "Iter 1/1: ✓ Continue - progressing (1 lines, 0 retries)") {
		t.Errorf("activity = %q", result.Activity)
	}

	var summary bool
	for n := range ch {
		if n.Kind == NotificationStatus && n.Text == "Iteration 1 - Continuing: progressing" {
			summary = true
		}
	}
	if !summary {
		t.Error("missing status summary after continue decision")
	}
}

func TestExecute_AbortEndsRun(t *testing.T) {
	w := newFakeWorker(
		types.TextPartEvent{Text: "step one"},
		types.MessageCompletedEvent{},
		types.TextPartEvent{Text: "step two"},
		types.SessionCompletedEvent{},
	)
	rv := newScriptedReviewer(
		decide(types.ContinueDecision("editing files")),
		decide(types.AbortDecision("going in circles")),
	)

	result := execute(t, testConfig(w, rv))

	if result.Outcome.Status != types.OutcomeAborted {
		t.Fatalf("outcome = %q, want aborted", result.Outcome.Status)
	}
	if result.Outcome.Message != "going in circles" {
		t.Errorf("message = %q", result.Outcome.Message)
	}
	if len(result.Iterations) != 2 {
		t.Fatalf("iterations = %d, want 2", len(result.Iterations))
	}

	seen := rv.seen()
	// Each review sees only the events up to its trigger.
	if seen[0].CurrentSample != "step one" {
		t.Errorf("first sample = %q, want %q", seen[0].CurrentSample, "step one")
	}
	if seen[1].CurrentSample != "step two" {
		t.Errorf("second sample = %q, want %q", seen[1].CurrentSample, "step two")
	}
	if seen[0].Iteration != 1 || seen[1].Iteration != 2 {
		t.Errorf("iterations = %d, %d", seen[0].Iteration, seen[1].Iteration)
	}
	if len(seen[0].PreviousSummaries) != 0 {
		t.Errorf("first review summaries = %v", seen[0].PreviousSummaries)
	}
	if len(seen[1].PreviousSummaries) != 1 ||
		seen[1].PreviousSummaries[0] != "Iteration 1 (1 lines): Continue - editing files" {
		t.Errorf("second review summaries = %v", seen[1].PreviousSummaries)
	}
	if seen[1].TaskDescription != "add a --verbose flag" {
		t.Errorf("task = %q", seen[1].TaskDescription)
	}
}

func TestExecute_EmptySampleReusesSlot(t *testing.T) {
	w := newFakeWorker(
		types.ThinkingEvent{Text: "ignored"},
		types.MessageCompletedEvent{},
		types.TextPartEvent{Text: "late output"},
		types.MessageCompletedEvent{},
	)
	rv := newScriptedReviewer()
	cfg := testConfig(w, rv)
	cfg.MaxIterations = 1

	result := execute(t, cfg)

	if result.Outcome.Status != types.OutcomeMaxIterations {
		t.Fatalf("outcome = %q", result.Outcome.Status)
	}
	if len(result.Iterations) != 1 || result.Iterations[0].Number != 1 {
		t.Fatalf("iterations = %+v, want one record numbered 1", result.Iterations)
	}
	seen := rv.seen()
	if len(seen) != 1 || seen[0].Iteration != 1 || seen[0].CurrentSample != "late output" {
		t.Errorf("reviews = %+v", seen)
	}

	snap := cfg.Collector.Snapshot()
	if snap.EmptySamples != 1 {
		t.Errorf("EmptySamples = %d, want 1", snap.EmptySamples)
	}
	if snap.IterationsStarted != 1 {
		t.Errorf("IterationsStarted = %d, want 1", snap.IterationsStarted)
	}
	if snap.EventsIgnored != 3 || snap.EventsCaptured != 1 {
		t.Errorf("events ignored=%d captured=%d, want 3/1", snap.EventsIgnored, snap.EventsCaptured)
	}
}

func TestExecute_InactivityTriggersReview(t *testing.T) {
	w := newFakeWorker(types.TextPartEvent{Text: "then silence"})
	rv := newScriptedReviewer()
	cfg := testConfig(w, rv)
	cfg.MaxIterations = 1
	cfg.InactivityTimeout = 30 * time.Millisecond

	result := execute(t, cfg)

	if result.Outcome.Status != types.OutcomeMaxIterations {
		t.Fatalf("outcome = %q", result.Outcome.Status)
	}
	if got := cfg.Collector.Snapshot().StreamTriggers["inactivity"]; got != 1 {
		t.Errorf("inactivity triggers = %d, want 1", got)
	}
	if seen := rv.seen(); len(seen) != 1 || seen[0].CurrentSample != "then silence" {
		t.Errorf("reviews = %+v", seen)
	}
}

func TestExecute_ClosedStreamDrains(t *testing.T) {
	w := newFakeWorker(
		types.TextPartEvent{Text: "line a\nline b"},
		types.ToolCallEvent{Name: "bash", Params: map[string]any{"command": "go test"}},
	)
	w.sub.Finish(nil)
	rv := newScriptedReviewer()
	cfg := testConfig(w, rv)
	cfg.MaxIterations = 5
	cfg.StopWhenDrained = true

	result := execute(t, cfg)

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", result.Outcome.Status)
	}
	if len(result.Iterations) != 1 || result.Iterations[0].SampleSize != 3 {
		t.Fatalf("iterations = %+v", result.Iterations)
	}
	want := "line a\nline b\n[Tool: bash({\"command\":\"go test\"})]"
	if got := rv.seen()[0].CurrentSample; got != want {
		t.Errorf("sample = %q, want %q", got, want)
	}
	if got := cfg.Collector.Snapshot().StreamTriggers["closed"]; got != 1 {
		t.Errorf("closed triggers = %d, want 1", got)
	}
	if result.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", result.EventCount)
	}
}

func TestExecute_DrainedLiveStreamWarnsOnce(t *testing.T) {
	w := newFakeWorker()
	w.sub.Finish(nil)
	cfg := testConfig(w, newScriptedReviewer())
	var out bytes.Buffer
	cfg.Logger = log.NewLogger("run-test").WithOutput(&out)

	orch, err := NewRunOrchestrator(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if _, err := orch.Execute(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if got := cfg.Collector.Snapshot().EmptySamples; got < 2 {
		t.Fatalf("empty samples = %d, want several retries", got)
	}
	if got := strings.Count(out.String(), "worker stream drained"); got != 1 {
		t.Errorf("drain warnings = %d, want 1:\n%s", got, out.String())
	}
	if strings.Contains(out.String(), "no output captured") {
		t.Errorf("retries after drain should log below info:\n%s", out.String())
	}
}

func TestExecute_TransportErrorProceedsToReview(t *testing.T) {
	w := newFakeWorker(types.ErrorEvent{Message: "rate limited"})
	w.sub.Finish(errors.New("connection reset by peer"))
	rv := newScriptedReviewer()
	cfg := testConfig(w, rv)
	cfg.StopWhenDrained = true

	result := execute(t, cfg)

	if result.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("outcome = %q", result.Outcome.Status)
	}
	if seen := rv.seen(); len(seen) != 1 || seen[0].CurrentSample != "[Error: rate limited]" {
		t.Errorf("reviews = %+v", seen)
	}
	if got := cfg.Collector.Snapshot().StreamTriggers["transport_error"]; got != 1 {
		t.Errorf("transport_error triggers = %d, want 1", got)
	}
}

func TestExecute_FallbackRecordedWithRetries(t *testing.T) {
	w := newFakeWorker(types.TextPartEvent{Text: "x"}, types.MessageCompletedEvent{})
	rv := newScriptedReviewer(reviewer.Outcome{
		Decision: types.ContinueDecision(reviewer.FallbackReason(3)),
		Attempts: 3,
		Retries:  2,
		Fallback: true,
	})
	cfg := testConfig(w, rv)
	cfg.MaxIterations = 1

	result := execute(t, cfg)

	rec := result.Iterations[0]
	if rec.Decision.Action != types.ActionContinue {
		t.Errorf("fallback action = %q, want continue", rec.Decision.Action)
	}
	if rec.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", rec.RetryCount)
	}
	if result.TotalRetries != 2 {
		t.Errorf("TotalRetries = %d, want 2", result.TotalRetries)
	}

	snap := cfg.Collector.Snapshot()
	if snap.ReviewFallbacks != 1 || snap.ReviewFailures != 3 || snap.ReviewAttempts != 3 {
		t.Errorf("review metrics = fallbacks %d failures %d attempts %d",
			snap.ReviewFallbacks, snap.ReviewFailures, snap.ReviewAttempts)
	}
}

func TestExecute_ContextCanceled(t *testing.T) {
	w := newFakeWorker()
	cfg := testConfig(w, newScriptedReviewer())
	cfg.InactivityTimeout = time.Hour

	orch, err := NewRunOrchestrator(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	result, err := orch.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestExecute_ObserverNotifications(t *testing.T) {
	w := newFakeWorker(
		types.TextPartEvent{Text: "hello"},
		types.ToolResultEvent{Output: "not forwarded"},
		types.MessageCompletedEvent{},
	)
	ch := make(chan Notification, 100)
	cfg := testConfig(w, newScriptedReviewer(decide(types.AbortDecision("done"))))
	cfg.Observer = NewChannelObserver(ch)

	execute(t, cfg)
	close(ch)

	var got []Notification
	for n := range ch {
		got = append(got, n)
	}

	wantKinds := []NotificationKind{
		NotificationStatus,
		NotificationStatus,
		NotificationWorkerOutput,
		NotificationDecision,
		NotificationStatus,
	}
	if len(got) != len(wantKinds) {
		t.Fatalf("notifications = %+v, want %d", got, len(wantKinds))
	}
	for i, kind := range wantKinds {
		if got[i].Kind != kind {
			t.Errorf("notification %d kind = %q, want %q", i, got[i].Kind, kind)
		}
	}
	if got[1].Text != "Iteration 1/3" {
		t.Errorf("status text = %q", got[1].Text)
	}
	if got[2].Text != "hello" {
		t.Errorf("worker output = %q", got[2].Text)
	}
	if got[3].Record == nil || got[3].Record.Decision.Reason != "done" {
		t.Errorf("decision record = %+v", got[3].Record)
	}
	if !strings.HasPrefix(got[4].Text, "Finished: aborted") {
		t.Errorf("final status = %q", got[4].Text)
	}
}

func TestExecute_ObserverNeverBlocksOrCrashes(t *testing.T) {
	tests := []struct {
		name string
		ch   func() chan Notification
	}{
		{"full channel", func() chan Notification { return make(chan Notification) }},
		{"closed channel", func() chan Notification {
			ch := make(chan Notification, 1)
			close(ch)
			return ch
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWorker(types.TextPartEvent{Text: "x"}, types.MessageCompletedEvent{})
			cfg := testConfig(w, newScriptedReviewer())
			cfg.MaxIterations = 1
			cfg.Observer = NewChannelObserver(tt.ch())

			result := execute(t, cfg)

			if result.Outcome.Status != types.OutcomeMaxIterations {
				t.Errorf("outcome = %q", result.Outcome.Status)
			}
			if got := cfg.Collector.Snapshot().NotificationsDropped; got == 0 {
				t.Error("NotificationsDropped = 0, want > 0")
			}
		})
	}
}

func TestNewRunOrchestrator_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		field  string
	}{
		{"empty task", func(c *RunConfig) { c.Task = "  " }, "task"},
		{"zero iterations", func(c *RunConfig) { c.MaxIterations = 0 }, "max_iterations"},
		{"zero timeout", func(c *RunConfig) { c.InactivityTimeout = 0 }, "inactivity_timeout"},
		{"negative buffer", func(c *RunConfig) { c.BufferLines = -1 }, "buffer_lines"},
		{"no worker", func(c *RunConfig) { c.Worker = nil }, "worker"},
		{"no reviewer", func(c *RunConfig) { c.Reviewer = nil }, "reviewer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(newFakeWorker(), newScriptedReviewer())
			tt.mutate(cfg)

			_, err := NewRunOrchestrator(cfg)
			if !IsConfigError(err) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) && cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestRunConfig_Defaults(t *testing.T) {
	cfg := &RunConfig{
		Task:              "t",
		MaxIterations:     1,
		InactivityTimeout: time.Second,
		Worker:            newFakeWorker(),
		Reviewer:          newScriptedReviewer(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.BufferLines != 100 {
		t.Errorf("BufferLines = %d, want 100", cfg.BufferLines)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.EmptySampleDelay != DefaultEmptySampleDelay {
		t.Errorf("EmptySampleDelay = %v", cfg.EmptySampleDelay)
	}
	if cfg.SummaryWindow != DefaultSummaryWindow {
		t.Errorf("SummaryWindow = %d", cfg.SummaryWindow)
	}
}

func TestExecute_SetupErrors(t *testing.T) {
	boom := errors.New("server not healthy")

	tests := []struct {
		name  string
		setup func(*fakeWorker)
		stage SetupStage
	}{
		{"create session", func(w *fakeWorker) { w.createErr = boom }, SetupStageCreateSession},
		{"subscribe", func(w *fakeWorker) { w.subErr = boom }, SetupStageSubscribe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWorker()
			tt.setup(w)
			orch, err := NewRunOrchestrator(testConfig(w, newScriptedReviewer()))
			if err != nil {
				t.Fatalf("new orchestrator: %v", err)
			}

			_, err = orch.Execute(t.Context())
			var setupErr *SetupError
			if !errors.As(err, &setupErr) {
				t.Fatalf("err = %v, want SetupError", err)
			}
			if setupErr.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", setupErr.Stage, tt.stage)
			}
			if !errors.Is(err, boom) {
				t.Error("SetupError does not wrap cause")
			}
			if !IsSetupError(err) {
				t.Error("IsSetupError = false")
			}
		})
	}
}
