package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/types"
)

func TestMonitorState_WorkerOutputIsBounded(t *testing.T) {
	s := newMonitorState(5)
	for i := range MaxOutputLines + 20 {
		s = s.apply(runtime.Notification{Kind: runtime.NotificationWorkerOutput, Iteration: 1, Text: fmt.Sprintf("line %d", i)})
	}
	if len(s.output) != MaxOutputLines {
		t.Fatalf("output len = %d, want %d", len(s.output), MaxOutputLines)
	}
	if s.output[0] != "line 20" {
		t.Errorf("oldest line = %q, want %q", s.output[0], "line 20")
	}
	if s.iteration != 1 {
		t.Errorf("iteration = %d, want 1", s.iteration)
	}
}

func TestMonitorState_MultiLineOutputIsSplit(t *testing.T) {
	s := newMonitorState(5).apply(runtime.Notification{Kind: runtime.NotificationWorkerOutput, Text: "a\nb\nc\n"})
	if got := strings.Join(s.output, ","); got != "a,b,c" {
		t.Errorf("output = %q, want a,b,c", got)
	}
}

func TestMonitorState_Decisions(t *testing.T) {
	s := newMonitorState(3)
	rec1 := types.IterationRecord{Number: 1, Timestamp: time.Now(), SampleSize: 4, Decision: types.ContinueDecision("progressing")}
	rec2 := types.IterationRecord{Number: 2, Timestamp: time.Now(), SampleSize: 2, Decision: types.AbortDecision("stuck")}

	s = s.apply(runtime.Notification{Kind: runtime.NotificationDecision, Iteration: 1, Record: &rec1})
	s = s.apply(runtime.Notification{Kind: runtime.NotificationDecision, Iteration: 2, Record: &rec2})
	s = s.apply(runtime.Notification{Kind: runtime.NotificationDecision, Iteration: 2})

	if s.continues != 1 || s.aborts != 1 {
		t.Errorf("continues=%d aborts=%d, want 1/1", s.continues, s.aborts)
	}
	if len(s.activity) != 2 {
		t.Fatalf("activity len = %d, want 2", len(s.activity))
	}
	if !strings.Contains(s.activity[1].text, "Abort - stuck") || s.activity[1].action != types.ActionAbort {
		t.Errorf("activity[1] = %+v", s.activity[1])
	}
	if s.status != "Abort: stuck" {
		t.Errorf("status = %q", s.status)
	}
}

func TestMonitorState_StatusAndFinish(t *testing.T) {
	s := newMonitorState(3)
	if s.status != "Initializing..." {
		t.Errorf("initial status = %q", s.status)
	}
	s = s.apply(runtime.Notification{Kind: runtime.NotificationStatus, Text: "Iteration 1/3"})
	if s.status != "Iteration 1/3" {
		t.Errorf("status = %q", s.status)
	}

	done := s.finish(FinishedMsg{Outcome: "max_iterations", Message: "Reached maximum iterations (3)"})
	if !done.finished || done.resultOutcome != "max_iterations" {
		t.Errorf("finish = %+v", done)
	}

	failed := s.finish(FinishedMsg{Err: errors.New("boom")})
	if !strings.Contains(failed.result, "boom") {
		t.Errorf("failed result = %q", failed.result)
	}
}

func TestMonitorModel_QuitInterruptsRunningRun(t *testing.T) {
	interrupted := 0
	m := NewMonitorModel(MonitorOptions{Interrupt: func() { interrupted++ }})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if interrupted != 1 {
		t.Errorf("interrupt calls = %d, want 1", interrupted)
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}

	// second quit must not interrupt again
	next.(MonitorModel).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if interrupted != 1 {
		t.Errorf("interrupt calls = %d after second quit, want 1", interrupted)
	}
}

func TestMonitorModel_QuitAfterFinishDoesNotInterrupt(t *testing.T) {
	interrupted := false
	m := NewMonitorModel(MonitorOptions{Interrupt: func() { interrupted = true }, Linger: -1})

	next, cmd := m.Update(FinishedMsg{Outcome: "aborted", Message: "stuck"})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("negative linger should quit immediately")
	}
	next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if interrupted {
		t.Error("quit after finish must not interrupt")
	}
}

func TestMonitorModel_NotificationsFlowIntoView(t *testing.T) {
	ch := make(chan runtime.Notification, 2)
	ch <- runtime.Notification{Kind: runtime.NotificationWorkerOutput, Iteration: 1, Text: "compiling package"}
	close(ch)

	var model tea.Model = NewMonitorModel(MonitorOptions{RunID: "0123456789", Task: "build it", MaxIterations: 4, Notifications: ch})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})

	msg := waitForNotification(ch)()
	model, cmd := model.Update(msg)
	if cmd == nil {
		t.Fatal("expected follow-up wait command")
	}
	if _, ok := cmd().(channelClosedMsg); !ok {
		t.Error("expected channelClosedMsg after close")
	}

	view := model.View()
	for _, want := range []string{"compiling package", "iteration 1/4", "01234567", "build it"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorModel_NotReadyView(t *testing.T) {
	m := NewMonitorModel(MonitorOptions{})
	if !strings.Contains(m.View(), "Starting warden") {
		t.Errorf("unexpected view before sizing: %q", m.View())
	}
}

func TestMonitorModel_FinishedLingers(t *testing.T) {
	var model tea.Model = NewMonitorModel(MonitorOptions{Linger: time.Millisecond})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	model, cmd := model.Update(FinishedMsg{Outcome: "max_iterations", Message: "done"})
	if cmd == nil {
		t.Fatal("expected linger tick")
	}
	if !strings.Contains(model.View(), "Run finished: max_iterations - done") {
		t.Errorf("final view missing result:\n%s", model.View())
	}
	if _, ok := cmd().(lingerDoneMsg); !ok {
		t.Fatal("expected lingerDoneMsg from tick")
	}
	_, cmd = model.Update(lingerDoneMsg{})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit after linger")
	}
}
