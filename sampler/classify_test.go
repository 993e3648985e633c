package sampler

import (
	"strings"
	"testing"

	"github.com/pithecene-io/warden/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		event     types.Event
		wantClass Class
		wantText  string
	}{
		{"text part", types.TextPartEvent{Text: "hello"}, ClassText, "hello"},
		{"text delta", types.TextDeltaEvent{Delta: "wor"}, ClassText, "wor"},
		{
			"tool call",
			types.ToolCallEvent{Name: "bash", Params: map[string]any{"command": "ls"}},
			ClassSummary,
			`[Tool: bash({"command":"ls"})]`,
		},
		{"tool call without params", types.ToolCallEvent{Name: "read"}, ClassSummary, "[Tool: read({})]"},
		{"error", types.ErrorEvent{Message: "rate limited"}, ClassSummary, "[Error: rate limited]"},
		{"tool result", types.ToolResultEvent{Name: "bash", Output: "huge output"}, ClassIgnore, ""},
		{"thinking", types.ThinkingEvent{Text: "let me think"}, ClassIgnore, ""},
		{"progress", types.ProgressEvent{Status: "busy"}, ClassIgnore, ""},
		{"message completed", types.MessageCompletedEvent{}, ClassIgnore, ""},
		{"session completed", types.SessionCompletedEvent{}, ClassIgnore, ""},
		{"unknown", types.UnknownEvent{RawType: "lsp.updated"}, ClassIgnore, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, text := Classify(tt.event)
			if class != tt.wantClass {
				t.Errorf("class = %v, want %v", class, tt.wantClass)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestIsCompletion(t *testing.T) {
	if !IsCompletion(types.MessageCompletedEvent{MessageID: "m"}) {
		t.Error("MessageCompletedEvent should be a completion")
	}
	if !IsCompletion(types.SessionCompletedEvent{SessionID: "s"}) {
		t.Error("SessionCompletedEvent should be a completion")
	}
	if IsCompletion(types.TextPartEvent{Text: "done"}) {
		t.Error("TextPartEvent should not be a completion")
	}
	if IsCompletion(nil) {
		t.Error("nil should not be a completion")
	}
}

func TestBuffer_Process(t *testing.T) {
	b := NewBuffer(10)
	events := []types.Event{
		types.TextPartEvent{Text: "line one\nline two"},
		types.ThinkingEvent{Text: "ignored"},
		types.ToolCallEvent{Name: "edit", Params: map[string]any{"file": "a.go"}},
		types.ToolResultEvent{Output: "ignored too"},
		types.ErrorEvent{Message: "boom"},
	}

	captured := 0
	for _, ev := range events {
		if _, ok := b.Process(ev); ok {
			captured++
		}
	}

	if captured != 3 {
		t.Errorf("captured = %d, want 3", captured)
	}
	want := "line one\nline two\n[Tool: edit({\"file\":\"a.go\"})]\n[Error: boom]"
	if got := b.Sample(); got != want {
		t.Errorf("Sample() = %q, want %q", got, want)
	}
}

func TestBuffer_ProcessMultiLineSummaries(t *testing.T) {
	b := NewBuffer(3)
	b.Process(types.ErrorEvent{Message: "boom\n\n  at foo\n  at bar\n  at baz"})
	b.Process(types.ToolCallEvent{Name: "run\ntests"})

	if got := b.LineCount(); got != 2 {
		t.Fatalf("LineCount() = %d, want 2", got)
	}
	lines := strings.Split(b.Sample(), "\n")
	if len(lines) != b.LineCount() {
		t.Fatalf("sample has %d lines, LineCount() = %d: %q", len(lines), b.LineCount(), b.Sample())
	}
	want := []string{"[Error: boom at foo at bar at baz]", "[Tool: run tests({})]"}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
	}
}
