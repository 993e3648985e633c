package sampler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pithecene-io/warden/types"
)

// Class is the sampling class of a worker event.
type Class int

const (
	// ClassIgnore events contribute nothing to the sample.
	ClassIgnore Class = iota
	// ClassText events contribute their text verbatim.
	ClassText
	// ClassSummary events contribute a single bracketed summary line.
	ClassSummary
)

// String returns the class name used in metrics and logs.
func (c Class) String() string {
	switch c {
	case ClassText:
		return "text"
	case ClassSummary:
		return "summary"
	default:
		return "ignore"
	}
}

// Classify returns the sampling class of ev and the text it contributes.
//
// Text parts and deltas are captured verbatim. Tool calls and errors are
// captured as one-line summaries. Tool results, reasoning, progress pings and
// unrecognized events are ignored: they are large or uninformative for
// judging progress.
func Classify(ev types.Event) (Class, string) {
	switch e := ev.(type) {
	case types.TextPartEvent:
		return ClassText, e.Text
	case types.TextDeltaEvent:
		return ClassText, e.Delta
	case types.ToolCallEvent:
		return ClassSummary, ToolSummary(e.Name, e.Params)
	case types.ErrorEvent:
		return ClassSummary, fmt.Sprintf("[Error: %s]", oneLine(e.Message))
	default:
		return ClassIgnore, ""
	}
}

// ToolSummary renders a tool invocation as "[Tool: name(params)]" with the
// parameters in compact JSON.
func ToolSummary(name string, params map[string]any) string {
	rendered := "{}"
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			rendered = string(data)
		}
	}
	return fmt.Sprintf("[Tool: %s(%s)]", oneLine(name), rendered)
}

// oneLine collapses every whitespace run, newlines included, to one space.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsCompletion reports whether ev ends the current streaming phase.
func IsCompletion(ev types.Event) bool {
	return ev != nil && ev.Type().IsTerminal()
}

// Process classifies ev and appends its contribution to the buffer.
// Returns the captured text and whether anything was captured.
func (b *Buffer) Process(ev types.Event) (string, bool) {
	class, text := Classify(ev)
	switch class {
	case ClassText:
		b.AddLines(text)
	case ClassSummary:
		b.AddLine(text)
	default:
		return "", false
	}
	return text, true
}
