package ipc

import (
	"time"

	"github.com/pithecene-io/warden/types"
)

// HeaderFrame opens a transcript.
type HeaderFrame struct {
	Type       string `msgpack:"type"`
	Version    string `msgpack:"version"`
	RunID      string `msgpack:"run_id,omitempty"`
	SessionID  string `msgpack:"session_id,omitempty"`
	Task       string `msgpack:"task"`
	RecordedAt string `msgpack:"recorded_at"`
}

// EventFrame is the wire form of one worker event. Type carries the
// types.EventType value; which of the other fields are set depends on it.
type EventFrame struct {
	Type   string         `msgpack:"type"`
	Seq    int64          `msgpack:"seq"`
	Ts     string         `msgpack:"ts"`
	Text   string         `msgpack:"text,omitempty"`
	Name   string         `msgpack:"name,omitempty"`
	Params map[string]any `msgpack:"params,omitempty"`
	ID     string         `msgpack:"id,omitempty"`
}

// NewEventFrame builds the frame for ev, received at ts.
func NewEventFrame(seq int64, ts time.Time, ev types.Event) EventFrame {
	f := EventFrame{
		Type: string(ev.Type()),
		Seq:  seq,
		Ts:   ts.UTC().Format(time.RFC3339Nano),
	}
	switch e := ev.(type) {
	case types.TextPartEvent:
		f.Text = e.Text
	case types.TextDeltaEvent:
		f.Text = e.Delta
	case types.ToolCallEvent:
		f.Name = e.Name
		f.Params = e.Params
	case types.ToolResultEvent:
		f.Name = e.Name
		f.Text = e.Output
	case types.ErrorEvent:
		f.Text = e.Message
	case types.ThinkingEvent:
		f.Text = e.Text
	case types.ProgressEvent:
		f.Text = e.Status
	case types.MessageCompletedEvent:
		f.ID = e.MessageID
	case types.SessionCompletedEvent:
		f.ID = e.SessionID
	case types.UnknownEvent:
		f.Name = e.RawType
	}
	return f
}

// Event converts the frame back into a worker event. Frames with an
// unrecognized type become UnknownEvent.
func (f *EventFrame) Event() types.Event {
	switch types.EventType(f.Type) {
	case types.EventTypeTextPart:
		return types.TextPartEvent{Text: f.Text}
	case types.EventTypeTextDelta:
		return types.TextDeltaEvent{Delta: f.Text}
	case types.EventTypeToolCall:
		return types.ToolCallEvent{Name: f.Name, Params: f.Params}
	case types.EventTypeToolResult:
		return types.ToolResultEvent{Name: f.Name, Output: f.Text}
	case types.EventTypeError:
		return types.ErrorEvent{Message: f.Text}
	case types.EventTypeThinking:
		return types.ThinkingEvent{Text: f.Text}
	case types.EventTypeProgress:
		return types.ProgressEvent{Status: f.Text}
	case types.EventTypeMessageCompleted:
		return types.MessageCompletedEvent{MessageID: f.ID}
	case types.EventTypeSessionCompleted:
		return types.SessionCompletedEvent{SessionID: f.ID}
	case types.EventTypeUnknown:
		return types.UnknownEvent{RawType: f.Name}
	default:
		return types.UnknownEvent{RawType: f.Type}
	}
}

// Time parses the frame timestamp. The zero time is returned if it is malformed.
func (f *EventFrame) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, f.Ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
