package opencode

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pithecene-io/warden/types"
)

// Decoder turns OpenCode bus events for one session into worker events.
//
// It is stateful: streamed text is re-chunked on line boundaries so partial
// deltas never reach the sample as fragments, tool calls are reported once
// per part, and message completion is reported once per message.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	sessionID string
	texts     map[string]*textState
	tools     map[string]bool
	completed map[string]bool
}

type textState struct {
	messageID string
	sent      int    // bytes of the part text already emitted
	pending   string // delta text not yet terminated by a newline
	emitted   bool
}

// NewDecoder creates a decoder that keeps only events for sessionID.
// Events that carry no session (server heartbeats) are kept.
func NewDecoder(sessionID string) *Decoder {
	return &Decoder{
		sessionID: sessionID,
		texts:     make(map[string]*textState),
		tools:     make(map[string]bool),
		completed: make(map[string]bool),
	}
}

// Decode converts one JSON event payload. It may return zero or more events.
func (d *Decoder) Decode(data []byte) ([]types.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode event: missing type")
	}

	if len(env.Properties) > 0 {
		var ref sessionRef
		if err := json.Unmarshal(env.Properties, &ref); err == nil {
			if id := ref.id(); id != "" && id != d.sessionID {
				return nil, nil
			}
		}
	}

	switch env.Type {
	case "message.part.updated":
		var props partUpdatedProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return d.partUpdated(props), nil

	case "message.updated":
		var props messageUpdatedProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return d.messageUpdated(props.Info), nil

	case "session.idle":
		var props sessionIdleProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		out := d.flushAll()
		return append(out, types.SessionCompletedEvent{SessionID: props.SessionID}), nil

	case "session.error":
		var props sessionErrorProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return []types.Event{types.ErrorEvent{Message: props.Error.message()}}, nil

	case "session.status":
		var props sessionStatusProps
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return []types.Event{types.ProgressEvent{Status: "session " + props.Status.Type}}, nil

	case "command.executed":
		return d.commandExecuted(env.Properties)

	case "server.connected", "server.heartbeat", "session.updated", "session.diff",
		"file.edited", "todo.updated", "message.removed", "message.part.removed":
		return []types.Event{types.ProgressEvent{Status: env.Type}}, nil

	default:
		return []types.Event{types.UnknownEvent{RawType: env.Type}}, nil
	}
}

func (d *Decoder) partUpdated(props partUpdatedProps) []types.Event {
	p := props.Part
	switch p.Type {
	case "text":
		return d.textPart(p, props.Delta)
	case "reasoning":
		text := props.Delta
		if text == "" {
			text = p.Text
		}
		return []types.Event{types.ThinkingEvent{Text: text}}
	case "tool":
		return d.toolPart(p)
	case "step-start", "step-finish", "snapshot", "patch", "agent":
		return []types.Event{types.ProgressEvent{Status: p.Type}}
	default:
		return []types.Event{types.UnknownEvent{RawType: "part:" + p.Type}}
	}
}

// textPart emits complete lines of streamed text. A delta update buffers
// until a newline; a full update is authoritative and, once the part has
// ended, flushes everything left.
func (d *Decoder) textPart(p part, delta string) []types.Event {
	st := d.texts[p.ID]
	if st == nil {
		st = &textState{messageID: p.MessageID}
		d.texts[p.ID] = st
	}

	var chunk string
	if delta != "" {
		st.pending += delta
		idx := strings.LastIndexByte(st.pending, '\n')
		if idx < 0 {
			return nil
		}
		chunk = st.pending[:idx+1]
		st.pending = st.pending[idx+1:]
	} else {
		if len(p.Text) < st.sent {
			return nil
		}
		rest := p.Text[st.sent:]
		st.pending = ""
		ended := p.Time != nil && p.Time.End != nil
		if ended {
			chunk = rest
		} else if idx := strings.LastIndexByte(rest, '\n'); idx >= 0 {
			chunk = rest[:idx+1]
			st.pending = rest[idx+1:]
		}
		if ended {
			delete(d.texts, p.ID)
		}
	}

	if chunk == "" {
		return nil
	}
	st.sent += len(chunk)
	return []types.Event{d.textEvent(st, chunk)}
}

func (d *Decoder) textEvent(st *textState, chunk string) types.Event {
	if !st.emitted {
		st.emitted = true
		return types.TextPartEvent{Text: chunk}
	}
	return types.TextDeltaEvent{Delta: chunk}
}

func (d *Decoder) toolPart(p part) []types.Event {
	if p.State == nil {
		return []types.Event{types.ProgressEvent{Status: "tool " + p.Tool}}
	}

	var out []types.Event
	call := func() {
		if !d.tools[p.ID] {
			d.tools[p.ID] = true
			out = append(out, types.ToolCallEvent{Name: p.Tool, Params: p.State.Input})
		}
	}

	switch p.State.Status {
	case "pending":
		out = append(out, types.ProgressEvent{Status: "tool pending: " + p.Tool})
	case "running":
		call()
	case "completed":
		call()
		out = append(out, types.ToolResultEvent{Name: p.Tool, Output: p.State.Output})
		delete(d.tools, p.ID)
	case "error":
		call()
		out = append(out, types.ToolResultEvent{Name: p.Tool, Output: p.State.Error})
		delete(d.tools, p.ID)
	default:
		out = append(out, types.ProgressEvent{Status: "tool " + p.State.Status + ": " + p.Tool})
	}
	return out
}

func (d *Decoder) messageUpdated(info messageInfo) []types.Event {
	var out []types.Event
	if info.Error != nil {
		out = append(out, types.ErrorEvent{Message: info.Error.message()})
	}
	if info.Role != "assistant" || info.Time.Completed == nil || d.completed[info.ID] {
		if len(out) == 0 {
			out = append(out, types.ProgressEvent{Status: "message updated"})
		}
		return out
	}

	d.completed[info.ID] = true
	out = append(out, d.flushMessage(info.ID)...)
	return append(out, types.MessageCompletedEvent{MessageID: info.ID})
}

// flushMessage emits buffered text of every part of messageID, in part ID
// order (part IDs are ascending).
func (d *Decoder) flushMessage(messageID string) []types.Event {
	var out []types.Event
	for _, id := range slices.Sorted(maps.Keys(d.texts)) {
		st := d.texts[id]
		if st.messageID != messageID {
			continue
		}
		if st.pending != "" {
			out = append(out, d.textEvent(st, st.pending))
		}
		delete(d.texts, id)
	}
	return out
}

func (d *Decoder) flushAll() []types.Event {
	var out []types.Event
	for _, id := range slices.Sorted(maps.Keys(d.texts)) {
		st := d.texts[id]
		if st.pending != "" {
			out = append(out, d.textEvent(st, st.pending))
		}
		delete(d.texts, id)
	}
	return out
}

// commandExecuted decodes the legacy command shape into a tool call.
func (d *Decoder) commandExecuted(raw json.RawMessage) ([]types.Event, error) {
	var props commandExecutedProps
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("decode command.executed: %w", err)
	}
	var params map[string]any
	if props.Arguments != "" {
		params = map[string]any{"arguments": props.Arguments}
	}
	return []types.Event{types.ToolCallEvent{Name: props.Name, Params: params}}, nil
}
