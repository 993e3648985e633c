// Package types defines core domain types for the warden supervisor.
//
//nolint:revive // types is a common Go package naming convention
package types

// ContractVersion is the version of the transcript and notification contracts.
const ContractVersion = "0.3.0"

// EventType discriminates worker events.
type EventType string

// Event type constants. EventTypeUnknown is the catch-all for kinds the
// worker transport produced but this version does not recognize.
const (
	EventTypeTextPart         EventType = "text_part"
	EventTypeTextDelta        EventType = "text_delta"
	EventTypeToolCall         EventType = "tool_call"
	EventTypeToolResult       EventType = "tool_result"
	EventTypeError            EventType = "error"
	EventTypeThinking         EventType = "thinking"
	EventTypeProgress         EventType = "progress"
	EventTypeMessageCompleted EventType = "message_completed"
	EventTypeSessionCompleted EventType = "session_completed"
	EventTypeUnknown          EventType = "unknown"
)

// IsTerminal returns true if this event type ends the current streaming phase.
func (e EventType) IsTerminal() bool {
	return e == EventTypeMessageCompleted || e == EventTypeSessionCompleted
}

// Event is a single event from the worker's subscription.
// The set of implementations is closed: only the types in this file
// satisfy it.
type Event interface {
	Type() EventType
	isEvent()
}

// TextPartEvent carries the content of a newly added text part.
type TextPartEvent struct {
	Text string
}

// TextDeltaEvent carries an incremental chunk of streamed text.
type TextDeltaEvent struct {
	Delta string
}

// ToolCallEvent reports a tool invocation by the worker.
type ToolCallEvent struct {
	Name   string
	Params map[string]any
}

// ToolResultEvent carries the output of a finished tool invocation.
type ToolResultEvent struct {
	Name   string
	Output string
}

// ErrorEvent reports an error raised inside the worker session.
type ErrorEvent struct {
	Message string
}

// ThinkingEvent carries reasoning content.
type ThinkingEvent struct {
	Text string
}

// ProgressEvent is a liveness ping (status changes, heartbeats, step markers).
type ProgressEvent struct {
	Status string
}

// MessageCompletedEvent signals that the worker finished a message.
type MessageCompletedEvent struct {
	MessageID string
}

// SessionCompletedEvent signals that the worker session went idle.
type SessionCompletedEvent struct {
	SessionID string
}

// UnknownEvent wraps an event kind this version does not recognize.
type UnknownEvent struct {
	// RawType is the wire type name, kept for diagnostics.
	RawType string
}

func (TextPartEvent) Type() EventType         { return EventTypeTextPart }
func (TextDeltaEvent) Type() EventType        { return EventTypeTextDelta }
func (ToolCallEvent) Type() EventType         { return EventTypeToolCall }
func (ToolResultEvent) Type() EventType       { return EventTypeToolResult }
func (ErrorEvent) Type() EventType            { return EventTypeError }
func (ThinkingEvent) Type() EventType         { return EventTypeThinking }
func (ProgressEvent) Type() EventType         { return EventTypeProgress }
func (MessageCompletedEvent) Type() EventType { return EventTypeMessageCompleted }
func (SessionCompletedEvent) Type() EventType { return EventTypeSessionCompleted }
func (UnknownEvent) Type() EventType          { return EventTypeUnknown }

func (TextPartEvent) isEvent()         {}
func (TextDeltaEvent) isEvent()        {}
func (ToolCallEvent) isEvent()         {}
func (ToolResultEvent) isEvent()       {}
func (ErrorEvent) isEvent()            {}
func (ThinkingEvent) isEvent()         {}
func (ProgressEvent) isEvent()         {}
func (MessageCompletedEvent) isEvent() {}
func (SessionCompletedEvent) isEvent() {}
func (UnknownEvent) isEvent()          {}
