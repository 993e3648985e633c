package opencode

import "encoding/json"

// Wire shapes of the OpenCode server API. Only fields the supervisor reads
// are modeled.

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type textPartInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type promptRequest struct {
	Parts []textPartInput `json:"parts"`
}

// envelope is one bus event delivered over /event.
type envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type partUpdatedProps struct {
	Part  part   `json:"part"`
	Delta string `json:"delta"`
}

type part struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	Type      string     `json:"type"`
	Text      string     `json:"text"`
	Tool      string     `json:"tool"`
	State     *toolState `json:"state"`
	Time      *timeSpan  `json:"time"`
}

type toolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input"`
	Output string         `json:"output"`
	Error  string         `json:"error"`
	Title  string         `json:"title"`
}

type timeSpan struct {
	Start *int64 `json:"start"`
	End   *int64 `json:"end"`
}

type messageUpdatedProps struct {
	Info messageInfo `json:"info"`
}

type messageInfo struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	Role      string         `json:"role"`
	Time      messageTime    `json:"time"`
	Error     *sessionErrObj `json:"error"`
}

type messageTime struct {
	Created   *int64 `json:"created"`
	Completed *int64 `json:"completed"`
}

type sessionIdleProps struct {
	SessionID string `json:"sessionID"`
}

type sessionErrorProps struct {
	SessionID string         `json:"sessionID"`
	Error     *sessionErrObj `json:"error"`
}

type sessionErrObj struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

type sessionStatusProps struct {
	SessionID string `json:"sessionID"`
	Status    struct {
		Type string `json:"type"`
	} `json:"status"`
}

// commandExecutedProps is the legacy shape of a command invocation.
type commandExecutedProps struct {
	Name      string `json:"name"`
	SessionID string `json:"sessionID"`
	Arguments string `json:"arguments"`
	MessageID string `json:"messageID"`
}

// sessionRef extracts whichever session ID an event carries.
type sessionRef struct {
	SessionID string `json:"sessionID"`
	Part      *struct {
		SessionID string `json:"sessionID"`
	} `json:"part"`
	Info *struct {
		SessionID string `json:"sessionID"`
	} `json:"info"`
}

func (s sessionRef) id() string {
	switch {
	case s.SessionID != "":
		return s.SessionID
	case s.Part != nil && s.Part.SessionID != "":
		return s.Part.SessionID
	case s.Info != nil && s.Info.SessionID != "":
		return s.Info.SessionID
	default:
		return ""
	}
}

func (e *sessionErrObj) message() string {
	if e == nil {
		return "unknown error"
	}
	if e.Data.Message != "" {
		return e.Data.Message
	}
	if e.Name != "" {
		return e.Name
	}
	return "unknown error"
}
