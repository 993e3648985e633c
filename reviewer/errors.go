package reviewer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why the reviewer was unavailable.
type ErrorKind string

const (
	// ErrorKindTransport indicates the request could not be sent or read.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindStatus indicates a non-2xx response.
	ErrorKindStatus ErrorKind = "status"
	// ErrorKindDecode indicates the response body was not a chat completion.
	ErrorKindDecode ErrorKind = "decode"
	// ErrorKindDecision indicates the message content was not a valid decision.
	ErrorKindDecision ErrorKind = "decision"
)

// UnavailableError is returned by Review when no decision could be obtained.
type UnavailableError struct {
	Kind ErrorKind
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("reviewer unavailable (%s): %v", e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
