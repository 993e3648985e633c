// Package worker defines the boundary between the supervisor and the
// autonomous worker it supervises.
//
// A Worker owns sessions; a Subscription is a lazy, non-restartable stream of
// events for one session. Either side may close a subscription.
package worker

import (
	"context"

	"github.com/pithecene-io/warden/types"
)

// Worker is the supervised agent.
type Worker interface {
	// CreateSession starts a session working on task and returns its ID.
	CreateSession(ctx context.Context, task string) (string, error)
	// Subscribe opens the event stream of a session.
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
	// SendMessage posts additional text into an existing session.
	SendMessage(ctx context.Context, sessionID, text string) error
}

// Subscription is a stream of worker events.
//
// Events returns a channel that is closed when the stream ends. After it is
// closed, Err reports the transport error that ended the stream, or nil if
// the stream ended normally.
type Subscription interface {
	Events() <-chan types.Event
	Err() error
	Close() error
}
