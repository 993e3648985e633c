package worker

import (
	"sync"

	"github.com/pithecene-io/warden/types"
)

// ChannelSubscription is a Subscription fed by a producer goroutine.
// The producer calls Send for each event and Finish exactly once when done.
// Close signals the producer to stop via Done.
type ChannelSubscription struct {
	events chan types.Event
	done   chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	finOnce   sync.Once
}

// NewChannelSubscription creates a subscription with the given event buffer.
func NewChannelSubscription(buffer int) *ChannelSubscription {
	return &ChannelSubscription{
		events: make(chan types.Event, max(buffer, 0)),
		done:   make(chan struct{}),
	}
}

// Events returns the event channel.
func (s *ChannelSubscription) Events() <-chan types.Event {
	return s.events
}

// Err returns the error passed to Finish.
func (s *ChannelSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the consumer calls Close.
func (s *ChannelSubscription) Done() <-chan struct{} {
	return s.done
}

// Send delivers ev to the consumer. Returns false if the subscription was
// closed before the event could be delivered.
func (s *ChannelSubscription) Send(ev types.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Finish records err and closes the event channel. Only the first call has
// an effect. Must only be called by the producer.
func (s *ChannelSubscription) Finish(err error) {
	s.finOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	})
}

// Close tells the producer to stop. It is safe to call more than once.
func (s *ChannelSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

var _ Subscription = (*ChannelSubscription)(nil)
