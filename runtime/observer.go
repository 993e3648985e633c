package runtime

import (
	"time"

	"github.com/pithecene-io/warden/types"
)

// NotificationKind discriminates observer notifications.
type NotificationKind string

const (
	// NotificationWorkerOutput carries text captured from the worker.
	NotificationWorkerOutput NotificationKind = "worker_output"
	// NotificationDecision carries a recorded iteration.
	NotificationDecision NotificationKind = "decision"
	// NotificationStatus carries a free-text status line.
	NotificationStatus NotificationKind = "status"
)

// Notification is a one-way message from the control loop to an observer.
// It is a point-in-time copy; nothing in it aliases loop state.
type Notification struct {
	Kind NotificationKind
	// Iteration is the iteration the notification belongs to.
	Iteration int
	// Text is the captured output (worker_output) or status line (status).
	Text string
	// Record is set for decision notifications.
	Record *types.IterationRecord
	// Time is when the notification was produced.
	Time time.Time
}

// Observer receives best-effort notifications from the control loop.
// Notify must not block. It returns false if the notification was dropped.
type Observer interface {
	Notify(n Notification) bool
}

// ChannelObserver forwards notifications to a channel without blocking.
// A full channel drops the notification; a closed channel is tolerated.
type ChannelObserver struct {
	ch chan<- Notification
}

// NewChannelObserver creates an observer writing to ch.
func NewChannelObserver(ch chan<- Notification) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// Notify attempts a non-blocking send.
func (o *ChannelObserver) Notify(n Notification) (delivered bool) {
	defer func() {
		// send on closed channel
		if recover() != nil {
			delivered = false
		}
	}()
	select {
	case o.ch <- n:
		return true
	default:
		return false
	}
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Notification) bool

// Notify calls f(n).
func (f ObserverFunc) Notify(n Notification) bool {
	return f(n)
}
