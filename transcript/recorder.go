// Package transcript records worker event streams to msgpack frame files and
// replays them as a worker.
package transcript

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/warden/ipc"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/types"
	"github.com/pithecene-io/warden/worker"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// RunID is stored in the transcript header.
	RunID string
	// Logger receives write failures. Optional.
	Logger *log.Logger
	// Now overrides the clock used for frame timestamps. Optional.
	Now func() time.Time
}

// Recorder wraps a worker and writes every event it delivers to a
// transcript. The wrapped worker's behavior is unchanged; a failing writer
// only disables recording.
type Recorder struct {
	inner  worker.Worker
	runID  string
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	enc     *ipc.FrameEncoder
	task    string
	seq     int64
	err     error
	started bool
}

// NewRecorder creates a recorder writing frames to w.
func NewRecorder(inner worker.Worker, w io.Writer, opts RecorderOptions) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		inner:  inner,
		runID:  opts.RunID,
		logger: logger,
		now:    now,
		enc:    ipc.NewFrameEncoder(w),
	}
}

// CreateSession delegates to the wrapped worker and remembers the task for
// the transcript header.
func (r *Recorder) CreateSession(ctx context.Context, task string) (string, error) {
	id, err := r.inner.CreateSession(ctx, task)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.task = task
	r.mu.Unlock()
	return id, nil
}

// SendMessage delegates to the wrapped worker.
func (r *Recorder) SendMessage(ctx context.Context, sessionID, text string) error {
	return r.inner.SendMessage(ctx, sessionID, text)
}

// Subscribe opens the wrapped subscription and writes the transcript header.
// Events are written before they are forwarded, in arrival order.
func (r *Recorder) Subscribe(ctx context.Context, sessionID string) (worker.Subscription, error) {
	inner, err := r.inner.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if !r.started {
		r.started = true
		r.write(func() error {
			return r.enc.WriteHeader(ipc.HeaderFrame{
				Version:    types.Version,
				RunID:      r.runID,
				SessionID:  sessionID,
				Task:       r.task,
				RecordedAt: r.now().UTC().Format(time.RFC3339Nano),
			})
		})
	}
	r.mu.Unlock()

	out := &recordingSubscription{
		ChannelSubscription: worker.NewChannelSubscription(0),
		inner:               inner,
	}
	go r.forward(inner, out)
	return out, nil
}

// Frames returns the number of event frames written.
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Err returns the write error that disabled recording, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) forward(inner worker.Subscription, out *recordingSubscription) {
	for ev := range inner.Events() {
		r.record(ev)
		if !out.Send(ev) {
			out.Finish(nil)
			return
		}
	}
	out.Finish(inner.Err())
}

func (r *Recorder) record(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(func() error {
		frame := ipc.NewEventFrame(r.seq+1, r.now(), ev)
		if err := r.enc.WriteEvent(frame); err != nil {
			return err
		}
		r.seq++
		return nil
	})
}

// write runs fn unless recording is disabled. Caller holds mu.
func (r *Recorder) write(fn func() error) {
	if r.err != nil {
		return
	}
	if err := fn(); err != nil {
		r.err = err
		r.logger.Error("transcript write failed, recording disabled", map[string]any{
			"error":  err.Error(),
			"frames": r.seq,
		})
	}
}

// recordingSubscription closes the wrapped subscription along with its own.
type recordingSubscription struct {
	*worker.ChannelSubscription
	inner worker.Subscription
}

func (s *recordingSubscription) Close() error {
	_ = s.ChannelSubscription.Close()
	return s.inner.Close()
}

var _ worker.Worker = (*Recorder)(nil)
