package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/ipc"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/metrics"
	"github.com/pithecene-io/warden/worker"
)

// DefaultMaxGap caps the pause between two paced events.
const DefaultMaxGap = 5 * time.Second

// ErrNoHeader is returned when a transcript does not start with a header frame.
var ErrNoHeader = errors.New("transcript has no header frame")

// ReplayOptions configures a Replayer.
type ReplayOptions struct {
	// Speed scales the recorded gaps between events. Zero delivers events
	// back to back; 1 reproduces the recorded timing.
	Speed float64
	// MaxGap caps each paced pause (default 5s).
	MaxGap time.Duration
	// Logger receives skipped frames. Optional.
	Logger *log.Logger
	// Collector counts undecodable frames. Optional.
	Collector *metrics.Collector
}

// Replayer is a worker backed by a recorded transcript. Each subscription
// delivers the recorded events in order and then ends normally.
type Replayer struct {
	header ipc.HeaderFrame
	frames []ipc.EventFrame
	speed  float64
	maxGap time.Duration

	mu   sync.Mutex
	sent []string
}

// Open loads the transcript at path.
func Open(path string, opts ReplayOptions) (*Replayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer iox.DiscardClose(f)
	return Load(f, opts)
}

// Load reads a whole transcript from r. Frames that fail to decode are
// skipped; truncated or oversized frames are an error.
func Load(r io.Reader, opts ReplayOptions) (*Replayer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.MaxGap <= 0 {
		opts.MaxGap = DefaultMaxGap
	}
	if opts.Speed < 0 {
		return nil, fmt.Errorf("invalid replay speed %v", opts.Speed)
	}

	rp := &Replayer{speed: opts.Speed, maxGap: opts.MaxGap}
	dec := ipc.NewFrameDecoder(r)
	haveHeader := false

	for i := 0; ; i++ {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript frame %d: %w", i, err)
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			if i == 0 {
				return nil, ErrNoHeader
			}
			opts.Collector.IncIPCDecodeErrors()
			logger.Warn("skipping undecodable transcript frame", map[string]any{
				"frame": i,
				"error": err.Error(),
			})
			continue
		}

		switch f := frame.(type) {
		case *ipc.HeaderFrame:
			if i != 0 {
				return nil, fmt.Errorf("unexpected header at frame %d", i)
			}
			rp.header = *f
			haveHeader = true
		case *ipc.EventFrame:
			if !haveHeader {
				return nil, ErrNoHeader
			}
			rp.frames = append(rp.frames, *f)
		}
	}

	if !haveHeader {
		return nil, ErrNoHeader
	}
	return rp, nil
}

// Header returns the transcript header.
func (r *Replayer) Header() ipc.HeaderFrame {
	return r.header
}

// Len returns the number of recorded events.
func (r *Replayer) Len() int {
	return len(r.frames)
}

// CreateSession returns the recorded session ID. The task argument is
// ignored; the recording fixes what the worker did.
func (r *Replayer) CreateSession(_ context.Context, _ string) (string, error) {
	if r.header.SessionID != "" {
		return r.header.SessionID, nil
	}
	return "replay", nil
}

// SendMessage records text; a transcript cannot react to it.
func (r *Replayer) SendMessage(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

// Sent returns the messages passed to SendMessage.
func (r *Replayer) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// Subscribe starts delivering the recorded events.
func (r *Replayer) Subscribe(ctx context.Context, _ string) (worker.Subscription, error) {
	sub := worker.NewChannelSubscription(0)
	go r.play(ctx, sub)
	return sub, nil
}

func (r *Replayer) play(ctx context.Context, sub *worker.ChannelSubscription) {
	var prev time.Time
	for i := range r.frames {
		f := &r.frames[i]
		at := f.Time()
		if wait := r.gap(prev, at); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				sub.Finish(ctx.Err())
				return
			case <-sub.Done():
				timer.Stop()
				sub.Finish(nil)
				return
			case <-timer.C:
			}
		}
		prev = at

		if ctx.Err() != nil {
			sub.Finish(ctx.Err())
			return
		}
		if !sub.Send(f.Event()) {
			sub.Finish(nil)
			return
		}
	}
	sub.Finish(nil)
}

func (r *Replayer) gap(prev, at time.Time) time.Duration {
	if r.speed == 0 || prev.IsZero() || at.IsZero() || !at.After(prev) {
		return 0
	}
	return min(time.Duration(float64(at.Sub(prev))/r.speed), r.maxGap)
}

var _ worker.Worker = (*Replayer)(nil)
