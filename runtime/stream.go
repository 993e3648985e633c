package runtime

import (
	"context"
	"time"

	"github.com/pithecene-io/warden/sampler"
	"github.com/pithecene-io/warden/worker"
)

// streamTrigger is why a streaming phase ended.
type streamTrigger string

const (
	triggerInactivity     streamTrigger = "inactivity"
	triggerCompletion     streamTrigger = "completion"
	triggerClosed         streamTrigger = "closed"
	triggerTransportError streamTrigger = "transport_error"
	triggerCanceled       streamTrigger = "canceled"
)

// streamUntilReview consumes events into buf until review is due.
//
// Receives are interleaved with a PollInterval ticker so inactivity is
// detected without an unbounded blocking receive. The inactivity clock starts
// with the phase and is reset by every received event. Events are processed
// strictly in arrival order; nothing received after the trigger reaches this
// iteration's sample.
func (r *RunOrchestrator) streamUntilReview(ctx context.Context, sub worker.Subscription, buf *sampler.Buffer, iteration int) streamTrigger {
	events := sub.Events()
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	lastEvent := time.Now()
	received := 0

	for {
		select {
		case <-ctx.Done():
			return triggerCanceled

		case ev, ok := <-events:
			if !ok {
				if err := sub.Err(); err != nil {
					r.logger.Warn("worker event stream failed, proceeding to review", map[string]any{
						"iteration": iteration,
						"error":     err.Error(),
					})
					return triggerTransportError
				}
				r.logger.Info("worker event stream closed", map[string]any{"iteration": iteration})
				return triggerClosed
			}

			lastEvent = time.Now()
			received++
			r.eventCount++

			if text, captured := buf.Process(ev); captured {
				r.config.Collector.IncEventCaptured()
				r.notify(Notification{Kind: NotificationWorkerOutput, Iteration: iteration, Text: text})
			} else {
				r.config.Collector.IncEventIgnored(string(ev.Type()))
			}

			if sampler.IsCompletion(ev) {
				r.logger.Info("completion event, triggering review", map[string]any{
					"iteration": iteration,
					"event":     ev.Type(),
					"events":    received,
				})
				return triggerCompletion
			}

		case <-ticker.C:
			if time.Since(lastEvent) >= r.config.InactivityTimeout {
				r.logger.Info("inactivity timeout, triggering review", map[string]any{
					"iteration": iteration,
					"timeout":   r.config.InactivityTimeout.String(),
					"events":    received,
				})
				return triggerInactivity
			}
		}
	}
}
