package events

import (
	"context"
	"log/slog"
	"time"
)

const drainTimeout = 5 * time.Second

// Async queues events for a background worker so that slow sinks never sit
// on the request path. When the queue is full the event is dropped and a
// warning logged.
type Async struct {
	next   Publisher
	queue  chan Event
	logger *slog.Logger
}

func NewAsync(next Publisher, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		next:   next,
		queue:  make(chan Event, size),
		logger: logger.With(slog.String("component", "events")),
	}
}

// Publish enqueues e. It never blocks and never fails.
func (a *Async) Publish(ctx context.Context, e Event) error {
	select {
	case a.queue <- e:
	default:
		a.logger.WarnContext(ctx, "event queue full, dropping event",
			slog.String("event_type", string(e.Type)),
			slog.String("event_id", e.ID),
		)
	}
	return nil
}

// Run delivers queued events until ctx is done, then drains what is left
// with a short deadline.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case e := <-a.queue:
			a.deliver(ctx, e)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			for {
				select {
				case e := <-a.queue:
					a.deliver(drainCtx, e)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Async) deliver(ctx context.Context, e Event) {
	// Sinks log their own failures.
	_ = a.next.Publish(ctx, e)
}
