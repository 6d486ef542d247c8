package workers

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventFanout feeds conversation events to in-process permanent consumers
// such as the search index.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. Live connections are served by the
// dispatcher, never through here.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.Event
	sinkTimeout time.Duration
	consumers   []contract.Consumer
}

func NewEventFanout(log *slog.Logger, events <-chan event.Event, sinkTimeout time.Duration, consumers ...contract.Consumer) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout, consumers: consumers}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping permanent fan-out")
			return nil
		}
	}
}

// Fanout hands the event to every consumer concurrently, each bounded by
// the sink timeout.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	var wg sync.WaitGroup
	for _, consumer := range w.consumers {
		wg.Add(1)
		go func(c contract.Consumer) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := c.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Permanent sink failed", "event", evt.Kind(), "error", err)
			}
		}(consumer)
	}
	wg.Wait()
}
