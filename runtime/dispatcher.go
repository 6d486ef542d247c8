package runtime

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.IDispatcher = (*Dispatcher)(nil)

// Dispatcher pushes events to the live connections of their recipients.
//
// Every recipient is served by its own goroutine so a slow connection never
// holds back the others. A failed push is logged and forgotten, the core
// keeps no outbox: an offline recipient catches up by querying the store.
//
// Conversation scoped events are also offered to the permanent sinks
// channel (search index, ...). That hand-off never blocks delivery.
type Dispatcher struct {
	log       *slog.Logger
	store     contract.IConversationStore
	registry  contract.IRegistry
	groups    contract.IGroupTracker
	permanent chan<- event.Event
}

func NewDispatcher(log *slog.Logger, store contract.IConversationStore, registry contract.IRegistry,
	groups contract.IGroupTracker, permanent chan<- event.Event) *Dispatcher {
	return &Dispatcher{log: log, store: store, registry: registry, groups: groups, permanent: permanent}
}

// ToConversation delivers to every participant of the conversation.
// build is called once per online participant, which lets a recipient
// specific payload (isUnread) be computed. Only the participant lookup can
// fail; per recipient failures are logged.
func (d *Dispatcher) ToConversation(ctx context.Context, conversationID uuid.UUID, build func(recipientID string) event.Event) error {
	participantIDs, err := d.store.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("cannot resolve participants of %s: %w", conversationID, err)
	}

	d.publish(build(""))

	sinks := lo.FilterMap(participantIDs, func(userID string, _ int) (contract.EventSink, bool) {
		return d.registry.Lookup(userID)
	})
	d.push(ctx, sinks, func(sink contract.EventSink) event.Event {
		return build(sink.UserID())
	})
	return nil
}

// ToUser is a no-op when the user is offline.
func (d *Dispatcher) ToUser(ctx context.Context, userID string, e event.Event) {
	sink, ok := d.registry.Lookup(userID)
	if !ok {
		d.log.Debug("Recipient offline, event skipped", "user_id", userID, "event", e.Kind())
		return
	}
	d.push(ctx, []contract.EventSink{sink}, func(contract.EventSink) event.Event { return e })
}

// ToGroup relays to every connection joined to the conversation except the
// emitting one.
func (d *Dispatcher) ToGroup(ctx context.Context, conversationID uuid.UUID, e event.Event, exceptConnectionID string) {
	sinks := lo.Filter(d.groups.Members(conversationID), func(sink contract.EventSink, _ int) bool {
		return sink.ID() != exceptConnectionID
	})
	d.push(ctx, sinks, func(contract.EventSink) event.Event { return e })
}

// Broadcast reaches every live connection except the ones of exceptUserID.
func (d *Dispatcher) Broadcast(ctx context.Context, e event.Event, exceptUserID string) {
	sinks := lo.Filter(d.registry.Online(), func(sink contract.EventSink, _ int) bool {
		return sink.UserID() != exceptUserID
	})
	d.push(ctx, sinks, func(contract.EventSink) event.Event { return e })
}

func (d *Dispatcher) push(ctx context.Context, sinks []contract.EventSink, build func(contract.EventSink) event.Event) {
	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			e := build(s)
			if err := s.Consume(ctx, e); err != nil {
				d.log.Warn("Event not delivered",
					"user_id", s.UserID(), "connection_id", s.ID(), "event", e.Kind(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func (d *Dispatcher) publish(e event.Event) {
	if d.permanent == nil || e == nil {
		return
	}
	select {
	case d.permanent <- e:
	default:
		d.log.Debug("Permanent sinks lagging, event lost", "event", e.Kind())
	}
}
