package services

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"time"
)

// PresenceService derives online/offline transitions from registry
// mutations. A user is online while the registry maps it to a connection;
// a second connection takes over silently and only the disconnect of the
// connection currently mapped takes the user offline.
type PresenceService struct {
	log        *slog.Logger
	store      contract.IConversationStore
	registry   contract.IRegistry
	dispatcher contract.IDispatcher
}

func NewPresenceService(log *slog.Logger, store contract.IConversationStore,
	registry contract.IRegistry, dispatcher contract.IDispatcher) *PresenceService {
	return &PresenceService{log: log, store: store, registry: registry, dispatcher: dispatcher}
}

// Connected registers the connection and announces the user when it was
// offline. It returns the connection that has been superseded, if any.
func (p *PresenceService) Connected(ctx context.Context, conn contract.EventSink) contract.EventSink {
	previous := p.registry.Register(conn.UserID(), conn)
	p.touch(ctx, conn.UserID())
	if previous != nil {
		p.log.Info("Connection superseded", "user_id", conn.UserID(),
			"previous_connection_id", previous.ID(), "connection_id", conn.ID())
		return previous
	}
	p.dispatcher.Broadcast(ctx, event.UserOnline{UserID: conn.UserID()}, conn.UserID())
	return nil
}

// Disconnected is idempotent: a duplicate signal, or the end of a
// superseded connection, changes nothing and announces nothing.
func (p *PresenceService) Disconnected(ctx context.Context, conn contract.EventSink) bool {
	if !p.registry.Release(conn.UserID(), conn.ID()) {
		p.log.Debug("Connection already released", "user_id", conn.UserID(), "connection_id", conn.ID())
		return false
	}
	at := p.touch(ctx, conn.UserID())
	p.dispatcher.Broadcast(ctx, event.UserOffline{UserID: conn.UserID(), LastSeenAt: at}, conn.UserID())
	return true
}

func (p *PresenceService) touch(ctx context.Context, userID string) time.Time {
	at := time.Now().UTC()
	if err := p.store.TouchLastSeen(ctx, userID, at); err != nil {
		p.log.Warn("Cannot update last seen", "user_id", userID, "error", err)
	}
	return at
}
