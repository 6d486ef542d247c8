package runtime

import (
	"chat-hub/contract"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.IGroupTracker = (*GroupTracker)(nil)

// GroupTracker keeps, per conversation, the connections that explicitly
// joined it. Membership is ephemeral and never persisted; it only scopes
// typing signals.
type GroupTracker struct {
	mu            sync.RWMutex
	groups        map[uuid.UUID]map[string]contract.EventSink // conversation -> connection -> Sink
	subscriptions map[string]map[uuid.UUID]struct{}           // connection -> conversations
}

func NewGroupTracker() *GroupTracker {
	return &GroupTracker{
		groups:        make(map[uuid.UUID]map[string]contract.EventSink),
		subscriptions: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Join is idempotent.
func (g *GroupTracker) Join(sink contract.EventSink, conversationID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.groups[conversationID]
	if !ok {
		members = make(map[string]contract.EventSink)
		g.groups[conversationID] = members
	}
	members[sink.ID()] = sink

	subscribed, ok := g.subscriptions[sink.ID()]
	if !ok {
		subscribed = make(map[uuid.UUID]struct{})
		g.subscriptions[sink.ID()] = subscribed
	}
	subscribed[conversationID] = struct{}{}
}

// Leave is a no-op for a connection that never joined.
func (g *GroupTracker) Leave(sink contract.EventSink, conversationID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leave(sink.ID(), conversationID)
}

func (g *GroupTracker) IsMember(connectionID string, conversationID uuid.UUID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.groups[conversationID][connectionID]
	return ok
}

func (g *GroupTracker) Members(conversationID uuid.UUID) []contract.EventSink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Values(g.groups[conversationID])
}

// Drop removes the connection from every group it joined, it is called
// when the connection goes away.
func (g *GroupTracker) Drop(sink contract.EventSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for conversationID := range g.subscriptions[sink.ID()] {
		g.leave(sink.ID(), conversationID)
	}
}

func (g *GroupTracker) leave(connectionID string, conversationID uuid.UUID) {
	if members, ok := g.groups[conversationID]; ok {
		delete(members, connectionID)
		// If no one is left in the group, remove the group entry entirely
		if len(members) == 0 {
			delete(g.groups, conversationID)
		}
	}
	if subscribed, ok := g.subscriptions[connectionID]; ok {
		delete(subscribed, conversationID)
		if len(subscribed) == 0 {
			delete(g.subscriptions, connectionID)
		}
	}
}
