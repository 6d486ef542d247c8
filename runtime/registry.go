package runtime

import (
	"chat-hub/contract"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry maps every online user to the single connection that currently
// receives its events. A new connection for the same user takes over the
// mapping, the previous one simply stops being addressed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.EventSink // map user -> Sink
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]contract.EventSink)}
}

// Register records sink as the active connection of userID and returns the
// connection it replaced, nil when the user was offline.
func (r *Registry) Register(userID string, sink contract.EventSink) contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[userID]
	r.sessions[userID] = sink
	return previous
}

// Unregister is the unconditional removal, a no-op for an unknown user.
// Session teardown goes through Release.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Release removes the mapping only if it still points to connectionID.
// A connection that has been superseded by a newer one must not take the
// user offline when it goes away.
func (r *Registry) Release(userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.ID() != connectionID {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[userID]
	return sink, ok
}

// Online returns a snapshot, callers can push to it without holding the lock.
func (r *Registry) Online() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
