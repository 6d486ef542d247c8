package workers

import (
	"chat-hub/contract"
	"chat-hub/domain/event"
	"context"
	"sync"
)

var _ contract.Consumer = (*ActivityCounter)(nil)

// ActivityCounter is a permanent consumer counting conversation events by
// kind since the hub started. The counts are exposed with the hub stats.
type ActivityCounter struct {
	mu     sync.Mutex
	counts map[event.Kind]uint64
}

func NewActivityCounter() *ActivityCounter {
	return &ActivityCounter{counts: make(map[event.Kind]uint64)}
}

func (c *ActivityCounter) Consume(_ context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[e.Kind()]++
	return nil
}

func (c *ActivityCounter) Get(kind event.Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Snapshot returns a copy, safe to hand out.
func (c *ActivityCounter) Snapshot() map[event.Kind]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[event.Kind]uint64, len(c.counts))
	for kind, count := range c.counts {
		snapshot[kind] = count
	}
	return snapshot
}
