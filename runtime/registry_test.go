package runtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_One_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := newRecordingSink(uuid.NewString(), "alice")

	// Given no user is connected
	req.Zero(registry.Count())

	// When a user connects
	previous := registry.Register("alice", sink)

	// Then the user is reachable
	req.Nil(previous)
	req.Equal(1, registry.Count())
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal(sink, found)
}

func TestRegistry_Register_Second_Connection_Wins(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := newRecordingSink("c1", "alice")
	second := newRecordingSink("c2", "alice")

	// Given alice is connected from a first tab
	registry.Register("alice", first)

	// When she connects from a second tab
	previous := registry.Register("alice", second)

	// Then exactly one mapping remains, pointing to the newest connection
	req.Equal(first, previous)
	req.Equal(1, registry.Count())
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal("c2", found.ID())
}

func TestRegistry_Release_Superseded_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Register("alice", newRecordingSink("c1", "alice"))
	registry.Register("alice", newRecordingSink("c2", "alice"))

	// When the superseded connection goes away
	released := registry.Release("alice", "c1")

	// Then alice stays online through the newest one
	req.False(released)
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal("c2", found.ID())

	// And releasing the live one twice only succeeds once
	req.True(registry.Release("alice", "c2"))
	req.False(registry.Release("alice", "c2"))
	_, ok = registry.Lookup("alice")
	req.False(ok)
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Register("alice", newRecordingSink("c1", "alice"))
	registry.Register("bob", newRecordingSink("c2", "bob"))

	registry.Unregister("alice")
	// An absent user is a no-op
	registry.Unregister("alice")
	registry.Unregister("clara")

	req.Equal(1, registry.Count())
	req.Len(registry.Online(), 1)
	req.Equal("bob", registry.Online()[0].UserID())
}

func TestRegistry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		connectionID := uuid.NewString()
		go func() {
			defer wg.Done()
			registry.Register("alice", newRecordingSink(connectionID, "alice"))
		}()
		go func() {
			defer wg.Done()
			if sink, ok := registry.Lookup("alice"); ok {
				_ = sink.ID()
			}
		}()
		go func() {
			defer wg.Done()
			registry.Release("alice", connectionID)
		}()
	}
	wg.Wait()

	req.LessOrEqual(registry.Count(), 1)
}
