package services

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// recordingSink stands for a live connection.
type recordingSink struct {
	id     string
	userID string

	mu     sync.Mutex
	events []event.Event
}

func newRecordingSink(userID string) *recordingSink {
	return &recordingSink{id: uuid.NewString(), userID: userID}
}

func (s *recordingSink) ID() string     { return s.id }
func (s *recordingSink) UserID() string { return s.userID }

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Received() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *recordingSink) Kinds() []event.Kind {
	return lo.Map(s.Received(), func(e event.Event, _ int) event.Kind { return e.Kind() })
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func ofKind[T event.Event](s *recordingSink) []T {
	return lo.FilterMap(s.Received(), func(e event.Event, _ int) (T, bool) {
		evt, ok := e.(T)
		return evt, ok
	})
}

type harness struct {
	store         *repositories.ConversationStore
	registry      *runtime.Registry
	groups        *runtime.GroupTracker
	messages      *MessageService
	conversations *ConversationService
	hub           *Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := repositories.NewConversationStore(db, log, lo.ToPtr(50))
	registry := runtime.NewRegistry()
	groups := runtime.NewGroupTracker()
	dispatcher := runtime.NewDispatcher(log, store, registry, groups, nil)
	messages := NewMessageService(log, store, nil, 500)
	presence := NewPresenceService(log, store, registry, dispatcher)

	return &harness{
		store:         store,
		registry:      registry,
		groups:        groups,
		messages:      messages,
		conversations: NewConversationService(log, store, nil),
		hub:           NewHub(log, groups, dispatcher, presence, messages),
	}
}

func (h *harness) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.store.CreateUser(context.Background(), domain.User{
			ID: id, DisplayName: "name-" + id, CreatedAt: time.Now().UTC(),
		}))
	}
}

// connect opens a live connection for the user and drops the presence
// events it caused on the other connections.
func (h *harness) connect(t *testing.T, userID string) Caller {
	t.Helper()
	caller := Caller{Conn: newRecordingSink(userID), DisplayName: "name-" + userID}
	h.hub.Connect(context.Background(), caller)
	for _, sink := range h.registry.Online() {
		sink.(*recordingSink).Reset()
	}
	return caller
}

func (h *harness) direct(t *testing.T, a, b string) uuid.UUID {
	t.Helper()
	conversation, _, err := h.conversations.StartDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conversation.ID
}

func sinkOf(c Caller) *recordingSink {
	return c.Conn.(*recordingSink)
}
