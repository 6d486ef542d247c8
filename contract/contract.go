//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Consumer receives events. Permanent consumers (search index, ...) are fed
// by the EventFanout worker.
type Consumer interface {
	Consume(ctx context.Context, e event.Event) error
}

// EventSink is a live connection handle.
// Consume must not block on a slow peer.
type EventSink interface {
	Consumer
	ID() string
	UserID() string
}

// IRegistry maps a user to its single active connection.
type IRegistry interface {
	Register(userID string, sink EventSink) EventSink
	// Unregister drops the user's mapping whatever connection it points to.
	// Connection teardown uses Release instead, so that a superseded
	// connection cannot take the user offline.
	Unregister(userID string)
	Release(userID, connectionID string) bool
	Lookup(userID string) (EventSink, bool)
	Online() []EventSink
	Count() int
}

// IGroupTracker holds the ephemeral per-conversation connection sets used
// for typing signals.
type IGroupTracker interface {
	Join(sink EventSink, conversationID uuid.UUID)
	Leave(sink EventSink, conversationID uuid.UUID)
	IsMember(connectionID string, conversationID uuid.UUID) bool
	Members(conversationID uuid.UUID) []EventSink
	Drop(sink EventSink)
}

// IDispatcher pushes events to live connections. Failures are logged by the
// implementation and never returned per recipient.
type IDispatcher interface {
	ToConversation(ctx context.Context, conversationID uuid.UUID, build func(recipientID string) event.Event) error
	ToUser(ctx context.Context, userID string, e event.Event)
	ToGroup(ctx context.Context, conversationID uuid.UUID, e event.Event, exceptConnectionID string)
	Broadcast(ctx context.Context, e event.Event, exceptUserID string)
}

// IConversationStore is the durable store the core depends on.
// Every method is atomic on its own; none spans several calls.
type IConversationStore interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error

	// CreateDirectConversation returns the existing conversation of the
	// unordered pair when there is one, created=false in that case.
	CreateDirectConversation(ctx context.Context, creatorID, partnerID string, at time.Time) (domain.Conversation, bool, error)
	CreateGroupConversation(ctx context.Context, creatorID, name string, memberIDs []string, at time.Time) (domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]string, error)
	ConversationIDsForUser(ctx context.Context, userID string) ([]uuid.UUID, error)

	InsertMessage(ctx context.Context, msg domain.Message) (domain.MessageView, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (domain.MessageView, error)
	// UpdateMessage runs mutate inside a single transaction; an error from
	// mutate aborts the write and is returned as is.
	UpdateMessage(ctx context.Context, messageID uuid.UUID, mutate func(*domain.Message) error) (domain.MessageView, error)
	// MarkConversationRead flips every unread, non-deleted message not sent
	// by readerID and returns the flipped messages.
	MarkConversationRead(ctx context.Context, conversationID uuid.UUID, readerID string, at time.Time) ([]domain.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, cursor *string) ([]domain.MessageView, *string, error)
	LastMessage(ctx context.Context, conversationID uuid.UUID) (*domain.MessageView, error)
	CountUnread(ctx context.Context, conversationID uuid.UUID, readerID string) (int, error)
}
