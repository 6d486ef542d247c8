package search

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"testing"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewIndex(logs.GetLoggerFromLevel(slog.LevelDebug), writer)
}

func hitIDs(hits []Hit) []uuid.UUID {
	return lo.Map(hits, func(h Hit, _ int) uuid.UUID { return h.MessageID })
}

func TestIndex_Search_Scoped_To_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newTestIndex(t)
	conversationID, other := uuid.New(), uuid.New()
	first, second, elsewhere := uuid.New(), uuid.New(), uuid.New()

	// Given two conversations talk about badgers
	req.NoError(index.Consume(ctx, event.ReceiveMessage{ID: first, ConversationID: conversationID, Type: domain.MessageTypeText,
		Content: "The badger is sleeping in the garden"}))
	req.NoError(index.Consume(ctx, event.ReceiveMessage{ID: second, ConversationID: conversationID, Type: domain.MessageTypeText,
		Content: "See you tomorrow at the station"}))
	req.NoError(index.Consume(ctx, event.ReceiveMessage{ID: elsewhere, ConversationID: other, Type: domain.MessageTypeText,
		Content: "A badger crossed the road"}))

	// When searching one conversation
	hits, err := index.Search(ctx, conversationID, "badger", 10)

	// Then only its messages are returned
	req.NoError(err)
	req.Equal([]uuid.UUID{first}, hitIDs(hits))
}

func TestIndex_Edit_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newTestIndex(t)
	conversationID, messageID := uuid.New(), uuid.New()

	req.NoError(index.Consume(ctx, event.ReceiveMessage{ID: messageID, ConversationID: conversationID, Type: domain.MessageTypeText,
		Content: "hi there"}))

	// When the message is edited
	req.NoError(index.Consume(ctx, event.MessageEdited{ID: messageID, ConversationID: conversationID, Content: "hello world", IsEdited: true}))

	// Then only the new content matches
	hits, err := index.Search(ctx, conversationID, "there", 10)
	req.NoError(err)
	req.Empty(hits)
	hits, err = index.Search(ctx, conversationID, "hello", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{messageID}, hitIDs(hits))

	// When it is deleted
	req.NoError(index.Consume(ctx, event.MessageDeleted{ID: messageID, ConversationID: conversationID}))

	// Then it is gone
	hits, err = index.Search(ctx, conversationID, "hello", 10)
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Ignores_Media_And_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newTestIndex(t)
	conversationID := uuid.New()

	req.NoError(index.Consume(ctx, event.ReceiveMessage{ID: uuid.New(), ConversationID: conversationID, Type: domain.MessageTypeImage,
		Content: "/uploads/messages/badger.png"}))
	req.NoError(index.Consume(ctx, event.UserOnline{UserID: "alice"}))

	hits, err := index.Search(ctx, conversationID, "badger", 10)
	req.NoError(err)
	req.Empty(hits)
}
