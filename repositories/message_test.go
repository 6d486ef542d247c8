package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newMessage(conversationID uuid.UUID, senderID string, body domain.Body, at time.Time) domain.Message {
	return domain.Message{ID: uuid.New(), ConversationID: conversationID, SenderID: senderID, Body: body, SentAt: at}
}

func TestConversationStore_InsertMessage_ReturnsProjection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, nil)
	seedUsers(t, store, domain.User{ID: "alice", DisplayName: "Alice"})
	conversation, _, err := store.CreateDirectConversation(ctx, "alice", "bob", time.Now())
	req.NoError(err)

	// When a message is inserted
	view, err := store.InsertMessage(ctx, newMessage(conversation.ID, "alice", domain.Text("hi"), time.Now()))

	// Then the sender name comes back with it
	req.NoError(err)
	req.Equal("Alice", view.SenderName)
	req.Equal(domain.Text("hi"), view.Body)
	req.False(view.IsRead())

	fetched, err := store.GetMessage(ctx, view.ID)
	req.NoError(err)
	req.Equal(view.ID, fetched.ID)
	req.Equal("Alice", fetched.SenderName)
}

func TestConversationStore_InsertMessage_MediaBodies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, nil)
	conversationID := uuid.New()

	image, err := store.InsertMessage(ctx, newMessage(conversationID, "alice", domain.ImageRef("/uploads/messages/a.png"), time.Now()))
	req.NoError(err)
	audio, err := store.InsertMessage(ctx, newMessage(conversationID, "alice", domain.AudioRef("/uploads/messages/a.webm"), time.Now()))
	req.NoError(err)

	fetched, err := store.GetMessage(ctx, image.ID)
	req.NoError(err)
	req.Equal(domain.MessageTypeImage, fetched.Body.Type())
	fetched, err = store.GetMessage(ctx, audio.ID)
	req.NoError(err)
	req.Equal(domain.AudioRef("/uploads/messages/a.webm"), fetched.Body)
}

func TestConversationStore_UpdateMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, nil)
	view, err := store.InsertMessage(ctx, newMessage(uuid.New(), "alice", domain.Text("hi"), time.Now()))
	req.NoError(err)

	t.Run("mutation is persisted", func(t *testing.T) {
		req := require.New(t)
		updated, err := store.UpdateMessage(ctx, view.ID, func(m *domain.Message) error {
			now := time.Now().UTC()
			m.Body = domain.Text("hello")
			m.EditedAt = &now
			return nil
		})
		req.NoError(err)
		req.True(updated.IsEdited())

		fetched, err := store.GetMessage(ctx, view.ID)
		req.NoError(err)
		req.Equal(domain.Text("hello"), fetched.Body)
	})

	t.Run("mutation error aborts the write", func(t *testing.T) {
		req := require.New(t)
		_, err := store.UpdateMessage(ctx, view.ID, func(m *domain.Message) error {
			m.Deleted = true
			return errors.ErrUnauthorized
		})
		req.ErrorIs(err, errors.ErrUnauthorized)

		fetched, err := store.GetMessage(ctx, view.ID)
		req.NoError(err)
		req.False(fetched.Deleted)
	})

	t.Run("identity cannot be rewritten", func(t *testing.T) {
		req := require.New(t)
		updated, err := store.UpdateMessage(ctx, view.ID, func(m *domain.Message) error {
			m.SenderID = "mallory"
			return nil
		})
		req.NoError(err)
		req.Equal("alice", updated.SenderID)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := store.UpdateMessage(ctx, uuid.New(), func(*domain.Message) error { return nil })
		require.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestConversationStore_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, nil)
	conversationID := uuid.New()
	at := time.Now().UTC()

	// Given bob sent two messages, clara one, alice one, and one of bob's is deleted
	fromBob1, err := store.InsertMessage(ctx, newMessage(conversationID, "bob", domain.Text("1"), at))
	req.NoError(err)
	fromBob2, err := store.InsertMessage(ctx, newMessage(conversationID, "bob", domain.Text("2"), at.Add(time.Second)))
	req.NoError(err)
	fromClara, err := store.InsertMessage(ctx, newMessage(conversationID, "clara", domain.Text("3"), at.Add(2*time.Second)))
	req.NoError(err)
	_, err = store.InsertMessage(ctx, newMessage(conversationID, "alice", domain.Text("4"), at.Add(3*time.Second)))
	req.NoError(err)
	deleted, err := store.InsertMessage(ctx, newMessage(conversationID, "bob", domain.Text("5"), at.Add(4*time.Second)))
	req.NoError(err)
	_, err = store.UpdateMessage(ctx, deleted.ID, func(m *domain.Message) error { m.Deleted = true; return nil })
	req.NoError(err)

	count, err := store.CountUnread(ctx, conversationID, "alice")
	req.NoError(err)
	req.Equal(3, count)

	// When alice reads the conversation
	flipped, err := store.MarkConversationRead(ctx, conversationID, "alice", at.Add(time.Minute))

	// Then only the live messages of others flipped
	req.NoError(err)
	req.ElementsMatch(
		[]uuid.UUID{fromBob1.ID, fromBob2.ID, fromClara.ID},
		lo.Map(flipped, func(m domain.Message, _ int) uuid.UUID { return m.ID }))
	for _, m := range flipped {
		req.True(m.IsRead())
	}

	// And a second pass flips nothing
	flipped, err = store.MarkConversationRead(ctx, conversationID, "alice", at.Add(2*time.Minute))
	req.NoError(err)
	req.Empty(flipped)
	count, err = store.CountUnread(ctx, conversationID, "alice")
	req.NoError(err)
	req.Zero(count)
}

func TestConversationStore_ListMessages_PagesNewestFirstWithoutDeleted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t, lo.ToPtr(2))
	conversationID := uuid.New()
	at := time.Now().UTC()

	var ids []uuid.UUID
	for i, content := range []string{"a", "b", "c", "d", "e"} {
		view, err := store.InsertMessage(ctx, newMessage(conversationID, "alice", domain.Text(content), at.Add(time.Duration(i)*time.Second)))
		req.NoError(err)
		ids = append(ids, view.ID)
	}
	// Given "d" is deleted
	_, err := store.UpdateMessage(ctx, ids[3], func(m *domain.Message) error { m.Deleted = true; return nil })
	req.NoError(err)
	// And a message of another conversation exists
	_, err = store.InsertMessage(ctx, newMessage(uuid.New(), "alice", domain.Text("x"), at))
	req.NoError(err)

	var contents []string
	var cursor *string
	for page := 0; page < 5; page++ {
		views, next, err := store.ListMessages(ctx, conversationID, cursor)
		req.NoError(err)
		if len(views) == 0 && (next == nil || *next == "" || (cursor != nil && *next == *cursor)) {
			break
		}
		for _, v := range views {
			contents = append(contents, v.Body.Content())
		}
		cursor = next
	}

	req.Equal([]string{"e", "c", "b", "a"}, contents)

	last, err := store.LastMessage(ctx, conversationID)
	req.NoError(err)
	req.NotNil(last)
	req.Equal("e", last.Body.Content())
}

func TestConversationStore_LastMessage_Empty(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t, nil)

	last, err := store.LastMessage(context.Background(), uuid.New())

	req.NoError(err)
	req.Nil(last)
}
