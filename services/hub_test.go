package services

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mocks"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHub_SendMessage_Direct_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	h.hub.JoinConversation(bob, conversationID)

	// When alice says hi
	err := h.hub.SendMessage(ctx, alice, conversationID, "  hi ")

	// Then bob receives the message, unread in his list
	req.NoError(err)
	received := ofKind[event.ReceiveMessage](sinkOf(bob))
	req.Len(received, 1)
	req.Equal("hi", received[0].Content)
	req.Equal(domain.MessageTypeText, received[0].Type)
	req.Equal("alice", received[0].SenderID)
	req.Equal("name-alice", received[0].SenderName)
	req.False(received[0].IsRead)

	bobList := ofKind[event.UpdateConversationList](sinkOf(bob))
	req.Len(bobList, 1)
	req.True(bobList[0].IsUnread)
	req.Equal("hi", bobList[0].LastMessage)

	// And alice gets her own list update, read
	aliceList := ofKind[event.UpdateConversationList](sinkOf(alice))
	req.Len(aliceList, 1)
	req.False(aliceList[0].IsUnread)
}

func TestHub_SendMessage_Only_Participants_Receive(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob", "clara")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	clara := h.connect(t, "clara")
	// Even when clara joined the ephemeral group
	h.hub.JoinConversation(clara, conversationID)

	req.NoError(h.hub.SendMessage(ctx, alice, conversationID, "secret"))

	req.Len(ofKind[event.ReceiveMessage](sinkOf(bob)), 1)
	req.Len(ofKind[event.ReceiveMessage](sinkOf(alice)), 1)
	req.Empty(sinkOf(clara).Received())
}

func TestHub_SendMessage_Outsider_Is_Dropped_Silently(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob", "mallory")
	conversationID := h.direct(t, "alice", "bob")
	bob := h.connect(t, "bob")
	mallory := h.connect(t, "mallory")

	// When a non participant posts
	err := h.hub.SendMessage(ctx, mallory, conversationID, "let me in")

	// Then nothing is surfaced, delivered or stored
	req.NoError(err)
	req.Empty(sinkOf(bob).Received())
	history, _, err := h.conversations.History(ctx, conversationID, "bob", nil)
	req.NoError(err)
	req.Empty(history)

	// And an unknown conversation looks the same
	req.NoError(h.hub.SendMessage(ctx, mallory, uuid.New(), "hello?"))
}

func TestHub_SendMessage_Invalid_Content_Is_Rejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "blank", content: "   ", want: errors.ErrBlankContent},
		{name: "too long", content: strings.Repeat("é", 501), want: errors.ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := h.hub.SendMessage(ctx, alice, conversationID, tt.content)
			req.ErrorIs(err, errors.ErrInvalidArgument)
			req.ErrorIs(err, tt.want)
			req.Empty(sinkOf(bob).Received())
		})
	}
}

func TestHub_SendMessage_Offline_Recipient(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")

	// When bob is offline
	err := h.hub.SendMessage(ctx, alice, conversationID, "are you there?")

	// Then nothing fails and the message waits in the store
	req.NoError(err)
	history, _, err := h.conversations.History(ctx, conversationID, "bob", nil)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(domain.Text("are you there?"), history[0].Body)
	req.False(history[0].IsRead())
}

func TestHub_EditMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	req.NoError(h.hub.SendMessage(ctx, alice, conversationID, "hi"))
	messageID := ofKind[event.ReceiveMessage](sinkOf(bob))[0].ID
	sinkOf(alice).Reset()
	sinkOf(bob).Reset()

	// When bob tries to edit alice's message
	req.NoError(h.hub.EditMessage(ctx, bob, messageID, "pwned"))

	// Then nothing happens
	req.Empty(sinkOf(alice).Received())
	req.Empty(sinkOf(bob).Received())
	stored, err := h.store.GetMessage(ctx, messageID)
	req.NoError(err)
	req.Equal(domain.Text("hi"), stored.Body)
	req.False(stored.IsEdited())

	// When alice edits it with a blank content
	req.ErrorIs(h.hub.EditMessage(ctx, alice, messageID, " "), errors.ErrInvalidArgument)

	// When alice edits it for real
	req.NoError(h.hub.EditMessage(ctx, alice, messageID, "hello"))

	// Then both receive the edition
	for _, c := range []Caller{alice, bob} {
		edited := ofKind[event.MessageEdited](sinkOf(c))
		req.Len(edited, 1)
		req.Equal("hello", edited[0].Content)
		req.True(edited[0].IsEdited)
		req.Equal(messageID, edited[0].ID)
		req.False(edited[0].EditedAt.IsZero())
	}
}

func TestHub_DeleteMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	req.NoError(h.hub.SendMessage(ctx, alice, conversationID, "oops"))
	messageID := ofKind[event.ReceiveMessage](sinkOf(bob))[0].ID
	sinkOf(alice).Reset()
	sinkOf(bob).Reset()

	// When bob tries to delete it
	req.NoError(h.hub.DeleteMessage(ctx, bob, messageID))
	req.Empty(sinkOf(alice).Received())

	// When alice deletes it, twice
	req.NoError(h.hub.DeleteMessage(ctx, alice, messageID))
	req.NoError(h.hub.DeleteMessage(ctx, alice, messageID))

	// Then one deletion is announced to both
	req.Equal([]event.Event{event.MessageDeleted{ID: messageID, ConversationID: conversationID}}, sinkOf(bob).Received())
	req.Equal([]event.Event{event.MessageDeleted{ID: messageID, ConversationID: conversationID}}, sinkOf(alice).Received())

	// And the message leaves the active views but stays stored
	history, _, err := h.conversations.History(ctx, conversationID, "bob", nil)
	req.NoError(err)
	req.Empty(history)
	stored, err := h.store.GetMessage(ctx, messageID)
	req.NoError(err)
	req.True(stored.Deleted)

	// And a deleted message accepts no edit nor read
	req.NoError(h.hub.EditMessage(ctx, alice, messageID, "back"))
	req.NoError(h.hub.MarkMessageAsRead(ctx, bob, messageID))
	req.Len(sinkOf(alice).Received(), 1)
	req.Len(sinkOf(bob).Received(), 1)
}

func TestHub_MarkMessageAsRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob", "mallory")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	mallory := h.connect(t, "mallory")
	req.NoError(h.hub.SendMessage(ctx, alice, conversationID, "hi"))
	messageID := ofKind[event.ReceiveMessage](sinkOf(bob))[0].ID
	sinkOf(alice).Reset()
	sinkOf(bob).Reset()

	// When alice marks her own message read
	req.NoError(h.hub.MarkMessageAsRead(ctx, alice, messageID))

	// Then nothing changes
	req.Empty(sinkOf(alice).Received())
	stored, err := h.store.GetMessage(ctx, messageID)
	req.NoError(err)
	req.False(stored.IsRead())

	// When an outsider tries
	req.NoError(h.hub.MarkMessageAsRead(ctx, mallory, messageID))
	req.Empty(sinkOf(alice).Received())

	// When bob reads it twice
	req.NoError(h.hub.MarkMessageAsRead(ctx, bob, messageID))
	req.NoError(h.hub.MarkMessageAsRead(ctx, bob, messageID))

	// Then alice gets one receipt
	receipts := ofKind[event.MessageRead](sinkOf(alice))
	req.Len(receipts, 1)
	req.Equal(messageID, receipts[0].ID)
	req.Equal("bob", receipts[0].ReaderID)
	req.Empty(sinkOf(bob).Received())

	stored, err = h.store.GetMessage(ctx, messageID)
	req.NoError(err)
	req.True(stored.IsRead())
	req.NotNil(stored.ReadAt)
}

func TestHub_MarkConversationAsRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob", "clara")
	group, err := h.conversations.CreateGroup(ctx, "alice", "team", []string{"bob", "clara"})
	req.NoError(err)
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	clara := h.connect(t, "clara")

	// Given alice sent two messages, bob one, clara one
	req.NoError(h.hub.SendMessage(ctx, alice, group.ID, "one"))
	req.NoError(h.hub.SendMessage(ctx, alice, group.ID, "two"))
	req.NoError(h.hub.SendMessage(ctx, bob, group.ID, "three"))
	req.NoError(h.hub.SendMessage(ctx, clara, group.ID, "four"))
	for _, c := range []Caller{alice, bob, clara} {
		sinkOf(c).Reset()
	}

	// When clara reads the conversation
	req.NoError(h.hub.MarkConversationAsRead(ctx, clara, group.ID))

	// Then each sender gets one batched receipt with its own messages
	aliceReceipts := ofKind[event.MessagesRead](sinkOf(alice))
	req.Len(aliceReceipts, 1)
	req.Len(aliceReceipts[0].MessageIDs, 2)
	req.Equal("clara", aliceReceipts[0].ReaderID)
	bobReceipts := ofKind[event.MessagesRead](sinkOf(bob))
	req.Len(bobReceipts, 1)
	req.Len(bobReceipts[0].MessageIDs, 1)

	// And clara gets the confirmation
	confirmations := ofKind[event.ConversationRead](sinkOf(clara))
	req.Len(confirmations, 1)
	req.Equal(3, confirmations[0].Count)
	req.Empty(ofKind[event.MessagesRead](sinkOf(clara)))

	// When she reads it again
	req.NoError(h.hub.MarkConversationAsRead(ctx, clara, group.ID))

	// Then no more receipts are sent
	req.Len(ofKind[event.MessagesRead](sinkOf(alice)), 1)
	req.Len(ofKind[event.MessagesRead](sinkOf(bob)), 1)
	confirmations = ofKind[event.ConversationRead](sinkOf(clara))
	req.Len(confirmations, 2)
	req.Zero(confirmations[1].Count)
}

func TestHub_Typing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob", "clara")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	clara := h.connect(t, "clara")
	h.hub.JoinConversation(alice, conversationID)
	h.hub.JoinConversation(bob, conversationID)

	// When alice types
	h.hub.StartTyping(ctx, alice, conversationID)
	h.hub.StopTyping(ctx, alice, conversationID)

	// Then only the other joined connections are told
	req.Equal([]event.Event{
		event.UserTyping{ConversationID: conversationID, UserID: "alice", DisplayName: "name-alice"},
		event.UserStoppedTyping{ConversationID: conversationID, UserID: "alice"},
	}, sinkOf(bob).Received())
	req.Empty(sinkOf(alice).Received())
	req.Empty(sinkOf(clara).Received())

	// When clara, who never joined, types
	h.hub.StartTyping(ctx, clara, conversationID)
	req.Len(sinkOf(bob).Received(), 2)

	// When bob leaves the group
	h.hub.LeaveConversation(bob, conversationID)
	h.hub.StartTyping(ctx, alice, conversationID)
	req.Len(sinkOf(bob).Received(), 2)
}

func TestHub_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	bob := h.connect(t, "bob")

	// When alice connects
	alice := Caller{Conn: newRecordingSink("alice"), DisplayName: "name-alice"}
	h.hub.Connect(ctx, alice)

	// Then bob is told, alice is not told about herself
	req.Equal([]event.Event{event.UserOnline{UserID: "alice"}}, sinkOf(bob).Received())
	req.Empty(sinkOf(alice).Received())
	user, err := h.store.GetUser(ctx, "alice")
	req.NoError(err)
	req.NotNil(user.LastSeenAt)

	// When alice opens a second tab
	secondTab := Caller{Conn: newRecordingSink("alice"), DisplayName: "name-alice"}
	h.hub.Connect(ctx, secondTab)

	// Then the registry only knows the newest one and nobody is told again
	current, ok := h.registry.Lookup("alice")
	req.True(ok)
	req.Equal(secondTab.Conn.ID(), current.ID())
	req.Len(sinkOf(bob).Received(), 1)

	// When the first tab closes, alice stays online
	h.hub.Disconnect(ctx, alice)
	req.Len(sinkOf(bob).Received(), 1)
	_, ok = h.registry.Lookup("alice")
	req.True(ok)

	// When the second tab closes twice
	h.hub.Disconnect(ctx, secondTab)
	h.hub.Disconnect(ctx, secondTab)

	// Then bob is told once that alice is offline
	offline := ofKind[event.UserOffline](sinkOf(bob))
	req.Len(offline, 1)
	req.Equal("alice", offline[0].UserID)
	req.False(offline[0].LastSeenAt.IsZero())
	_, ok = h.registry.Lookup("alice")
	req.False(ok)
}

func TestHub_Disconnect_Leaves_Groups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	h.hub.JoinConversation(alice, conversationID)

	h.hub.Disconnect(ctx, alice)

	req.False(h.groups.IsMember(alice.Conn.ID(), conversationID))
}

func TestHub_SendVoiceMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	h.seedUsers(t, "alice", "bob")
	conversationID := h.direct(t, "alice", "bob")
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")

	// Given the upload service stored a recording
	voice, err := h.store.InsertMessage(ctx, domain.Message{
		ID: uuid.New(), ConversationID: conversationID, SenderID: "alice",
		Body: domain.AudioRef("/uploads/messages/voice.webm"), SentAt: time.Now().UTC(),
	})
	req.NoError(err)

	// When bob tries to relay it, or alice relays it as an image
	req.NoError(h.hub.SendVoiceMessage(ctx, bob, conversationID, voice.ID))
	req.ErrorIs(h.hub.SendImageMessage(ctx, alice, conversationID, voice.ID), errors.ErrInvalidArgument)
	req.NoError(h.hub.SendVoiceMessage(ctx, alice, uuid.New(), voice.ID))
	req.Empty(sinkOf(bob).Received())

	// When alice relays it
	req.NoError(h.hub.SendVoiceMessage(ctx, alice, conversationID, voice.ID))

	// Then bob receives a reference, never the bytes
	received := ofKind[event.ReceiveMessage](sinkOf(bob))
	req.Len(received, 1)
	req.Equal(domain.MessageTypeAudio, received[0].Type)
	req.Equal("/uploads/messages/voice.webm", received[0].Content)
	list := ofKind[event.UpdateConversationList](sinkOf(bob))
	req.Len(list, 1)
	req.Equal(domain.MessageTypeAudio, list[0].Type)
}

func TestHub_Store_Failure_Is_Internal(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	groups := mocks.NewMockIGroupTracker(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(log, groups, dispatcher, nil, NewMessageService(log, store, nil, 0))
	conversationID := uuid.New()

	// Given the store is down
	store.EXPECT().IsParticipant(gomock.Any(), conversationID, "alice").
		Return(false, fmt.Errorf("disk on fire")).Times(1)

	err := hub.SendMessage(context.Background(), Caller{Conn: newRecordingSink("alice")}, conversationID, "hi")

	// Then the caller gets a generic rejection and nothing is dispatched
	req.ErrorIs(err, errors.ErrInternal)
	req.NotContains(err.Error(), "disk on fire")
}

func TestHub_Fanout_Failure_Does_Not_Fail_Operation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	groups := mocks.NewMockIGroupTracker(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(log, groups, dispatcher, nil, NewMessageService(log, store, nil, 0))
	conversationID := uuid.New()

	store.EXPECT().IsParticipant(gomock.Any(), conversationID, "alice").Return(true, nil)
	store.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m domain.Message) (domain.MessageView, error) {
			return domain.MessageView{Message: m, SenderName: "Alice"}, nil
		})
	// Given participants cannot be resolved at fan-out time
	dispatcher.EXPECT().ToConversation(gomock.Any(), conversationID, gomock.Any()).
		Return(fmt.Errorf("store timeout")).Times(2)

	err := hub.SendMessage(context.Background(), Caller{Conn: newRecordingSink("alice")}, conversationID, "hi")

	req.NoError(err)
}
