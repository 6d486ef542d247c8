package services

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Caller is the authenticated connection an inbound operation comes from.
type Caller struct {
	Conn        contract.EventSink
	DisplayName string
}

func (c Caller) UserID() string { return c.Conn.UserID() }

// Hub is the inbound boundary of the delivery core. It runs one operation
// per inbound client frame, concurrently with the others.
//
// Error policy:
//   - InvalidArgument is returned, the transport answers with a rejection
//     when the frame expects an answer.
//   - Unauthorized, NotFound and deleted messages are dropped silently so
//     that nothing leaks about what exists.
//   - Store failures are logged and returned as ErrInternal.
//
// Fan-out never fails an operation: once a mutation is persisted, delivery
// problems are only logged.
type Hub struct {
	log        *slog.Logger
	groups     contract.IGroupTracker
	dispatcher contract.IDispatcher
	presence   *PresenceService
	messages   IMessageService
}

func NewHub(log *slog.Logger, groups contract.IGroupTracker, dispatcher contract.IDispatcher,
	presence *PresenceService, messages IMessageService) *Hub {
	return &Hub{log: log, groups: groups, dispatcher: dispatcher, presence: presence, messages: messages}
}

func (h *Hub) Connect(ctx context.Context, caller Caller) {
	h.log.Info("Connected", "user_id", caller.UserID(), "connection_id", caller.Conn.ID())
	h.presence.Connected(ctx, caller.Conn)
}

// Disconnect is safe to call several times for the same connection.
func (h *Hub) Disconnect(ctx context.Context, caller Caller) {
	h.groups.Drop(caller.Conn)
	if h.presence.Disconnected(ctx, caller.Conn) {
		h.log.Info("Disconnected", "user_id", caller.UserID(), "connection_id", caller.Conn.ID())
	}
}

func (h *Hub) SendMessage(ctx context.Context, caller Caller, conversationID uuid.UUID, content string) error {
	view, err := h.messages.Send(ctx, conversationID, caller.UserID(), content)
	if err != nil {
		return h.reject("SendMessage", caller, err)
	}
	h.announce(ctx, view)
	return nil
}

func (h *Hub) SendImageMessage(ctx context.Context, caller Caller, conversationID, messageID uuid.UUID) error {
	return h.relay(ctx, "SendImageMessage", caller, conversationID, messageID, domain.MessageTypeImage)
}

func (h *Hub) SendVoiceMessage(ctx context.Context, caller Caller, conversationID, messageID uuid.UUID) error {
	return h.relay(ctx, "SendVoiceMessage", caller, conversationID, messageID, domain.MessageTypeAudio)
}

func (h *Hub) relay(ctx context.Context, op string, caller Caller, conversationID, messageID uuid.UUID, kind domain.MessageType) error {
	view, err := h.messages.Relay(ctx, conversationID, messageID, caller.UserID(), kind)
	if err != nil {
		return h.reject(op, caller, err)
	}
	h.announce(ctx, view)
	return nil
}

func (h *Hub) JoinConversation(caller Caller, conversationID uuid.UUID) {
	h.groups.Join(caller.Conn, conversationID)
}

func (h *Hub) LeaveConversation(caller Caller, conversationID uuid.UUID) {
	h.groups.Leave(caller.Conn, conversationID)
}

// StartTyping relays to the other connections joined to the conversation.
// A connection that did not join is ignored.
func (h *Hub) StartTyping(ctx context.Context, caller Caller, conversationID uuid.UUID) {
	if !h.groups.IsMember(caller.Conn.ID(), conversationID) {
		h.log.Debug("Typing outside of a joined conversation", "user_id", caller.UserID(), "conversation_id", conversationID)
		return
	}
	h.dispatcher.ToGroup(ctx, conversationID, event.UserTyping{
		ConversationID: conversationID,
		UserID:         caller.UserID(),
		DisplayName:    caller.DisplayName,
	}, caller.Conn.ID())
}

func (h *Hub) StopTyping(ctx context.Context, caller Caller, conversationID uuid.UUID) {
	if !h.groups.IsMember(caller.Conn.ID(), conversationID) {
		return
	}
	h.dispatcher.ToGroup(ctx, conversationID, event.UserStoppedTyping{
		ConversationID: conversationID,
		UserID:         caller.UserID(),
	}, caller.Conn.ID())
}

func (h *Hub) EditMessage(ctx context.Context, caller Caller, messageID uuid.UUID, content string) error {
	view, err := h.messages.Edit(ctx, messageID, caller.UserID(), content)
	if err != nil {
		return h.reject("EditMessage", caller, err)
	}
	h.toConversation(ctx, view.ConversationID, func(string) event.Event {
		return event.NewMessageEdited(view)
	})
	return nil
}

func (h *Hub) DeleteMessage(ctx context.Context, caller Caller, messageID uuid.UUID) error {
	view, deleted, err := h.messages.Delete(ctx, messageID, caller.UserID())
	if err != nil {
		return h.reject("DeleteMessage", caller, err)
	}
	if !deleted {
		return nil
	}
	h.toConversation(ctx, view.ConversationID, func(string) event.Event {
		return event.MessageDeleted{ID: view.ID, ConversationID: view.ConversationID}
	})
	return nil
}

// MarkMessageAsRead notifies the original sender only.
func (h *Hub) MarkMessageAsRead(ctx context.Context, caller Caller, messageID uuid.UUID) error {
	view, read, err := h.messages.MarkRead(ctx, messageID, caller.UserID())
	if err != nil {
		return h.reject("MarkMessageAsRead", caller, err)
	}
	if !read {
		return nil
	}
	h.dispatcher.ToUser(ctx, view.SenderID, event.MessageRead{
		ID:             view.ID,
		ConversationID: view.ConversationID,
		ReaderID:       caller.UserID(),
		ReadAt:         *view.ReadAt,
	})
	return nil
}

// MarkConversationAsRead sends one batched receipt per original sender and
// confirms the count to the reader.
func (h *Hub) MarkConversationAsRead(ctx context.Context, caller Caller, conversationID uuid.UUID) error {
	batch, err := h.messages.MarkConversationRead(ctx, conversationID, caller.UserID())
	if err != nil {
		return h.reject("MarkConversationAsRead", caller, err)
	}
	for senderID, messageIDs := range batch.MessageIDsBySender {
		h.dispatcher.ToUser(ctx, senderID, event.MessagesRead{
			ConversationID: conversationID,
			ReaderID:       caller.UserID(),
			MessageIDs:     messageIDs,
			ReadAt:         batch.ReadAt,
		})
	}
	h.dispatcher.ToUser(ctx, caller.UserID(), event.ConversationRead{
		ConversationID: conversationID,
		Count:          batch.Count(),
		ReadAt:         batch.ReadAt,
	})
	return nil
}

// announce delivers a new message and the matching conversation list
// update, unread for everybody but the sender.
func (h *Hub) announce(ctx context.Context, view domain.MessageView) {
	h.toConversation(ctx, view.ConversationID, func(string) event.Event {
		return event.NewReceiveMessage(view)
	})
	h.toConversation(ctx, view.ConversationID, func(recipientID string) event.Event {
		return event.NewUpdateConversationList(view, recipientID)
	})
}

func (h *Hub) toConversation(ctx context.Context, conversationID uuid.UUID, build func(string) event.Event) {
	if err := h.dispatcher.ToConversation(ctx, conversationID, build); err != nil {
		h.log.Warn("Fan-out aborted", "conversation_id", conversationID, "error", err)
	}
}

func (h *Hub) reject(op string, caller Caller, err error) error {
	switch {
	case errors.Is(err, errors.ErrInvalidArgument):
		h.log.Debug("Operation rejected", "op", op, "user_id", caller.UserID(), "error", err)
		return err
	case errors.Is(err, errors.ErrUnauthorized),
		errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrMessageDeleted):
		h.log.Debug("Operation dropped", "op", op, "user_id", caller.UserID(), "error", err)
		return nil
	default:
		h.log.Error("Operation failed", "op", op, "user_id", caller.UserID(), "error", err)
		return fmt.Errorf("%w: %s", errors.ErrInternal, op)
	}
}
