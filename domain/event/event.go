// Package event defines the events pushed to live connections.
// Each event carries the minimal payload a client needs to render it; media
// messages carry a reference, never inline bytes.
package event

import (
	"chat-hub/domain"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindUserOnline             Kind = "UserOnline"
	KindUserOffline            Kind = "UserOffline"
	KindReceiveMessage         Kind = "ReceiveMessage"
	KindUpdateConversationList Kind = "UpdateConversationList"
	KindUserTyping             Kind = "UserTyping"
	KindUserStoppedTyping      Kind = "UserStoppedTyping"
	KindMessageEdited          Kind = "MessageEdited"
	KindMessageDeleted         Kind = "MessageDeleted"
	KindMessageRead            Kind = "MessageRead"
	KindMessagesRead           Kind = "MessagesRead"
	KindConversationRead       Kind = "ConversationRead"
)

type Event interface {
	Kind() Kind
}

type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) Kind() Kind { return KindUserOnline }

type UserOffline struct {
	UserID     string    `json:"userId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

func (UserOffline) Kind() Kind { return KindUserOffline }

type ReceiveMessage struct {
	ID             uuid.UUID          `json:"id"`
	ConversationID uuid.UUID          `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	Type           domain.MessageType `json:"type"`
	Content        string             `json:"content"`
	SentAt         time.Time          `json:"sentAt"`
	IsRead         bool               `json:"isRead"`
}

func (ReceiveMessage) Kind() Kind { return KindReceiveMessage }

// UpdateConversationList is built per recipient: IsUnread is false for the
// sender and true for everybody else.
type UpdateConversationList struct {
	ConversationID uuid.UUID          `json:"conversationId"`
	LastMessage    string             `json:"lastMessage"`
	Type           domain.MessageType `json:"type"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	SentAt         time.Time          `json:"sentAt"`
	IsUnread       bool               `json:"isUnread"`
}

func (UpdateConversationList) Kind() Kind { return KindUpdateConversationList }

type UserTyping struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         string    `json:"userId"`
	DisplayName    string    `json:"displayName"`
}

func (UserTyping) Kind() Kind { return KindUserTyping }

type UserStoppedTyping struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         string    `json:"userId"`
}

func (UserStoppedTyping) Kind() Kind { return KindUserStoppedTyping }

type MessageEdited struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Content        string    `json:"content"`
	IsEdited       bool      `json:"isEdited"`
	EditedAt       time.Time `json:"editedAt"`
}

func (MessageEdited) Kind() Kind { return KindMessageEdited }

type MessageDeleted struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
}

func (MessageDeleted) Kind() Kind { return KindMessageDeleted }

// MessageRead is the read receipt sent to the original sender.
type MessageRead struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

func (MessageRead) Kind() Kind { return KindMessageRead }

// MessagesRead is the batched read receipt, one per original sender.
type MessagesRead struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	ReaderID       string      `json:"readerId"`
	MessageIDs     []uuid.UUID `json:"messageIds"`
	ReadAt         time.Time   `json:"readAt"`
}

func (MessagesRead) Kind() Kind { return KindMessagesRead }

// ConversationRead tells the reader's own connection that the batch landed.
type ConversationRead struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Count          int       `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

func (ConversationRead) Kind() Kind { return KindConversationRead }

func NewReceiveMessage(v domain.MessageView) ReceiveMessage {
	return ReceiveMessage{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.SenderID,
		SenderName:     v.SenderName,
		Type:           v.Body.Type(),
		Content:        v.Body.Content(),
		SentAt:         v.SentAt,
		IsRead:         v.IsRead(),
	}
}

func NewUpdateConversationList(v domain.MessageView, recipientID string) UpdateConversationList {
	return UpdateConversationList{
		ConversationID: v.ConversationID,
		LastMessage:    v.Body.Content(),
		Type:           v.Body.Type(),
		SenderID:       v.SenderID,
		SenderName:     v.SenderName,
		SentAt:         v.SentAt,
		IsUnread:       recipientID != v.SenderID,
	}
}

func NewMessageEdited(v domain.MessageView) MessageEdited {
	evt := MessageEdited{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		Content:        v.Body.Content(),
		IsEdited:       v.IsEdited(),
	}
	if v.EditedAt != nil {
		evt.EditedAt = *v.EditedAt
	}
	return evt
}
