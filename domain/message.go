// Package domain contains core concepts of the chat system.
// This file defines Message and its lifecycle flags.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// Body is the payload of a message: Text, ImageRef or AudioRef.
// The set is closed, only this package can add variants.
type Body interface {
	Type() MessageType
	// Content is the text for Text, the blob reference for media bodies.
	Content() string
	sealed()
}

type Text string

func (t Text) Type() MessageType { return MessageTypeText }
func (t Text) Content() string   { return string(t) }
func (Text) sealed()             {}

// ImageRef points to an image blob stored by the upload collaborator.
type ImageRef string

func (i ImageRef) Type() MessageType { return MessageTypeImage }
func (i ImageRef) Content() string   { return string(i) }
func (ImageRef) sealed()             {}

// AudioRef points to a voice recording stored by the upload collaborator.
type AudioRef string

func (a AudioRef) Type() MessageType { return MessageTypeAudio }
func (a AudioRef) Content() string   { return string(a) }
func (AudioRef) sealed()             {}

// NewBody rebuilds a Body from its persisted form.
func NewBody(t MessageType, content string) (Body, bool) {
	switch t {
	case MessageTypeText:
		return Text(content), true
	case MessageTypeImage:
		return ImageRef(content), true
	case MessageTypeAudio:
		return AudioRef(content), true
	default:
		return nil, false
	}
}

// Message is mutated in place by edit, read and delete transitions and is
// never physically removed.
// ReadAt and EditedAt double as the isRead / isEdited flags so that a
// timestamp exists exactly when its flag is set.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Body           Body
	SentAt         time.Time
	ReadAt         *time.Time
	EditedAt       *time.Time
	Deleted        bool
}

func (m Message) IsRead() bool   { return m.ReadAt != nil }
func (m Message) IsEdited() bool { return m.EditedAt != nil }

// MessageView is the projection needed to build outbound events:
// the message plus the sender's display name.
type MessageView struct {
	Message
	SenderName string
}

// ReadBatch is the outcome of marking a whole conversation read.
// MessageIDsBySender groups the flipped messages by their original sender.
type ReadBatch struct {
	ConversationID     uuid.UUID
	ReaderID           string
	ReadAt             time.Time
	MessageIDsBySender map[string][]uuid.UUID
}

func (b ReadBatch) Count() int {
	n := 0
	for _, ids := range b.MessageIDsBySender {
		n += len(ids)
	}
	return n
}
