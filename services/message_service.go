package services

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// errNoChange aborts a store mutation that would not change anything.
var errNoChange = fmt.Errorf("no change")

// Censorer rewrites forbidden words of a text content.
type Censorer interface {
	Censor(original string) (string, []string)
}

type IMessageService interface {
	Send(ctx context.Context, conversationID uuid.UUID, senderID, content string) (domain.MessageView, error)
	Relay(ctx context.Context, conversationID, messageID uuid.UUID, actorID string, kind domain.MessageType) (domain.MessageView, error)
	Edit(ctx context.Context, messageID uuid.UUID, actorID, content string) (domain.MessageView, error)
	Delete(ctx context.Context, messageID uuid.UUID, actorID string) (domain.MessageView, bool, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (domain.MessageView, bool, error)
	MarkConversationRead(ctx context.Context, conversationID uuid.UUID, readerID string) (domain.ReadBatch, error)
}

// MessageService enforces the lifecycle of a message:
//
//	Sent -> {Edited}* -> {Read} -> Deleted
//
// Edited and Read are independent. Once deleted a message accepts no
// further transition (ErrMessageDeleted); deleting it again is a no-op.
// Every transition is a single store mutation, authorization included.
type MessageService struct {
	log              *slog.Logger
	store            contract.IConversationStore
	censorer         Censorer
	maxContentLength int
}

// NewMessageService accepts a nil censorer, content is then stored as is.
func NewMessageService(log *slog.Logger, store contract.IConversationStore, censorer Censorer, maxContentLength int) *MessageService {
	return &MessageService{log: log, store: store, censorer: censorer, maxContentLength: maxContentLength}
}

// Send persists a new text message from a participant of the conversation.
func (s *MessageService) Send(ctx context.Context, conversationID uuid.UUID, senderID, content string) (domain.MessageView, error) {
	text, err := s.sanitize(content)
	if err != nil {
		return domain.MessageView{}, err
	}
	if err = requireParticipant(ctx, s.store, conversationID, senderID); err != nil {
		return domain.MessageView{}, err
	}
	return s.store.InsertMessage(ctx, domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           text,
		SentAt:         time.Now().UTC(),
	})
}

// Relay returns a media message already persisted by the upload service so
// that it can be fanned out. Only its sender can relay it, into its own
// conversation, with the matching kind.
func (s *MessageService) Relay(ctx context.Context, conversationID, messageID uuid.UUID, actorID string, kind domain.MessageType) (domain.MessageView, error) {
	view, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.MessageView{}, err
	}
	switch {
	case view.ConversationID != conversationID:
		return domain.MessageView{}, errors.ErrNotFound
	case view.SenderID != actorID:
		return domain.MessageView{}, errors.ErrUnauthorized
	case view.Deleted:
		return domain.MessageView{}, errors.ErrMessageDeleted
	case view.Body.Type() != kind:
		return domain.MessageView{}, fmt.Errorf("%w: message %s is not of type %s", errors.ErrInvalidArgument, messageID, kind)
	}
	if err = requireParticipant(ctx, s.store, conversationID, actorID); err != nil {
		return domain.MessageView{}, err
	}
	return view, nil
}

// Edit replaces the content of a text message, by its sender only.
func (s *MessageService) Edit(ctx context.Context, messageID uuid.UUID, actorID, content string) (domain.MessageView, error) {
	return s.store.UpdateMessage(ctx, messageID, func(m *domain.Message) error {
		if m.SenderID != actorID {
			return errors.ErrUnauthorized
		}
		if m.Deleted {
			return errors.ErrMessageDeleted
		}
		if m.Body.Type() != domain.MessageTypeText {
			return fmt.Errorf("%w: only text messages can be edited", errors.ErrInvalidArgument)
		}
		text, err := s.sanitize(content)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		m.Body = text
		m.EditedAt = &now
		return nil
	})
}

// Delete soft-deletes a message. The boolean is false when it was already
// deleted, nothing is to be announced then.
func (s *MessageService) Delete(ctx context.Context, messageID uuid.UUID, actorID string) (domain.MessageView, bool, error) {
	view, err := s.store.UpdateMessage(ctx, messageID, func(m *domain.Message) error {
		if m.SenderID != actorID {
			return errors.ErrUnauthorized
		}
		if m.Deleted {
			return errNoChange
		}
		m.Deleted = true
		return nil
	})
	return settle(view, err)
}

// MarkRead flips the read flag of a message for a participant other than
// its sender. The boolean is false when nothing changed: own message or
// already read.
func (s *MessageService) MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (domain.MessageView, bool, error) {
	current, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.MessageView{}, false, err
	}
	if err = requireParticipant(ctx, s.store, current.ConversationID, readerID); err != nil {
		return domain.MessageView{}, false, err
	}

	view, err := s.store.UpdateMessage(ctx, messageID, func(m *domain.Message) error {
		if m.Deleted {
			return errors.ErrMessageDeleted
		}
		if m.SenderID == readerID || m.IsRead() {
			return errNoChange
		}
		now := time.Now().UTC()
		m.ReadAt = &now
		return nil
	})
	return settle(view, err)
}

// MarkConversationRead reads every unread message of the others in one
// store mutation and groups them by original sender.
func (s *MessageService) MarkConversationRead(ctx context.Context, conversationID uuid.UUID, readerID string) (domain.ReadBatch, error) {
	if err := requireParticipant(ctx, s.store, conversationID, readerID); err != nil {
		return domain.ReadBatch{}, err
	}
	readAt := time.Now().UTC()
	flipped, err := s.store.MarkConversationRead(ctx, conversationID, readerID, readAt)
	if err != nil {
		return domain.ReadBatch{}, err
	}
	bySender := lo.GroupBy(flipped, func(m domain.Message) string { return m.SenderID })
	return domain.ReadBatch{
		ConversationID: conversationID,
		ReaderID:       readerID,
		ReadAt:         readAt,
		MessageIDsBySender: lo.MapValues(bySender, func(messages []domain.Message, _ string) []uuid.UUID {
			return lo.Map(messages, func(m domain.Message, _ int) uuid.UUID { return m.ID })
		}),
	}, nil
}

func requireParticipant(ctx context.Context, store contract.IConversationStore, conversationID uuid.UUID, userID string) error {
	ok, err := store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrUnauthorized
	}
	return nil
}

// sanitize trims, checks and censors a text content.
func (s *MessageService) sanitize(content string) (domain.Text, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.ErrBlankContent
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return "", errors.ErrContentTooLong
	}
	if s.censorer != nil {
		censored, words := s.censorer.Censor(content)
		if len(words) > 0 {
			s.log.Debug("Forbidden words replaced", "count", len(words))
		}
		content = censored
	}
	return domain.Text(content), nil
}

func settle(view domain.MessageView, err error) (domain.MessageView, bool, error) {
	switch {
	case errors.Is(err, errNoChange):
		return domain.MessageView{}, false, nil
	case err != nil:
		return domain.MessageView{}, false, err
	default:
		return view, true, nil
	}
}
