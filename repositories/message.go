package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type diskMessage struct {
	ID             uuid.UUID          `json:"id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	SenderID       string             `json:"sender_id"`
	Type           domain.MessageType `json:"type"`
	Content        string             `json:"content"`
	SentAt         time.Time          `json:"sent_at"`
	ReadAt         *time.Time         `json:"read_at,omitempty"`
	EditedAt       *time.Time         `json:"edited_at,omitempty"`
	Deleted        bool               `json:"deleted"`
}

func messageKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func conversationMessagesPrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("cmsg:%s:", conversationID))
}

// conversationMessageKey is formatted as "cmsg:{conversation}:{sentAt}:{id}":
//  1. the 19-digit zero padded timestamp keeps lexicographical order chronological,
//  2. the message id keeps two messages of the same nanosecond apart.
func conversationMessageKey(m diskMessage) []byte {
	return []byte(fmt.Sprintf("cmsg:%s:%019d:%s", m.ConversationID, m.SentAt.UnixNano(), m.ID))
}

// InsertMessage persists the message and returns it with the sender's
// display name, read in the same transaction.
func (s *ConversationStore) InsertMessage(ctx context.Context, msg domain.Message) (domain.MessageView, error) {
	var view domain.MessageView
	dm := fromMessage(msg)
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, messageKey(dm.ID), dm); err != nil {
			return err
		}
		if err := txn.Set(conversationMessageKey(dm), []byte(dm.ID.String())); err != nil {
			return err
		}
		var err error
		view, err = toMessageView(txn, dm)
		return err
	})
	return view, err
}

func (s *ConversationStore) GetMessage(ctx context.Context, messageID uuid.UUID) (domain.MessageView, error) {
	var view domain.MessageView
	err := s.view(ctx, func(txn *badger.Txn) error {
		dm, err := loadMessage(txn, messageID)
		if err != nil {
			return err
		}
		view, err = toMessageView(txn, dm)
		return err
	})
	return view, err
}

func (s *ConversationStore) UpdateMessage(ctx context.Context, messageID uuid.UUID, mutate func(*domain.Message) error) (domain.MessageView, error) {
	var view domain.MessageView
	err := s.update(ctx, func(txn *badger.Txn) error {
		dm, err := loadMessage(txn, messageID)
		if err != nil {
			return err
		}
		msg, err := toMessage(dm)
		if err != nil {
			return err
		}
		if err = mutate(&msg); err != nil {
			return err
		}
		// Identity and ordering fields are not mutable.
		msg.ID, msg.ConversationID, msg.SenderID, msg.SentAt = dm.ID, dm.ConversationID, dm.SenderID, dm.SentAt
		updated := fromMessage(msg)
		if err = setJSON(txn, messageKey(messageID), updated); err != nil {
			return err
		}
		view, err = toMessageView(txn, updated)
		return err
	})
	return view, err
}

func (s *ConversationStore) MarkConversationRead(ctx context.Context, conversationID uuid.UUID, readerID string, at time.Time) ([]domain.Message, error) {
	var flipped []domain.Message
	err := s.update(ctx, func(txn *badger.Txn) error {
		flipped = nil
		unread, err := scanConversation(txn, conversationID, func(dm diskMessage) bool {
			return isUnreadFor(dm, readerID)
		})
		if err != nil {
			return err
		}
		readAt := at.UTC()
		for _, dm := range unread {
			dm.ReadAt = &readAt
			if err = setJSON(txn, messageKey(dm.ID), dm); err != nil {
				return err
			}
			msg, err := toMessage(dm)
			if err != nil {
				return err
			}
			flipped = append(flipped, msg)
		}
		return nil
	})
	return flipped, err
}

func (s *ConversationStore) CountUnread(ctx context.Context, conversationID uuid.UUID, readerID string) (int, error) {
	var count int
	err := s.view(ctx, func(txn *badger.Txn) error {
		unread, err := scanConversation(txn, conversationID, func(dm diskMessage) bool {
			return isUnreadFor(dm, readerID)
		})
		count = len(unread)
		return err
	})
	return count, err
}

// ListMessages returns a page of non-deleted messages, newest first.
// The cursor is the tail of the last key returned, pass it back to continue
// towards older messages.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID, cursor *string) ([]domain.MessageView, *string, error) {
	var views []domain.MessageView
	var lastKey string
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := conversationMessagesPrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Reverse iteration must start past the newest key of the prefix.
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		default:
			seekKey = append(append([]byte{}, prefix...), *cursor...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if s.limitMessages != nil && len(views) == *s.limitMessages {
				s.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *s.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			dm, err := loadIndexedMessage(txn, item)
			if err != nil {
				return err
			}
			if dm.Deleted {
				continue
			}
			view, err := toMessageView(txn, dm)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return views, &lastKey, nil
}

// LastMessage returns the newest non-deleted message or nil.
func (s *ConversationStore) LastMessage(ctx context.Context, conversationID uuid.UUID) (*domain.MessageView, error) {
	var last *domain.MessageView
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := conversationMessagesPrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			dm, err := loadIndexedMessage(txn, it.Item())
			if err != nil {
				return err
			}
			if dm.Deleted {
				continue
			}
			view, err := toMessageView(txn, dm)
			if err != nil {
				return err
			}
			last = &view
			return nil
		}
		return nil
	})
	return last, err
}

func isUnreadFor(dm diskMessage, readerID string) bool {
	return !dm.Deleted && dm.ReadAt == nil && dm.SenderID != readerID
}

// scanConversation walks the conversation in chronological order and keeps
// the messages accepted by keep.
func scanConversation(txn *badger.Txn, conversationID uuid.UUID, keep func(diskMessage) bool) ([]diskMessage, error) {
	var kept []diskMessage
	prefix := conversationMessagesPrefix(conversationID)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		dm, err := loadIndexedMessage(txn, it.Item())
		if err != nil {
			return nil, err
		}
		if keep(dm) {
			kept = append(kept, dm)
		}
	}
	return kept, nil
}

func loadIndexedMessage(txn *badger.Txn, item *badger.Item) (diskMessage, error) {
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return diskMessage{}, err
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return diskMessage{}, err
	}
	return loadMessage(txn, id)
}

func loadMessage(txn *badger.Txn, messageID uuid.UUID) (diskMessage, error) {
	var dm diskMessage
	if err := getJSON(txn, messageKey(messageID), &dm); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return diskMessage{}, errors.ErrNotFound
		}
		return diskMessage{}, err
	}
	return dm, nil
}

func toMessageView(txn *badger.Txn, dm diskMessage) (domain.MessageView, error) {
	msg, err := toMessage(dm)
	if err != nil {
		return domain.MessageView{}, err
	}
	view := domain.MessageView{Message: msg, SenderName: dm.SenderID}
	sender, err := loadUser(txn, dm.SenderID)
	switch {
	case err == nil:
		view.SenderName = sender.DisplayName
	case !errors.Is(err, errors.ErrNotFound):
		return domain.MessageView{}, err
	}
	return view, nil
}

func fromMessage(m domain.Message) diskMessage {
	dm := diskMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SentAt:         m.SentAt.UTC(),
		ReadAt:         m.ReadAt,
		EditedAt:       m.EditedAt,
		Deleted:        m.Deleted,
	}
	if m.Body != nil {
		dm.Type = m.Body.Type()
		dm.Content = m.Body.Content()
	}
	return dm
}

func toMessage(dm diskMessage) (domain.Message, error) {
	body, ok := domain.NewBody(dm.Type, dm.Content)
	if !ok {
		return domain.Message{}, fmt.Errorf("message %s has unknown type %q", dm.ID, dm.Type)
	}
	return domain.Message{
		ID:             dm.ID,
		ConversationID: dm.ConversationID,
		SenderID:       dm.SenderID,
		Body:           body,
		SentAt:         dm.SentAt,
		ReadAt:         dm.ReadAt,
		EditedAt:       dm.EditedAt,
		Deleted:        dm.Deleted,
	}, nil
}
