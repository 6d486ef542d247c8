package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type diskConversation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	IsGroup   bool      `json:"is_group"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

type diskParticipant struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

func conversationKey(id uuid.UUID) []byte {
	return []byte("conv:" + id.String())
}

func participantPrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("part:%s:", conversationID))
}

func participantKey(conversationID uuid.UUID, userID string) []byte {
	return append(participantPrefix(conversationID), userID...)
}

func userConversationPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("upart:%s:", userID))
}

func directKey(a, b string) []byte {
	first, second := domain.DirectPair(a, b)
	return []byte(fmt.Sprintf("direct:%s:%s", first, second))
}

// CreateDirectConversation creates the conversation, both participants and
// the pair index in one transaction. Two concurrent requests for the same
// pair conflict on the pair key; the retried one then finds the winner.
func (s *ConversationStore) CreateDirectConversation(ctx context.Context, creatorID, partnerID string, at time.Time) (domain.Conversation, bool, error) {
	if err := checkUserIDs(creatorID, partnerID); err != nil {
		return domain.Conversation{}, false, err
	}
	var conversation domain.Conversation
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(directKey(creatorID, partnerID))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			existingID, err := uuid.ParseBytes(raw)
			if err != nil {
				return err
			}
			conversation, err = loadConversation(txn, existingID)
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		conversation, err = insertConversation(txn, diskConversation{
			ID:        uuid.New(),
			CreatorID: creatorID,
			CreatedAt: at.UTC(),
		}, []string{creatorID, partnerID})
		if err != nil {
			return err
		}
		created = true
		return txn.Set(directKey(creatorID, partnerID), []byte(conversation.ID.String()))
	})
	return conversation, created, err
}

func (s *ConversationStore) CreateGroupConversation(ctx context.Context, creatorID, name string, memberIDs []string, at time.Time) (domain.Conversation, error) {
	if err := checkUserIDs(append([]string{creatorID}, memberIDs...)...); err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		conversation, err = insertConversation(txn, diskConversation{
			ID:        uuid.New(),
			Name:      name,
			IsGroup:   true,
			CreatorID: creatorID,
			CreatedAt: at.UTC(),
		}, lo.Uniq(append([]string{creatorID}, memberIDs...)))
		return err
	})
	return conversation, err
}

func insertConversation(txn *badger.Txn, dc diskConversation, memberIDs []string) (domain.Conversation, error) {
	if err := setJSON(txn, conversationKey(dc.ID), dc); err != nil {
		return domain.Conversation{}, err
	}
	participants := make([]diskParticipant, 0, len(memberIDs))
	for _, userID := range memberIDs {
		dp := diskParticipant{ConversationID: dc.ID, UserID: userID, JoinedAt: dc.CreatedAt}
		if err := setJSON(txn, participantKey(dc.ID, userID), dp); err != nil {
			return domain.Conversation{}, err
		}
		if err := txn.Set(append(userConversationPrefix(userID), dc.ID.String()...), nil); err != nil {
			return domain.Conversation{}, err
		}
		participants = append(participants, dp)
	}
	return toConversation(dc, participants), nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		conversation, err = loadConversation(txn, conversationID)
		return err
	})
	return conversation, err
}

func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error) {
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, participantKey(conversationID, userID))
		return err
	})
	return found, err
}

// ParticipantIDs returns ErrNotFound for an unknown conversation so that
// callers cannot tell it apart from a conversation they are not part of.
func (s *ConversationStore) ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	var ids []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		participants, err := loadParticipants(txn, conversationID)
		if err != nil {
			return err
		}
		if len(participants) == 0 {
			return errors.ErrNotFound
		}
		ids = lo.Map(participants, func(p diskParticipant, _ int) string { return p.UserID })
		return nil
	})
	return ids, err
}

func (s *ConversationStore) ConversationIDsForUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := userConversationPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := uuid.ParseBytes(it.Item().Key()[len(prefix):])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func loadConversation(txn *badger.Txn, conversationID uuid.UUID) (domain.Conversation, error) {
	var dc diskConversation
	if err := getJSON(txn, conversationKey(conversationID), &dc); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Conversation{}, errors.ErrNotFound
		}
		return domain.Conversation{}, err
	}
	participants, err := loadParticipants(txn, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(dc, participants), nil
}

func loadParticipants(txn *badger.Txn, conversationID uuid.UUID) ([]diskParticipant, error) {
	var participants []diskParticipant
	prefix := participantPrefix(conversationID)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var dp diskParticipant
		if err := decodeItem(it.Item(), &dp); err != nil {
			return nil, err
		}
		participants = append(participants, dp)
	}
	return participants, nil
}

func toConversation(dc diskConversation, participants []diskParticipant) domain.Conversation {
	return domain.Conversation{
		ID:        dc.ID,
		Name:      dc.Name,
		IsGroup:   dc.IsGroup,
		CreatorID: dc.CreatorID,
		CreatedAt: dc.CreatedAt,
		Participants: lo.Map(participants, func(p diskParticipant, _ int) domain.Participant {
			return domain.Participant{ConversationID: p.ConversationID, UserID: p.UserID, JoinedAt: p.JoinedAt}
		}),
	}
}

// ConversationStats is one row of the operator listing.
type ConversationStats struct {
	Conversation domain.Conversation
	Messages     int
	Deleted      int
}

// ScanConversations walks every conversation with its message counts.
func (s *ConversationStore) ScanConversations(ctx context.Context) ([]ConversationStats, error) {
	var stats []ConversationStats
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte("conv:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dc diskConversation
			if err := decodeItem(it.Item(), &dc); err != nil {
				return err
			}
			participants, err := loadParticipants(txn, dc.ID)
			if err != nil {
				return err
			}
			deleted := 0
			messages, err := scanConversation(txn, dc.ID, func(dm diskMessage) bool {
				if dm.Deleted {
					deleted++
				}
				return true
			})
			if err != nil {
				return err
			}
			stats = append(stats, ConversationStats{
				Conversation: toConversation(dc, participants),
				Messages:     len(messages),
				Deleted:      deleted,
			})
		}
		return nil
	})
	return stats, err
}
