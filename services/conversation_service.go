package services

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/search"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Searcher finds the messages of a conversation matching some terms.
type Searcher interface {
	Search(ctx context.Context, conversationID uuid.UUID, terms string, limit int) ([]search.Hit, error)
}

type IConversationService interface {
	StartDirect(ctx context.Context, actorID, partnerID string) (domain.Conversation, bool, error)
	CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	History(ctx context.Context, conversationID uuid.UUID, readerID string, cursor *string) ([]domain.MessageView, *string, error)
	Search(ctx context.Context, conversationID uuid.UUID, readerID, terms string, limit int) ([]domain.MessageView, error)
}

type ConversationService struct {
	log      *slog.Logger
	store    contract.IConversationStore
	searcher Searcher
}

func NewConversationService(log *slog.Logger, store contract.IConversationStore, searcher Searcher) *ConversationService {
	return &ConversationService{log: log, store: store, searcher: searcher}
}

// StartDirect returns the direct conversation of the pair, creating it on
// first request. created is false when it already existed.
func (s *ConversationService) StartDirect(ctx context.Context, actorID, partnerID string) (domain.Conversation, bool, error) {
	if actorID == partnerID {
		return domain.Conversation{}, false, errors.ErrSelfConversation
	}
	if err := s.requireUsers(ctx, actorID, partnerID); err != nil {
		return domain.Conversation{}, false, err
	}
	conversation, created, err := s.store.CreateDirectConversation(ctx, actorID, partnerID, time.Now().UTC())
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if created {
		s.log.Info("Direct conversation created", "conversation_id", conversation.ID)
	}
	return conversation, created, nil
}

// CreateGroup always includes the creator, duplicates are removed.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (domain.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Conversation{}, fmt.Errorf("%w: group name is required", errors.ErrInvalidArgument)
	}
	others := lo.Without(lo.Uniq(memberIDs), creatorID)
	if len(others) == 0 {
		return domain.Conversation{}, fmt.Errorf("%w: a group needs at least one other member", errors.ErrInvalidArgument)
	}
	if err := s.requireUsers(ctx, append([]string{creatorID}, others...)...); err != nil {
		return domain.Conversation{}, err
	}
	conversation, err := s.store.CreateGroupConversation(ctx, creatorID, name, others, time.Now().UTC())
	if err != nil {
		return domain.Conversation{}, err
	}
	s.log.Info("Group conversation created", "conversation_id", conversation.ID, "participants", len(conversation.Participants))
	return conversation, nil
}

// ListForUser returns the conversations of a user, most recent activity
// first, with their last message and unread count.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	ids, err := s.store.ConversationIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		conversation, err := s.store.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		last, err := s.store.LastMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		unread, err := s.store.CountUnread(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.ConversationSummary{Conversation: conversation, LastMessage: last, UnreadCount: unread})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity().After(summaries[j].LastActivity())
	})
	return summaries, nil
}

// History pages through the non-deleted messages, newest first.
func (s *ConversationService) History(ctx context.Context, conversationID uuid.UUID, readerID string, cursor *string) ([]domain.MessageView, *string, error) {
	if err := requireParticipant(ctx, s.store, conversationID, readerID); err != nil {
		return nil, nil, err
	}
	return s.store.ListMessages(ctx, conversationID, cursor)
}

// Search returns the matching non-deleted messages, best match first.
func (s *ConversationService) Search(ctx context.Context, conversationID uuid.UUID, readerID, terms string, limit int) ([]domain.MessageView, error) {
	if strings.TrimSpace(terms) == "" {
		return nil, errors.ErrBlankContent
	}
	if err := requireParticipant(ctx, s.store, conversationID, readerID); err != nil {
		return nil, err
	}
	hits, err := s.searcher.Search(ctx, conversationID, terms, limit)
	if err != nil {
		return nil, err
	}
	var views []domain.MessageView
	for _, hit := range hits {
		view, err := s.store.GetMessage(ctx, hit.MessageID)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if view.Deleted || view.ConversationID != conversationID {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *ConversationService) requireUsers(ctx context.Context, userIDs ...string) error {
	for _, userID := range userIDs {
		if _, err := s.store.GetUser(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
