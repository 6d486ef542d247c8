// Package domain contains core concepts of the chat system.
// This file defines users, conversations and their participants.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             string
	DisplayName    string
	ProfilePicture string
	CreatedAt      time.Time
	LastSeenAt     *time.Time
}

// Conversation is either a direct conversation between exactly two users or
// a named group.
type Conversation struct {
	ID           uuid.UUID
	Name         string
	IsGroup      bool
	CreatorID    string
	CreatedAt    time.Time
	Participants []Participant
}

// Participant is unique per (ConversationID, UserID).
type Participant struct {
	ConversationID uuid.UUID
	UserID         string
	JoinedAt       time.Time
}

func (c Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// DirectPair orders two user ids so that (a, b) and (b, a) share one key.
func DirectPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	LastMessage *MessageView
	UnreadCount int
}

// LastActivity is the time used to order conversation lists.
func (s ConversationSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.SentAt
	}
	return s.CreatedAt
}
