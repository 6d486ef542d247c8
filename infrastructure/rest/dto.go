package rest

import (
	"chat-hub/domain"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type directRequest struct {
	PartnerID string `json:"partnerId" validate:"required,max=128"`
}

type groupRequest struct {
	Name      string   `json:"name" validate:"required,max=100"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required,max=128"`
}

type conversationResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name,omitempty"`
	IsGroup        bool      `json:"isGroup"`
	CreatorID      string    `json:"creatorId"`
	CreatedAt      time.Time `json:"createdAt"`
	ParticipantIDs []string  `json:"participantIds"`
}

type messageResponse struct {
	ID             uuid.UUID          `json:"id"`
	ConversationID uuid.UUID          `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	Type           domain.MessageType `json:"type"`
	Content        string             `json:"content"`
	SentAt         time.Time          `json:"sentAt"`
	IsRead         bool               `json:"isRead"`
	ReadAt         *time.Time         `json:"readAt,omitempty"`
	IsEdited       bool               `json:"isEdited"`
	EditedAt       *time.Time         `json:"editedAt,omitempty"`
}

type summaryResponse struct {
	conversationResponse
	LastMessage *messageResponse `json:"lastMessage,omitempty"`
	UnreadCount int              `json:"unreadCount"`
}

type historyResponse struct {
	Messages   []messageResponse `json:"messages"`
	NextCursor *string           `json:"nextCursor,omitempty"`
}

func toConversationResponse(c domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:             c.ID,
		Name:           c.Name,
		IsGroup:        c.IsGroup,
		CreatorID:      c.CreatorID,
		CreatedAt:      c.CreatedAt,
		ParticipantIDs: c.ParticipantIDs(),
	}
}

func toMessageResponse(v domain.MessageView) messageResponse {
	return messageResponse{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.SenderID,
		SenderName:     v.SenderName,
		Type:           v.Body.Type(),
		Content:        v.Body.Content(),
		SentAt:         v.SentAt,
		IsRead:         v.IsRead(),
		ReadAt:         v.ReadAt,
		IsEdited:       v.IsEdited(),
		EditedAt:       v.EditedAt,
	}
}

func toMessageResponses(views []domain.MessageView) []messageResponse {
	return lo.Map(views, func(v domain.MessageView, _ int) messageResponse { return toMessageResponse(v) })
}

func toSummaryResponse(s domain.ConversationSummary, _ int) summaryResponse {
	response := summaryResponse{conversationResponse: toConversationResponse(s.Conversation), UnreadCount: s.UnreadCount}
	if s.LastMessage != nil {
		response.LastMessage = lo.ToPtr(toMessageResponse(*s.LastMessage))
	}
	return response
}
