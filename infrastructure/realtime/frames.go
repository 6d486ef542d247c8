package realtime

import (
	"chat-hub/domain/event"
	"chat-hub/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Op names an inbound operation.
type Op string

const (
	OpSendMessage            Op = "SendMessage"
	OpSendImageMessage       Op = "SendImageMessage"
	OpSendVoiceMessage       Op = "SendVoiceMessage"
	OpJoinConversation       Op = "JoinConversation"
	OpLeaveConversation      Op = "LeaveConversation"
	OpStartTyping            Op = "StartTyping"
	OpStopTyping             Op = "StopTyping"
	OpEditMessage            Op = "EditMessage"
	OpDeleteMessage          Op = "DeleteMessage"
	OpMarkMessageAsRead      Op = "MarkMessageAsRead"
	OpMarkConversationAsRead Op = "MarkConversationAsRead"
)

// inboundFrame is answered with a replyFrame only when ID is set.
type inboundFrame struct {
	ID   string          `json:"id,omitempty" validate:"max=64"`
	Op   Op              `json:"op" validate:"required"`
	Data json.RawMessage `json:"data"`
}

type replyFrame struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type outboundFrame struct {
	Event event.Kind  `json:"event"`
	Data  event.Event `json:"data"`
}

type conversationData struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
}

type sendMessageData struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
	Content        string    `json:"content"`
}

type mediaMessageData struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
	MessageID      uuid.UUID `json:"messageId" validate:"required"`
}

type messageData struct {
	MessageID uuid.UUID `json:"messageId" validate:"required"`
}

type editMessageData struct {
	MessageID uuid.UUID `json:"messageId" validate:"required"`
	Content   string    `json:"content"`
}

// decode reads and validates the data of a frame, every failure is an
// invalid argument.
func decode[T any](validate *validator.Validate, raw json.RawMessage) (T, error) {
	var data T
	if len(raw) == 0 {
		return data, fmt.Errorf("%w: missing data", errors.ErrInvalidArgument)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("%w: malformed data", errors.ErrInvalidArgument)
	}
	if err := validate.Struct(data); err != nil {
		return data, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return data, nil
}
