package ws

import (
	"encoding/json"
	"strings"

	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/user"
)

// inboundEvent is the closed union of everything a client may send. The
// tag selects which fields are meaningful; unknown tags are ignored by the
// dispatcher.
type inboundEvent struct {
	Type string `json:"type"`

	// type == "message"
	Content     string      `json:"content"`
	MessageType string      `json:"message_type"`
	ReplyTo     *message.ID `json:"reply_to"`

	// type == "typing"
	IsTyping bool `json:"is_typing"`

	// type == "reaction"
	MessageID message.ID `json:"message_id"`
	Emoji     string     `json:"emoji"`
}

func decodeInbound(data []byte) (inboundEvent, error) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return inboundEvent{}, err
	}
	ev.Type = strings.TrimSpace(ev.Type)
	return ev, nil
}

type messageEvent struct {
	Type    string         `json:"type"`
	Message messagePayload `json:"message"`
}

type messagePayload struct {
	ID             message.ID            `json:"id"`
	UserID         user.ID               `json:"user_id"`
	Username       string                `json:"username"`
	DisplayName    string                `json:"display_name"`
	Content        string                `json:"content"`
	CreatedAt      string                `json:"created_at"`
	MessageType    string                `json:"message_type"`
	Reactions      message.ReactionMap   `json:"reactions"`
	ReplyTo        *message.ID           `json:"reply_to"`
	ReplyToMessage *message.ReplySummary `json:"reply_to_message,omitempty"`
}

type typingEvent struct {
	Type      string  `json:"type"`
	UserID    user.ID `json:"user_id"`
	Username  string  `json:"username"`
	IsTyping  bool    `json:"is_typing"`
	Timestamp string  `json:"timestamp"`
}

type presenceEvent struct {
	Type      string  `json:"type"`
	UserID    user.ID `json:"user_id"`
	Timestamp string  `json:"timestamp"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
