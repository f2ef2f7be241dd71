package message

import (
	"context"
	"errors"
	"time"

	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
)

type ID string

// ReactionMap maps an emoji to the users who reacted with it.
type ReactionMap map[string][]user.ID

type Message struct {
	ID          ID
	RoomID      room.ID
	UserID      user.ID
	Content     string
	MessageType string
	ReplyTo     *ID
	Reactions   ReactionMap
	CreatedAt   time.Time
}

// ReplySummary is the condensed view of a parent message carried on a
// reply broadcast.
type ReplySummary struct {
	ID          ID      `json:"id"`
	Content     string  `json:"content"`
	DisplayName string  `json:"display_name"`
	UserID      user.ID `json:"user_id"`
}

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrReplyNotFound = errors.New("parent message not found")
)

type Repository interface {
	Save(ctx context.Context, msg Message) error
	GetByID(ctx context.Context, id ID) (Message, error)
	ListRecent(ctx context.Context, roomID room.ID, limit int) ([]Message, error)
	SetReactions(ctx context.Context, id ID, reactions ReactionMap) error
}
