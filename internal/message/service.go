package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
	"github.com/quadchat/quadchat/internal/validation"
)

const (
	defaultHistoryLimit = 50
	defaultMessageType  = "text"
	replyPreviewRunes   = 50
)

type Service struct {
	repo     Repository
	users    *user.Service
	validate *validation.Validator
	idGen    func() string
	now      func() time.Time
}

func NewService(repo Repository, users *user.Service, validate *validation.Validator) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		validate: validate,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// Post validates, persists, and returns a new chat message. The id and
// creation timestamp are assigned here, never taken from the client. When
// the message is a reply, the target must be an existing message in the
// same room; the returned summary carries the parent's truncated content
// and its author's display name.
func (s *Service) Post(ctx context.Context, roomID room.ID, userID user.ID, content, messageType string, replyTo *ID) (Message, *ReplySummary, error) {
	if s.repo == nil {
		return Message{}, nil, errors.New("repository is required")
	}
	if roomID == "" || userID == "" {
		return Message{}, nil, ErrInvalidInput
	}
	trimmed, err := s.validate.Message(content)
	if err != nil {
		return Message{}, nil, err
	}
	if messageType == "" {
		messageType = defaultMessageType
	}

	var summary *ReplySummary
	if replyTo != nil && *replyTo != "" {
		parent, err := s.repo.GetByID(ctx, *replyTo)
		if err != nil || parent.RoomID != roomID {
			return Message{}, nil, ErrReplyNotFound
		}
		summary = s.summarize(ctx, parent)
	} else {
		replyTo = nil
	}

	msg := Message{
		ID:          ID(s.idGen()),
		RoomID:      roomID,
		UserID:      userID,
		Content:     trimmed,
		MessageType: messageType,
		ReplyTo:     replyTo,
		Reactions:   ReactionMap{},
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		return Message{}, nil, err
	}
	return msg, summary, nil
}

func (s *Service) Get(ctx context.Context, id ID) (Message, error) {
	if s.repo == nil {
		return Message{}, errors.New("repository is required")
	}
	if id == "" {
		return Message{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// History returns the room's recent messages in chronological order.
func (s *Service) History(ctx context.Context, roomID room.ID, limit int) ([]Message, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	if roomID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repo.ListRecent(ctx, roomID, limit)
}

// Summarize builds the reply preview for an existing message.
func (s *Service) Summarize(ctx context.Context, parent Message) *ReplySummary {
	return s.summarize(ctx, parent)
}

func (s *Service) summarize(ctx context.Context, parent Message) *ReplySummary {
	displayName := ""
	if s.users != nil {
		if author, err := s.users.GetByID(ctx, parent.UserID); err == nil {
			displayName = author.DisplayName
		}
	}
	return &ReplySummary{
		ID:          parent.ID,
		Content:     truncate(parent.Content, replyPreviewRunes),
		DisplayName: displayName,
		UserID:      parent.UserID,
	}
}

func truncate(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
