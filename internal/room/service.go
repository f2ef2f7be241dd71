package room

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quadchat/quadchat/internal/user"
	"github.com/quadchat/quadchat/internal/validation"
)

type Service struct {
	repo     Repository
	validate *validation.Validator
	idGen    func() string
	now      func() time.Time
}

func NewService(repo Repository, validate *validation.Validator) *Service {
	return &Service{
		repo:     repo,
		validate: validate,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// CreateRoom creates a room and makes the creator its first, admin member.
func (s *Service) CreateRoom(ctx context.Context, userID user.ID, name, description string, isPublic bool) (Room, error) {
	if s.repo == nil {
		return Room{}, errors.New("repository is required")
	}
	if userID == "" {
		return Room{}, ErrInvalidInput
	}
	name = strings.TrimSpace(name)
	if err := s.validate.RoomName(name); err != nil {
		return Room{}, err
	}

	r := Room{
		ID:          ID(s.idGen()),
		Name:        name,
		Description: strings.TrimSpace(description),
		IsPublic:    isPublic,
		CreatedBy:   userID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateRoom(ctx, r); err != nil {
		return Room{}, err
	}
	if err := s.repo.AddMember(ctx, r.ID, userID, s.now().UTC(), true); err != nil {
		return Room{}, err
	}
	return r, nil
}

func (s *Service) GetRoom(ctx context.Context, id ID) (Room, error) {
	if s.repo == nil {
		return Room{}, errors.New("repository is required")
	}
	if id == "" {
		return Room{}, ErrInvalidInput
	}
	return s.repo.GetRoom(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, userID user.ID) ([]Room, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListRooms(ctx)
}

// Join adds the user to the room. Joining a room twice is not an error.
func (s *Service) Join(ctx context.Context, roomID ID, userID user.ID) error {
	if s.repo == nil {
		return errors.New("repository is required")
	}
	if roomID == "" || userID == "" {
		return ErrInvalidInput
	}
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, roomID, userID, s.now().UTC(), false)
}

func (s *Service) ListMembers(ctx context.Context, roomID ID) ([]Member, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	if roomID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListMembers(ctx, roomID)
}
