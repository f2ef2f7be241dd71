package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

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

// CreateWithPassword stores a new user with an already-hashed password.
// Username is normalized to lower case; the display name defaults to the
// username when empty.
func (s *Service) CreateWithPassword(ctx context.Context, username, email, passwordHash, displayName string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	name := normalizeUsername(username)
	if err := s.validate.Username(name); err != nil {
		return User{}, err
	}
	email = strings.TrimSpace(email)
	if err := s.validate.Email(email); err != nil {
		return User{}, err
	}
	if passwordHash == "" {
		return User{}, ErrInvalidInput
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = name
	}
	if err := s.validate.DisplayName(displayName); err != nil {
		return User{}, err
	}

	u := User{
		ID:           ID(s.idGen()),
		Username:     name,
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id ID) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	if id == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	name := normalizeUsername(username)
	if name == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByUsername(ctx, name)
}

func (s *Service) UpdateProfile(ctx context.Context, id ID, displayName, avatarURL, bio string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	if id == "" {
		return User{}, ErrInvalidInput
	}
	displayName = strings.TrimSpace(displayName)
	if err := s.validate.DisplayName(displayName); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateProfile(ctx, id, displayName, strings.TrimSpace(avatarURL), strings.TrimSpace(bio)); err != nil {
		return User{}, err
	}
	return s.repo.GetByID(ctx, id)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
