package user

import (
	"context"
	"errors"
	"time"
)

type ID string

type User struct {
	ID           ID
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	Bio          string
	CreatedAt    time.Time
}

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Repository interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id ID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	UpdateProfile(ctx context.Context, id ID, displayName, avatarURL, bio string) error
}
