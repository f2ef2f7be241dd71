package room

import (
	"context"
	"errors"
	"time"

	"github.com/quadchat/quadchat/internal/user"
)

type ID string

type Room struct {
	ID          ID
	Name        string
	Description string
	IsPublic    bool
	CreatedBy   user.ID
	CreatedAt   time.Time
}

type Member struct {
	UserID   user.ID
	JoinedAt time.Time
	IsAdmin  bool
}

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type Repository interface {
	CreateRoom(ctx context.Context, r Room) error
	GetRoom(ctx context.Context, id ID) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	AddMember(ctx context.Context, roomID ID, userID user.ID, joinedAt time.Time, isAdmin bool) error
	IsMember(ctx context.Context, roomID ID, userID user.ID) (bool, error)
	ListMembers(ctx context.Context, roomID ID) ([]Member, error)
}
