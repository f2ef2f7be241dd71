package storage

import (
	"context"

	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
)

// Store bundles the persistence surface a running server needs. Repos
// report failures with their domain's sentinel errors.
type Store interface {
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error
	Users() user.Repository
	Rooms() room.Repository
	Messages() message.Repository
}
