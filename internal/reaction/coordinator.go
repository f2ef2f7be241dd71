package reaction

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
)

// Store is the slice of the message repository the coordinator needs.
type Store interface {
	GetByID(ctx context.Context, id message.ID) (message.Message, error)
	SetReactions(ctx context.Context, id message.ID, reactions message.ReactionMap) error
}

// Broadcaster pushes an event to every current member of a room.
type Broadcaster interface {
	Broadcast(roomID room.ID, payload any, exclude user.ID)
}

type reactionUpdate struct {
	Type      string              `json:"type"`
	MessageID message.ID          `json:"message_id"`
	Reactions message.ReactionMap `json:"reactions"`
}

// Coordinator serializes reaction toggles per message. The websocket event
// and the REST endpoint both come through Toggle, so the two entry points
// can never interleave on the same message, and each successful toggle
// produces exactly one reaction_update broadcast.
type Coordinator struct {
	store       Store
	broadcaster Broadcaster

	mu    sync.Mutex
	locks map[message.ID]*msgLock
}

type msgLock struct {
	mu   sync.Mutex
	refs int
}

func NewCoordinator(store Store, broadcaster Broadcaster) *Coordinator {
	return &Coordinator{
		store:       store,
		broadcaster: broadcaster,
		locks:       make(map[message.ID]*msgLock),
	}
}

// Toggle adds the user under the emoji, or removes them if already
// present. Applying the same toggle twice returns the map to its original
// state. The resulting full reaction map is returned and broadcast to the
// message's room.
func (c *Coordinator) Toggle(ctx context.Context, roomID room.ID, messageID message.ID, userID user.ID, emoji string) (message.ReactionMap, error) {
	emoji = strings.TrimSpace(emoji)
	if messageID == "" || emoji == "" || userID == "" {
		return nil, message.ErrInvalidInput
	}

	lock := c.acquire(messageID)
	defer c.release(messageID, lock)

	msg, err := c.store.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID != roomID {
		return nil, message.ErrNotFound
	}

	reactions := cloneReactions(msg.Reactions)
	if lo.Contains(reactions[emoji], userID) {
		remaining := lo.Without(reactions[emoji], userID)
		if len(remaining) == 0 {
			delete(reactions, emoji)
		} else {
			reactions[emoji] = remaining
		}
	} else {
		reactions[emoji] = append(reactions[emoji], userID)
	}

	if err := c.store.SetReactions(ctx, messageID, reactions); err != nil {
		return nil, err
	}

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(msg.RoomID, reactionUpdate{
			Type:      "reaction_update",
			MessageID: messageID,
			Reactions: reactions,
		}, "")
	}
	return reactions, nil
}

func (c *Coordinator) acquire(id message.ID) *msgLock {
	c.mu.Lock()
	lock := c.locks[id]
	if lock == nil {
		lock = &msgLock{}
		c.locks[id] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *Coordinator) release(id message.ID, lock *msgLock) {
	lock.mu.Unlock()

	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, id)
	}
	c.mu.Unlock()
}

func cloneReactions(reactions message.ReactionMap) message.ReactionMap {
	out := make(message.ReactionMap, len(reactions))
	for emoji, ids := range reactions {
		out[emoji] = append([]user.ID(nil), ids...)
	}
	return out
}
