package typing

import (
	"sync"
	"time"

	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
)

// Entry records one user composing a message in one room.
type Entry struct {
	Label     string
	StartedAt time.Time
}

// Tracker holds ephemeral per-room typing state. It only stores state;
// broadcasting the change is the caller's job. There is no timer-based
// expiry: the session handler clears entries on a stop signal and on
// disconnect.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	rooms map[room.ID]map[user.ID]Entry
}

func NewTracker() *Tracker {
	return &Tracker{
		now:   time.Now,
		rooms: make(map[room.ID]map[user.ID]Entry),
	}
}

// Set upserts or removes the (room, user) entry depending on isTyping.
func (t *Tracker) Set(roomID room.ID, userID user.ID, isTyping bool, label string) {
	if !isTyping {
		t.Clear(roomID, userID)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.rooms[roomID]
	if bucket == nil {
		bucket = make(map[user.ID]Entry)
		t.rooms[roomID] = bucket
	}
	bucket[userID] = Entry{Label: label, StartedAt: t.now().UTC()}
}

// Clear removes the entry if present, releasing the room bucket when it
// becomes empty.
func (t *Tracker) Clear(roomID room.ID, userID user.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.rooms[roomID]
	if bucket == nil {
		return
	}
	delete(bucket, userID)
	if len(bucket) == 0 {
		delete(t.rooms, roomID)
	}
}

// Active returns a snapshot of who is typing in the room.
func (t *Tracker) Active(roomID room.ID) map[user.ID]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.rooms[roomID]
	if len(bucket) == 0 {
		return nil
	}
	out := make(map[user.ID]Entry, len(bucket))
	for id, e := range bucket {
		out[id] = e
	}
	return out
}
