package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"nhooyr.io/websocket"

	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/securelog"
	"github.com/quadchat/quadchat/internal/user"
)

const timeLayout = time.RFC3339Nano

// Registry is the authoritative map of which user holds a live connection
// in which room. All mutations go through its lock; the underlying maps
// are never handed out. Invariant: at most one live client per
// (room, user) pair.
type Registry struct {
	lock  sync.Mutex
	rooms map[room.ID]map[user.ID]*Client
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[room.ID]map[user.ID]*Client),
		now:   time.Now,
	}
}

// Register installs the client for its (room, user) pair. An existing
// connection for the pair is closed with a reconnect signal and replaced,
// then a user_joined event goes to the rest of the room.
func (r *Registry) Register(c *Client) {
	r.lock.Lock()
	bucket := r.rooms[c.roomID]
	if bucket == nil {
		bucket = make(map[user.ID]*Client)
		r.rooms[c.roomID] = bucket
	}
	old := bucket[c.userID]
	bucket[c.userID] = c
	r.lock.Unlock()

	if old != nil {
		old.close(websocket.StatusNormalClosure, "reconnecting")
	}

	r.Broadcast(c.roomID, presenceEvent{
		Type:      "user_joined",
		UserID:    c.userID,
		Timestamp: r.now().UTC().Format(timeLayout),
	}, c.userID)
}

// Deregister removes the client's entry, but only if it still owns it: a
// superseded connection racing its own cleanup must not evict its
// replacement. An emptied room bucket is released. Reports whether an
// entry was removed.
func (r *Registry) Deregister(c *Client) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	bucket := r.rooms[c.roomID]
	if bucket == nil || bucket[c.userID] != c {
		return false
	}
	delete(bucket, c.userID)
	if len(bucket) == 0 {
		delete(r.rooms, c.roomID)
	}
	return true
}

// Members returns a sorted point-in-time snapshot of who is registered in
// the room.
func (r *Registry) Members(roomID room.ID) []user.ID {
	r.lock.Lock()
	ids := lo.Keys(r.rooms[roomID])
	r.lock.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Count(roomID room.ID) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.rooms[roomID])
}

func (r *Registry) IsOnline(roomID room.ID, userID user.ID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.rooms[roomID][userID]
	return ok
}

// Broadcast fans the event out to every registered member of the room
// except exclude. Deliveries are independent: one dead peer cannot block
// the rest. Members whose delivery failed are deregistered and closed
// after the pass.
func (r *Registry) Broadcast(roomID room.ID, payload any, exclude user.ID) {
	data, err := json.Marshal(payload)
	if err != nil {
		securelog.Error("ws.broadcast.marshal", err)
		return
	}

	r.lock.Lock()
	targets := make([]*Client, 0, len(r.rooms[roomID]))
	for userID, c := range r.rooms[roomID] {
		if exclude != "" && userID == exclude {
			continue
		}
		targets = append(targets, c)
	}
	r.lock.Unlock()

	var failed []*Client
	for _, c := range targets {
		if !c.Send(data) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		if r.Deregister(c) {
			securelog.Eventf("ws: dropping unresponsive connection room=%s user=%s", c.roomID, c.userID)
		}
		c.close(websocket.StatusGoingAway, "send failed")
	}
}
