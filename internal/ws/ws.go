package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/quadchat/quadchat/internal/auth"
	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/ratelimit"
	"github.com/quadchat/quadchat/internal/reaction"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/securelog"
	"github.com/quadchat/quadchat/internal/typing"
	"github.com/quadchat/quadchat/internal/user"
	"github.com/quadchat/quadchat/internal/validation"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second

	// Pre-activation rejections all close with 4001, mirroring the close
	// codes browsers already handle for this API.
	closeUnauthorized = websocket.StatusCode(4001)
)

// IdentityResolver turns a credential string into a known user.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (user.User, error)
}

// Hub owns the per-connection session loop: authenticate, register,
// decode inbound events, dispatch, and clean up on termination.
type Hub struct {
	registry   *Registry
	identities IdentityResolver
	messages   *message.Service
	reactions  *reaction.Coordinator
	limiter    *ratelimit.Limiter
	typing     *typing.Tracker
	validate   *validation.Validator
	now        func() time.Time
}

func NewHub(registry *Registry, identities IdentityResolver, messages *message.Service, reactions *reaction.Coordinator, limiter *ratelimit.Limiter, typingTracker *typing.Tracker, validate *validation.Validator) *Hub {
	return &Hub{
		registry:   registry,
		identities: identities,
		messages:   messages,
		reactions:  reactions,
		limiter:    limiter,
		typing:     typingTracker,
		validate:   validate,
		now:        time.Now,
	}
}

// HandleWS serves one chat connection. The room comes from the path, the
// credential from the query string. The handler runs for the lifetime of
// the session; rejections before registration close the socket without
// any presence traffic.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := room.ID(r.PathValue("room_id"))
	if roomID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		_ = conn.Close(closeUnauthorized, "no token provided")
		return
	}
	identity, err := h.identities.ResolveToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownIdentity) {
			_ = conn.Close(closeUnauthorized, "user not found")
		} else {
			_ = conn.Close(closeUnauthorized, "invalid or expired token")
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	client := &Client{
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan []byte, sendBuffer),
		roomID:      roomID,
		userID:      identity.ID,
		username:    identity.Username,
		displayName: identity.DisplayName,
		joinedAt:    h.now().UTC(),
	}

	h.registry.Register(client)
	securelog.Eventf("ws: connected room=%s user=%s", roomID, identity.ID)

	go client.writeLoop(h.registry)
	defer h.cleanup(client)
	h.readLoop(client)
}

// readLoop blocks until the peer closes or a read/decode failure ends the
// session. Decode failures are fatal for this connection only.
func (h *Hub) readLoop(c *Client) {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		ev, err := decodeInbound(data)
		if err != nil {
			securelog.Error("ws.decode", err)
			return
		}
		h.dispatch(c, ev)
	}
}

func (h *Hub) dispatch(c *Client, ev inboundEvent) {
	switch ev.Type {
	case "message":
		h.handleMessage(c, ev)
	case "typing":
		h.handleTyping(c, ev)
	case "reaction":
		h.handleReaction(c, ev)
	default:
		// Unknown tags are ignored so older servers tolerate newer clients.
	}
}

func (h *Hub) handleMessage(c *Client, ev inboundEvent) {
	trimmed, err := h.validate.Message(ev.Content)
	if err != nil {
		c.sendError(validation.Reason(err))
		return
	}

	if allowed, detail := h.limiter.Admit(c.userID); !allowed {
		c.sendError(detail)
		return
	}

	msg, summary, err := h.messages.Post(c.ctx, c.roomID, c.userID, trimmed, ev.MessageType, ev.ReplyTo)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrReplyNotFound):
			c.sendError("parent message not found")
		case errors.Is(err, validation.ErrInvalidInput):
			c.sendError(validation.Reason(err))
		default:
			securelog.Error("ws.message.post", err)
			c.sendError("failed to send message")
		}
		return
	}

	h.registry.Broadcast(c.roomID, messageEvent{
		Type: "message",
		Message: messagePayload{
			ID:             msg.ID,
			UserID:         c.userID,
			Username:       c.username,
			DisplayName:    c.displayName,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt.Format(timeLayout),
			MessageType:    msg.MessageType,
			Reactions:      msg.Reactions,
			ReplyTo:        msg.ReplyTo,
			ReplyToMessage: summary,
		},
	}, "")
}

func (h *Hub) handleTyping(c *Client, ev inboundEvent) {
	h.typing.Set(c.roomID, c.userID, ev.IsTyping, c.username)
	h.registry.Broadcast(c.roomID, typingEvent{
		Type:      "typing",
		UserID:    c.userID,
		Username:  c.username,
		IsTyping:  ev.IsTyping,
		Timestamp: h.now().UTC().Format(timeLayout),
	}, c.userID)
}

func (h *Hub) handleReaction(c *Client, ev inboundEvent) {
	if ev.MessageID == "" || strings.TrimSpace(ev.Emoji) == "" {
		c.sendError("message_id and emoji required")
		return
	}
	_, err := h.reactions.Toggle(c.ctx, c.roomID, ev.MessageID, c.userID, ev.Emoji)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrNotFound):
			c.sendError("message not found")
		case errors.Is(err, message.ErrInvalidInput):
			c.sendError("message_id and emoji required")
		default:
			securelog.Error("ws.reaction.toggle", err)
			c.sendError("failed to update reaction")
		}
	}
	// The coordinator broadcasts the resulting reaction map itself.
}

// cleanup runs on every termination path. Failures here are the cleanup's
// own problem: nothing is re-raised, other connections are untouched.
func (h *Hub) cleanup(c *Client) {
	removed := h.registry.Deregister(c)
	h.typing.Clear(c.roomID, c.userID)
	if removed {
		h.registry.Broadcast(c.roomID, presenceEvent{
			Type:      "user_left",
			UserID:    c.userID,
			Timestamp: h.now().UTC().Format(timeLayout),
		}, c.userID)
		securelog.Eventf("ws: disconnected room=%s user=%s", c.roomID, c.userID)
	}
	c.close(websocket.StatusNormalClosure, "bye")
}

// wire is the slice of *websocket.Conn the hub uses, split out so tests
// can substitute a fake peer.
type wire interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client is one live connection: the handle the registry owns for a
// (room, user) pair.
type Client struct {
	conn        wire
	ctx         context.Context
	cancel      context.CancelFunc
	send        chan []byte
	closeOnce   sync.Once
	roomID      room.ID
	userID      user.ID
	username    string
	displayName string
	joinedAt    time.Time
}

// Send enqueues without blocking. A full buffer or a closed session means
// the peer is not draining; the caller treats that as a dead channel.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) writeLoop(registry *Registry) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				registry.Deregister(c)
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func (c *Client) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		// The send channel stays open; writeLoop drains out via ctx so a
		// concurrent fan-out can never hit a closed channel.
		c.cancel()
		_ = c.conn.Close(status, reason)
	})
}

func (c *Client) sendEvent(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.Send(data)
}

func (c *Client) sendError(msg string) {
	c.sendEvent(errorEvent{Type: "error", Message: msg})
}
