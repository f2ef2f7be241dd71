package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quadchat/quadchat/internal/auth"
	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/reaction"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/securelog"
	"github.com/quadchat/quadchat/internal/user"
	"github.com/quadchat/quadchat/internal/validation"
)

const (
	maxBodyBytes = 1 << 20
	timeLayout   = time.RFC3339Nano
)

// Presence is the registry view the REST layer needs for "who is online".
type Presence interface {
	Members(roomID room.ID) []user.ID
	Count(roomID room.ID) int
}

type Handler struct {
	users     *user.Service
	rooms     *room.Service
	messages  *message.Service
	auth      *auth.Service
	reactions *reaction.Coordinator
	presence  Presence
	started   time.Time
}

func NewHandler(users *user.Service, rooms *room.Service, messages *message.Service, authSvc *auth.Service, reactions *reaction.Coordinator, presence Presence) *Handler {
	return &Handler{
		users:     users,
		rooms:     rooms,
		messages:  messages,
		auth:      authSvc,
		reactions: reactions,
		presence:  presence,
		started:   time.Now(),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/users/me", h.handleMe)
	mux.HandleFunc("/rooms", h.handleRooms)
	mux.HandleFunc("/rooms/join", h.handleJoinRoom)
	mux.HandleFunc("/rooms/messages", h.handleRoomMessages)
	mux.HandleFunc("/rooms/online", h.handleRoomOnline)
	mux.HandleFunc("/messages/reactions", h.handleToggleReaction)
	mux.HandleFunc("/stats", h.handleStats)
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID          user.ID `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   string  `json:"avatar_url"`
	Bio         string  `json:"bio"`
	CreatedAt   string  `json:"created_at"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		CreatedAt:   u.CreatedAt.UTC().Format(timeLayout),
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, session, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrAlreadyExists):
			writeError(w, http.StatusConflict, errors.New("username or email already taken"))
		case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, validation.ErrInvalidInput), errors.Is(err, user.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			securelog.Error("httpapi.register", err)
			writeError(w, http.StatusInternalServerError, errors.New("registration failed"))
		}
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeLayout),
		User:      toUserResponse(created),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	found, session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, errors.New("invalid username or password"))
		default:
			securelog.Error("httpapi.login", err)
			writeError(w, http.StatusInternalServerError, errors.New("login failed"))
		}
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeLayout),
		User:      toUserResponse(found),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toUserResponse(identity))
	case http.MethodPut:
		var req struct {
			DisplayName string `json:"display_name"`
			AvatarURL   string `json:"avatar_url"`
			Bio         string `json:"bio"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.users.UpdateProfile(r.Context(), identity.ID, req.DisplayName, req.AvatarURL, req.Bio)
		if err != nil {
			if errors.Is(err, validation.ErrInvalidInput) || errors.Is(err, user.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			securelog.Error("httpapi.profile", err)
			writeError(w, http.StatusInternalServerError, errors.New("profile update failed"))
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(updated))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type roomResponse struct {
	ID          room.ID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	IsPublic    bool    `json:"is_public"`
	CreatedBy   user.ID `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	OnlineCount int     `json:"online_count"`
}

func (h *Handler) toRoomResponse(rm room.Room) roomResponse {
	return roomResponse{
		ID:          rm.ID,
		Name:        rm.Name,
		Description: rm.Description,
		IsPublic:    rm.IsPublic,
		CreatedBy:   rm.CreatedBy,
		CreatedAt:   rm.CreatedAt.UTC().Format(timeLayout),
		OnlineCount: h.presence.Count(rm.ID),
	}
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rooms, err := h.rooms.ListRooms(r.Context(), identity.ID)
		if err != nil {
			securelog.Error("httpapi.rooms.list", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to list rooms"))
			return
		}
		out := make([]roomResponse, 0, len(rooms))
		for _, rm := range rooms {
			out = append(out, h.toRoomResponse(rm))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			IsPublic    *bool  `json:"is_public"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		isPublic := true
		if req.IsPublic != nil {
			isPublic = *req.IsPublic
		}
		created, err := h.rooms.CreateRoom(r.Context(), identity.ID, req.Name, req.Description, isPublic)
		if err != nil {
			if errors.Is(err, validation.ErrInvalidInput) || errors.Is(err, room.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			securelog.Error("httpapi.rooms.create", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to create room"))
			return
		}
		writeJSON(w, http.StatusCreated, h.toRoomResponse(created))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req struct {
		RoomID room.ID `json:"room_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.rooms.Join(r.Context(), req.RoomID, identity.ID); err != nil {
		switch {
		case errors.Is(err, room.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, room.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			securelog.Error("httpapi.rooms.join", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to join room"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageResponse struct {
	ID             message.ID            `json:"id"`
	RoomID         room.ID               `json:"room_id"`
	UserID         user.ID               `json:"user_id"`
	Content        string                `json:"content"`
	MessageType    string                `json:"message_type"`
	Reactions      message.ReactionMap   `json:"reactions"`
	ReplyTo        *message.ID           `json:"reply_to"`
	ReplyToMessage *message.ReplySummary `json:"reply_to_message,omitempty"`
	CreatedAt      string                `json:"created_at"`
}

func (h *Handler) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	roomID := room.ID(r.URL.Query().Get("room_id"))
	if roomID == "" {
		writeError(w, http.StatusBadRequest, errors.New("room_id is required"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	msgs, err := h.messages.History(r.Context(), roomID, limit)
	if err != nil {
		securelog.Error("httpapi.messages.history", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load history"))
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, msg := range msgs {
		var summary *message.ReplySummary
		if msg.ReplyTo != nil {
			if parent, err := h.messages.Get(r.Context(), *msg.ReplyTo); err == nil {
				summary = h.messages.Summarize(r.Context(), parent)
			}
		}
		out = append(out, messageResponse{
			ID:             msg.ID,
			RoomID:         msg.RoomID,
			UserID:         msg.UserID,
			Content:        msg.Content,
			MessageType:    msg.MessageType,
			Reactions:      msg.Reactions,
			ReplyTo:        msg.ReplyTo,
			ReplyToMessage: summary,
			CreatedAt:      msg.CreatedAt.UTC().Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRoomOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	roomID := room.ID(r.URL.Query().Get("room_id"))
	if roomID == "" {
		writeError(w, http.StatusBadRequest, errors.New("room_id is required"))
		return
	}

	members := h.presence.Members(roomID)
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"online":  members,
		"count":   len(members),
	})
}

type toggleReactionRequest struct {
	MessageID message.ID `json:"message_id"`
	Emoji     string     `json:"emoji"`
}

// handleToggleReaction is the request/response twin of the websocket
// reaction event. It must observe the same state, so it goes through the
// same coordinator, which also emits the reaction_update broadcast.
func (h *Handler) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req toggleReactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.messages.Get(r.Context(), req.MessageID)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) || errors.Is(err, message.ErrInvalidInput) {
			writeError(w, http.StatusNotFound, errors.New("message not found"))
			return
		}
		securelog.Error("httpapi.reactions.get", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to update reaction"))
		return
	}

	reactions, err := h.reactions.Toggle(r.Context(), msg.RoomID, req.MessageID, identity.ID, req.Emoji)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrNotFound):
			writeError(w, http.StatusNotFound, errors.New("message not found"))
		case errors.Is(err, message.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, errors.New("message_id and emoji required"))
		default:
			securelog.Error("httpapi.reactions.toggle", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to update reaction"))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": req.MessageID,
		"reactions":  reactions,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats["cpu_percent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			stats["rss_bytes"] = mem.RSS
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) authenticate(r *http.Request) (user.User, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return user.User{}, auth.ErrUnauthorized
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return user.User{}, auth.ErrUnauthorized
	}
	return h.auth.ResolveToken(r.Context(), parts[1])
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
