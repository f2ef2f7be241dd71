package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quadchat/quadchat/internal/message"
	"github.com/quadchat/quadchat/internal/room"
	"github.com/quadchat/quadchat/internal/user"
)

type userRepo struct {
	db *sql.DB
}

func (r *userRepo) Create(ctx context.Context, u user.User) error {
	if u.ID == "" || u.Username == "" || u.Email == "" || u.CreatedAt.IsZero() {
		return fmt.Errorf("user id, username, email, and created_at are required")
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, display_name, avatar_url, bio, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.DisplayName, u.AvatarURL, u.Bio, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id user.ID) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, display_name, avatar_url, bio, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, display_name, avatar_url, bio, created_at
		FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (r *userRepo) UpdateProfile(ctx context.Context, id user.ID, displayName, avatarURL, bio string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET display_name = $2, avatar_url = $3, bio = $4 WHERE id = $1`,
		id, displayName, avatarURL, bio)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

type roomRepo struct {
	db *sql.DB
}

func (r *roomRepo) CreateRoom(ctx context.Context, rm room.Room) error {
	if rm.ID == "" || rm.Name == "" || rm.CreatedBy == "" || rm.CreatedAt.IsZero() {
		return fmt.Errorf("room id, name, created_by, and created_at are required")
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO rooms (id, name, description, is_public, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rm.ID, rm.Name, rm.Description, rm.IsPublic, rm.CreatedBy, rm.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *roomRepo) GetRoom(ctx context.Context, id room.ID) (room.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, description, is_public, created_by, created_at
		FROM rooms WHERE id = $1`, id)
	var rm room.Room
	if err := row.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.IsPublic, &rm.CreatedBy, &rm.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, fmt.Errorf("select room: %w", err)
	}
	return rm, nil
}

func (r *roomRepo) ListRooms(ctx context.Context) ([]room.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, is_public, created_by, created_at
		FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []room.Room
	for rows.Next() {
		var rm room.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.IsPublic, &rm.CreatedBy, &rm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

func (r *roomRepo) AddMember(ctx context.Context, roomID room.ID, userID user.ID, joinedAt time.Time, isAdmin bool) error {
	if roomID == "" || userID == "" || joinedAt.IsZero() {
		return fmt.Errorf("room id, user id, and joined_at are required")
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, joined_at, is_admin)
		VALUES ($1, $2, $3, $4) ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, joinedAt, isAdmin)
	if err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}
	return nil
}

func (r *roomRepo) IsMember(ctx context.Context, roomID room.ID, userID user.ID) (bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`, roomID, userID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("select room member: %w", err)
	}
	return ok, nil
}

func (r *roomRepo) ListMembers(ctx context.Context, roomID room.ID) ([]room.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, joined_at, is_admin
		FROM room_members WHERE room_id = $1 ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	defer rows.Close()

	var members []room.Member
	for rows.Next() {
		var m room.Member
		if err := rows.Scan(&m.UserID, &m.JoinedAt, &m.IsAdmin); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room members: %w", err)
	}
	return members, nil
}

type messageRepo struct {
	db *sql.DB
}

func (r *messageRepo) Save(ctx context.Context, msg message.Message) error {
	if msg.ID == "" || msg.RoomID == "" || msg.UserID == "" || msg.CreatedAt.IsZero() {
		return fmt.Errorf("message id, room_id, user_id, and created_at are required")
	}
	if msg.Content == "" {
		return fmt.Errorf("content is required")
	}

	reactions, err := encodeReactions(msg.Reactions)
	if err != nil {
		return err
	}
	var replyTo any
	if msg.ReplyTo != nil {
		replyTo = *msg.ReplyTo
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO messages (id, room_id, user_id, content, message_type, reply_to, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.RoomID, msg.UserID, msg.Content, msg.MessageType, replyTo, reactions, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id message.ID) (message.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, room_id, user_id, content, message_type, reply_to, reactions, created_at
		FROM messages WHERE id = $1`, id)

	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return message.Message{}, message.ErrNotFound
		}
		return message.Message{}, fmt.Errorf("select message: %w", err)
	}
	return msg, nil
}

func (r *messageRepo) ListRecent(ctx context.Context, roomID room.ID, limit int) ([]message.Message, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, room_id, user_id, content, message_type, reply_to, reactions, created_at
		FROM messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	// Reverse to chronological order (oldest first).
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepo) SetReactions(ctx context.Context, id message.ID, reactions message.ReactionMap) error {
	encoded, err := encodeReactions(reactions)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions = $2 WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("update reactions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return message.ErrNotFound
	}
	return nil
}

func scanMessage(scan func(dest ...any) error) (message.Message, error) {
	var msg message.Message
	var replyTo sql.NullString
	var reactions []byte
	if err := scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msg.MessageType, &replyTo, &reactions, &msg.CreatedAt); err != nil {
		return message.Message{}, err
	}
	if replyTo.Valid {
		id := message.ID(replyTo.String)
		msg.ReplyTo = &id
	}
	msg.Reactions = message.ReactionMap{}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return message.Message{}, fmt.Errorf("decode reactions: %w", err)
		}
	}
	return msg, nil
}

func encodeReactions(reactions message.ReactionMap) ([]byte, error) {
	if reactions == nil {
		reactions = message.ReactionMap{}
	}
	data, err := json.Marshal(reactions)
	if err != nil {
		return nil, fmt.Errorf("encode reactions: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	// pgx wraps server errors; SQLSTATE 23505 is unique_violation.
	type sqlState interface{ SQLState() string }
	var state sqlState
	return errors.As(err, &state) && state.SQLState() == "23505"
}
