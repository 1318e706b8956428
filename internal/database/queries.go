package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (db *PgRepository) InsertMessage(ctx context.Context, roomId types.RoomId, userId types.UserId, content string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, user_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, room_id, user_id, content, created_at",
		roomId,
		userId,
		content,
		time.Now().UTC(),
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, classify("insert message", err)
	}

	return msg, nil
}

func (db *PgRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, username, created_at",
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.CreatedAt,
	)

	return u, classify("create user", err)
}

func (db *PgRepository) GetUserById(ctx context.Context, id types.UserId) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.CreatedAt,
	)

	return u, classify("get user", err)
}

func (db *PgRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		&u.CreatedAt,
	)

	return u, classify("get user by username", err)
}

func (db *PgRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var passwordHash sql.NullString
	if params.PasswordHash != "" {
		passwordHash = sql.NullString{String: params.PasswordHash, Valid: true}
	}

	row := tx.QueryRowContext(ctx,
		"INSERT INTO rooms (name, is_private, password_hash, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, is_private, created_by, created_at",
		params.Name,
		params.IsPrivate,
		passwordHash,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var room Room
	err = row.Scan(
		&room.Id,
		&room.Name,
		&room.IsPrivate,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		return Room{}, classify("create room", err)
	}

	// the creator is always a member of their room
	_, err = tx.ExecContext(ctx,
		"INSERT INTO room_members (user_id, room_id, joined_at) VALUES ($1, $2, $3)",
		params.CreatedBy,
		room.Id,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgRepository) GetRoom(ctx context.Context, id types.RoomId) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT r.id, r.name, r.is_private, COALESCE(r.password_hash, ''), r.created_by, u.username, r.created_at "+
			"FROM rooms r JOIN users u ON u.id = r.created_by "+
			"WHERE r.id = $1 LIMIT 1",
		id,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.IsPrivate,
		&room.PasswordHash,
		&room.CreatedBy,
		&room.CreatedByUsername,
		&room.CreatedAt,
	)

	return room, classify("get room", err)
}

func (db *PgRepository) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT r.id, r.name, r.is_private, r.created_by, u.username, r.created_at "+
			"FROM rooms r JOIN users u ON u.id = r.created_by "+
			"ORDER BY r.created_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.Id,
			&room.Name,
			&room.IsPrivate,
			&room.CreatedBy,
			&room.CreatedByUsername,
			&room.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgRepository) UpdateRoomName(ctx context.Context, id types.RoomId, name string) error {
	res, err := db.conn.ExecContext(ctx, "UPDATE rooms SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return classify("update room", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update room: %w", ErrNotFound)
	}
	return nil
}

func (db *PgRepository) DeleteRoom(ctx context.Context, id types.RoomId) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func (db *PgRepository) AddRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO room_members (user_id, room_id, joined_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_id, room_id) DO NOTHING",
		userId,
		roomId,
		time.Now().UTC(),
	)

	return classify("add room member", err)
}

func (db *PgRepository) RemoveRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM room_members WHERE user_id = $1 AND room_id = $2",
		userId,
		roomId,
	)

	return err
}

func (db *PgRepository) ListRoomMembers(ctx context.Context, roomId types.RoomId) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT u.id, u.username FROM room_members rm "+
			"JOIN users u ON u.id = rm.user_id WHERE rm.room_id = $1 ORDER BY u.username",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		members = append(members, u)
	}

	return members, rows.Err()
}

// GetMessages returns a page of a room's history, newest first.
func (db *PgRepository) GetMessages(ctx context.Context, roomId types.RoomId, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.room_id, m.user_id, u.username, m.content, m.created_at "+
			"FROM messages m JOIN users u ON u.id = m.user_id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
