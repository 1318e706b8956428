package database

import (
	"context"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

// MessageStore is the durable write path for chat content. The gateway's
// broker consumer is its only caller.
type MessageStore interface {
	InsertMessage(ctx context.Context, roomId types.RoomId, userId types.UserId, content string) (Message, error)
}

type Repository interface {
	MessageStore
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id types.UserId) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoom(ctx context.Context, id types.RoomId) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	UpdateRoomName(ctx context.Context, id types.RoomId, name string) error
	DeleteRoom(ctx context.Context, id types.RoomId) error
	AddRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error
	RemoveRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error
	ListRoomMembers(ctx context.Context, roomId types.RoomId) ([]User, error)
	GetMessages(ctx context.Context, roomId types.RoomId, limit, offset int) ([]Message, error)
}
