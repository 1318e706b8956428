package database

import (
	"time"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

type User struct {
	Id           types.UserId
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	Id                types.RoomId
	Name              string
	IsPrivate         bool
	PasswordHash      string
	CreatedBy         types.UserId
	CreatedByUsername string
	CreatedAt         time.Time
}

type Message struct {
	Id        int64
	RoomId    types.RoomId
	UserId    types.UserId
	Username  string
	Content   string
	CreatedAt time.Time
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	Name         string
	IsPrivate    bool
	PasswordHash string
	CreatedBy    types.UserId
}
