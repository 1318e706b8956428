package types

import (
	"strconv"
	"time"
)

// RoomId identifies a chat room. It is deliberately distinct from UserId so
// the two can't be swapped by accident when used as map keys.
type RoomId int64

func (id RoomId) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type UserId int64

func (id UserId) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// User is the identity bound to a connection at handshake.
type User struct {
	Id       UserId `json:"id"`
	Username string `json:"username"`
}

type SystemEventType string

const (
	UserJoined SystemEventType = "userJoined"
	UserLeft   SystemEventType = "userLeft"
)

// ChatEvent is what a connection publishes to the broker. It travels through
// the broker unchanged and is persisted by the gateway's consumer.
type ChatEvent struct {
	RoomId    RoomId `json:"roomId"`
	UserId    UserId `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"ts"`
}

func NewChatEvent(roomId RoomId, user User, content string, now time.Time) ChatEvent {
	return ChatEvent{
		RoomId:    roomId,
		UserId:    user.Id,
		Username:  user.Username,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// SystemEvent is a local, non-persisted room notification.
type SystemEvent struct {
	RoomId RoomId          `json:"roomId"`
	Type   SystemEventType `json:"type"`
	User   User            `json:"user"`
}

// Message is a persisted chat event as delivered to room members.
type Message struct {
	Id        int64     `json:"id"`
	RoomId    RoomId    `json:"roomId"`
	UserId    UserId    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"ts"`
	CreatedAt time.Time `json:"createdAt"`
}

type Room struct {
	Id                RoomId    `json:"id"`
	Name              string    `json:"name"`
	IsPrivate         bool      `json:"isPrivate"`
	CreatedBy         UserId    `json:"createdBy"`
	CreatedByUsername string    `json:"createdByUsername,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
}
