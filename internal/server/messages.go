package server

import (
	"net/http"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

// ClientMessage is an inbound frame. Exactly one of JoinRoom, LeaveRoom or
// SendMessage is set.
type ClientMessage struct {
	Id          int          `json:"id,omitempty"`
	JoinRoom    *RoomRef     `json:"joinRoom,omitempty"`
	LeaveRoom   *RoomRef     `json:"leaveRoom,omitempty"`
	SendMessage *SendMessage `json:"sendMessage,omitempty"`
}

type RoomRef struct {
	RoomId types.RoomId `json:"roomId" validate:"required,gt=0"`
}

type SendMessage struct {
	RoomId  types.RoomId `json:"roomId" validate:"required,gt=0"`
	Content string       `json:"content" validate:"required"`
}

// actions counts the operations set on the frame.
func (m *ClientMessage) actions() int {
	n := 0
	if m.JoinRoom != nil {
		n++
	}
	if m.LeaveRoom != nil {
		n++
	}
	if m.SendMessage != nil {
		n++
	}
	return n
}

type ServerMessage struct {
	Id            int                `json:"id,omitempty"`
	SystemMessage *types.SystemEvent `json:"systemMessage,omitempty"`
	Message       *types.Message     `json:"message,omitempty"`
	Response      *Response          `json:"response,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"responseCode"`
	Error        string `json:"error,omitempty"`
}

func systemMessage(roomId types.RoomId, typ types.SystemEventType, user types.User) *ServerMessage {
	return &ServerMessage{
		SystemMessage: &types.SystemEvent{
			RoomId: roomId,
			Type:   typ,
			User:   user,
		},
	}
}

func ErrInvalidMessage(id int, reason string) *ServerMessage {
	if reason == "" {
		reason = "invalid message format"
	}

	msg := &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}
