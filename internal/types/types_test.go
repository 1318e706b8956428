package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatEvent(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	evt := NewChatEvent(5, User{Id: 1, Username: "alice"}, "hi", now)

	assert.Equal(t, RoomId(5), evt.RoomId, "expected room id to be set")
	assert.Equal(t, UserId(1), evt.UserId, "expected user id to be stamped from identity")
	assert.Equal(t, "alice", evt.Username, "expected username to be stamped from identity")
	assert.Equal(t, int64(1700000000123), evt.Timestamp, "expected millisecond timestamp")
}

func TestChatEventWireFormat(t *testing.T) {
	evt := ChatEvent{RoomId: 5, UserId: 1, Username: "alice", Content: "hi", Timestamp: 42}

	b, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":5,"userId":1,"username":"alice","content":"hi","ts":42}`, string(b))
}

func TestRoomIdString(t *testing.T) {
	assert.Equal(t, "42", RoomId(42).String())
	assert.Equal(t, "7", UserId(7).String())
}
