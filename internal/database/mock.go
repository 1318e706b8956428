package database

import (
	"context"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) InsertMessage(ctx context.Context, roomId types.RoomId, userId types.UserId, content string) (Message, error) {
	args := m.Called(ctx, roomId, userId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserById(ctx context.Context, id types.UserId) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoom(ctx context.Context, id types.RoomId) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) UpdateRoomName(ctx context.Context, id types.RoomId, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}
func (m *MockRepository) DeleteRoom(ctx context.Context, id types.RoomId) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepository) AddRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error {
	args := m.Called(ctx, userId, roomId)
	return args.Error(0)
}
func (m *MockRepository) RemoveRoomMember(ctx context.Context, userId types.UserId, roomId types.RoomId) error {
	args := m.Called(ctx, userId, roomId)
	return args.Error(0)
}
func (m *MockRepository) ListRoomMembers(ctx context.Context, roomId types.RoomId) ([]User, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) GetMessages(ctx context.Context, roomId types.RoomId, limit, offset int) ([]Message, error) {
	args := m.Called(ctx, roomId, limit, offset)
	return args.Get(0).([]Message), args.Error(1)
}
