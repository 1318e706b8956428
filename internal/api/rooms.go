package api

import (
	"net/http"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/samber/lo"
)

type CreateRoomRequest struct {
	Name      string `json:"name" validate:"required,max=128"`
	IsPrivate bool   `json:"isPrivate"`
	Password  string `json:"password" validate:"required_if=IsPrivate true,max=72"`
}

type UpdateRoomRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type JoinRoomRequest struct {
	Password string `json:"password"`
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:                r.Id,
		Name:              r.Name,
		IsPrivate:         r.IsPrivate,
		CreatedBy:         r.CreatedBy,
		CreatedByUsername: r.CreatedByUsername,
		CreatedAt:         r.CreatedAt,
	}
}

func toUser(u database.User) types.User {
	return types.User{Id: u.Id, Username: u.Username}
}

// loadRoom resolves the {id} path segment to a stored room, writing the
// error response itself when it can't.
func (s *App) loadRoom(w http.ResponseWriter, r *http.Request, name string) (database.Room, bool) {
	id, ok := pathRoomId(r, name)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return database.Room{}, false
	}

	room, err := s.db.GetRoom(r.Context(), id)
	if err != nil {
		s.writeError(w, dbError(err))
		return database.Room{}, false
	}

	return room, true
}

func (s *App) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.ListRooms(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(rooms, func(r database.Room, _ int) types.Room { return toRoom(r) }))
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if errResp := s.decodeJson(w, r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	params := database.CreateRoomParams{
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
		CreatedBy: user.Id,
	}

	if req.IsPrivate {
		pwdHash, err := hashPassword(req.Password)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}
		params.PasswordHash = pwdHash
	}

	newRoom, err := s.db.CreateRoom(r.Context(), params)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}
	newRoom.CreatedByUsername = user.Username

	s.writeJson(w, http.StatusCreated, toRoom(newRoom))
}

func (s *App) updateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.loadRoom(w, r, "id")
	if !ok {
		return
	}

	// only the creator may rename a room
	if room.CreatedBy != user.Id {
		s.writeError(w, NewForbiddenError())
		return
	}

	var req UpdateRoomRequest
	if errResp := s.decodeJson(w, r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if err := s.db.UpdateRoomName(r.Context(), room.Id, req.Name); err != nil {
		s.writeError(w, dbError(err))
		return
	}
	room.Name = req.Name

	s.writeJson(w, http.StatusOK, toRoom(room))
}

func (s *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.loadRoom(w, r, "id")
	if !ok {
		return
	}

	if room.CreatedBy != user.Id {
		s.writeError(w, NewForbiddenError())
		return
	}

	if err := s.db.DeleteRoom(r.Context(), room.Id); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) listMembers(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r, "id")
	if !ok {
		return
	}

	members, err := s.db.ListRoomMembers(r.Context(), room.Id)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(members, func(u database.User, _ int) types.User { return toUser(u) }))
}

func (s *App) joinRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.loadRoom(w, r, "id")
	if !ok {
		return
	}

	if room.IsPrivate && room.CreatedBy != user.Id {
		var req JoinRoomRequest
		if errResp := s.decodeJson(w, r, &req); errResp != nil {
			s.writeError(w, errResp)
			return
		}

		if !verifyPassword(room.PasswordHash, req.Password) {
			s.writeError(w, NewForbiddenError())
			return
		}
	}

	if err := s.db.AddRoomMember(r.Context(), user.Id, room.Id); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) leaveRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.loadRoom(w, r, "id")
	if !ok {
		return
	}

	if err := s.db.RemoveRoomMember(r.Context(), user.Id, room.Id); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}
