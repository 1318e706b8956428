package api

import (
	"net/http"
	"strconv"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/samber/lo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// keeps (page-1)*pageSize far from overflowing
	maxPage = 1_000_000
)

type MessagesPage struct {
	Messages []types.Message `json:"messages"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}

	return v, true
}

// getMessages returns a page of a room's history, newest first. History of
// a private room is only visible to its members.
func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.loadRoom(w, r, "roomId")
	if !ok {
		return
	}

	page, ok := queryInt(r, "page", 1)
	if !ok || page > maxPage {
		s.writeError(w, NewBadRequestError())
		return
	}
	pageSize, ok := queryInt(r, "pageSize", defaultPageSize)
	if !ok {
		s.writeError(w, NewBadRequestError())
		return
	}
	pageSize = min(pageSize, maxPageSize)

	if room.IsPrivate {
		members, err := s.db.ListRoomMembers(r.Context(), room.Id)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		if !lo.ContainsBy(members, func(m database.User) bool { return m.Id == user.Id }) {
			s.writeError(w, NewForbiddenError())
			return
		}
	}

	messages, err := s.db.GetMessages(r.Context(), room.Id, pageSize, (page-1)*pageSize)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, MessagesPage{
		Messages: lo.Map(messages, func(m database.Message, _ int) types.Message {
			return types.Message{
				Id:        m.Id,
				RoomId:    m.RoomId,
				UserId:    m.UserId,
				Username:  m.Username,
				Content:   m.Content,
				Timestamp: m.CreatedAt.UnixMilli(),
				CreatedAt: m.CreatedAt,
			}
		}),
		Page:     page,
		PageSize: pageSize,
	})
}
