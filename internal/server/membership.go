package server

import (
	"slices"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/samber/lo"
)

// Rooms is the in-memory room membership table. It tracks which live
// connections are in which room, plus the reverse index so a closing
// connection can be removed from all of its rooms in one step.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[types.RoomId]map[*Client]struct{}
	conns map[*Client]map[types.RoomId]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[types.RoomId]map[*Client]struct{}),
		conns: make(map[*Client]map[types.RoomId]struct{}),
	}
}

// Join adds c to room. It reports whether c was not already a member.
func (r *Rooms) Join(room types.RoomId, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	if _, ok := members[c]; ok {
		return false
	}
	members[c] = struct{}{}

	joined, ok := r.conns[c]
	if !ok {
		joined = make(map[types.RoomId]struct{})
		r.conns[c] = joined
	}
	joined[room] = struct{}{}

	return true
}

// Leave removes c from room. It reports whether c was a member.
func (r *Rooms) Leave(room types.RoomId, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.remove(room, c)
}

// RemoveConnection removes c from every room it joined and returns those
// rooms.
func (r *Rooms) RemoveConnection(c *Client) []types.RoomId {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.conns[c])
	for _, room := range left {
		r.remove(room, c)
	}
	slices.Sort(left)

	return left
}

// MembersOf returns a snapshot of the connections in room.
func (r *Rooms) MembersOf(room types.RoomId) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.rooms[room])
}

// RoomsOf returns a snapshot of the rooms c has joined, in ascending order.
func (r *Rooms) RoomsOf(c *Client) []types.RoomId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := lo.Keys(r.conns[c])
	slices.Sort(rooms)

	return rooms
}

// Len returns the number of rooms with at least one member.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// remove must be called with mu held.
func (r *Rooms) remove(room types.RoomId, c *Client) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if joined, ok := r.conns[c]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.conns, c)
		}
	}

	return true
}
