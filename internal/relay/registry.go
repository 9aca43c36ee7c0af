package relay

import (
	"sort"
	"sync"
)

// Registry tracks which room each connection currently occupies. A
// connection is in at most one room; empty rooms are discarded.
//
// Mutations happen on the relay loop. The lock only guards reads from other
// goroutines (stats, tests).
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	roomOf map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]struct{}),
		roomOf: make(map[string]string),
	}
}

// Join moves connID into roomID. It returns the room the connection left, or
// "" if it was not in a different room. Joining the current room is a no-op.
func (r *Registry) Join(connID, roomID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.roomOf[connID]
	if ok && prev == roomID {
		return ""
	}
	if ok {
		r.removeLocked(connID, prev)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}
	r.roomOf[connID] = roomID

	return prev
}

// Leave removes connID from roomID. It reports whether the connection was a
// member of that room.
func (r *Registry) Leave(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomOf[connID] != roomID {
		return false
	}
	r.removeLocked(connID, roomID)
	return true
}

// OnDisconnect removes connID from whatever room it occupied and returns
// that room, or "" if it was in none.
func (r *Registry) OnDisconnect(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.roomOf[connID]
	if !ok {
		return ""
	}
	r.removeLocked(connID, roomID)
	return roomID
}

// MembersOf returns the connection ids in roomID in sorted order.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomOf returns the room connID occupies.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.roomOf[connID]
	return roomID, ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) removeLocked(connID, roomID string) {
	delete(r.roomOf, connID)
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}
