package tracker

import (
	"sort"
	"sync"
)

// Rooms tracks which connection handles are subscribed to which chat session.
// A reverse index from handle to sessions makes disconnect cleanup proportional to the
// handle's own rooms.
type Rooms struct {
	mu       sync.RWMutex
	members  map[int64]map[string]struct{}
	byHandle map[string]map[int64]struct{}
}

// NewRooms creates an empty room tracker
func NewRooms() *Rooms {
	return &Rooms{
		members:  make(map[int64]map[string]struct{}),
		byHandle: make(map[string]map[int64]struct{}),
	}
}

// Join subscribes handle to sessionID. Joining twice is a no-op.
func (r *Rooms) Join(sessionID int64, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[sessionID]
	if !ok {
		room = make(map[string]struct{})
		r.members[sessionID] = room
	}
	room[handle] = struct{}{}

	joined, ok := r.byHandle[handle]
	if !ok {
		joined = make(map[int64]struct{})
		r.byHandle[handle] = joined
	}
	joined[sessionID] = struct{}{}
}

// Leave unsubscribes handle from sessionID and reports whether it was a member
func (r *Rooms) Leave(sessionID int64, handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID, handle)
}

// LeaveAll removes handle from every room and returns the sessions it left, ascending
func (r *Rooms) LeaveAll(handle string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byHandle[handle]
	left := make([]int64, 0, len(joined))
	for sessionID := range joined {
		left = append(left, sessionID)
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })

	for _, sessionID := range left {
		r.leaveLocked(sessionID, handle)
	}
	return left
}

func (r *Rooms) leaveLocked(sessionID int64, handle string) bool {
	room, ok := r.members[sessionID]
	if !ok {
		return false
	}
	if _, member := room[handle]; !member {
		return false
	}

	delete(room, handle)
	if len(room) == 0 {
		delete(r.members, sessionID)
	}

	if joined, ok := r.byHandle[handle]; ok {
		delete(joined, sessionID)
		if len(joined) == 0 {
			delete(r.byHandle, handle)
		}
	}
	return true
}

// Members returns the handles subscribed to sessionID
func (r *Rooms) Members(sessionID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.members[sessionID])
}

// IsMember reports whether handle is subscribed to sessionID
func (r *Rooms) IsMember(sessionID int64, handle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[sessionID][handle]
	return ok
}

// SessionsOf returns the sessions handle is subscribed to, ascending
func (r *Rooms) SessionsOf(handle string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byHandle[handle]))
	for id := range r.byHandle[handle] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of non-empty rooms
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
