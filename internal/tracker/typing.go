package tracker

import (
	"sort"
	"sync"
)

// Typing records which identities are currently typing in each session
type Typing struct {
	mu       sync.RWMutex
	sessions map[int64]map[int64]struct{}
}

// NewTyping creates an empty typing tracker
func NewTyping() *Typing {
	return &Typing{
		sessions: make(map[int64]map[int64]struct{}),
	}
}

// Start marks identityID as typing in sessionID. changed is false if it already was.
func (t *Typing) Start(sessionID, identityID int64) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.sessions[sessionID]
	if !ok {
		set = make(map[int64]struct{})
		t.sessions[sessionID] = set
	}
	if _, typing := set[identityID]; typing {
		return false
	}
	set[identityID] = struct{}{}
	return true
}

// Stop clears identityID's typing flag in sessionID. changed is false if it was not set.
func (t *Typing) Stop(sessionID, identityID int64) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	if _, typing := set[identityID]; !typing {
		return false
	}

	delete(set, identityID)
	if len(set) == 0 {
		delete(t.sessions, sessionID)
	}
	return true
}

// Typing returns the identities typing in sessionID, ascending
func (t *Typing) Typing(sessionID int64) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.sessions[sessionID]))
	for id := range t.sessions[sessionID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsTyping reports whether identityID is typing in sessionID
func (t *Typing) IsTyping(sessionID, identityID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[sessionID][identityID]
	return ok
}

// StopAll clears identityID from every session and returns the sessions it was typing in, ascending
func (t *Typing) StopAll(identityID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stopped []int64
	for sessionID, set := range t.sessions {
		if _, typing := set[identityID]; !typing {
			continue
		}
		delete(set, identityID)
		if len(set) == 0 {
			delete(t.sessions, sessionID)
		}
		stopped = append(stopped, sessionID)
	}
	sort.Slice(stopped, func(i, j int) bool { return stopped[i] < stopped[j] })
	return stopped
}
