// Package tracker holds the process-local presence, room and typing state of live connections.
// Mutation happens on the hub goroutine; the locks exist for readers on HTTP goroutines.
package tracker

import (
	"sort"
	"sync"
)

// Presence maps an identity to the set of connection handles it currently holds
type Presence struct {
	mu      sync.RWMutex
	handles map[int64]map[string]struct{}
}

// NewPresence creates an empty presence registry
func NewPresence() *Presence {
	return &Presence{
		handles: make(map[int64]map[string]struct{}),
	}
}

// Register adds handle to identityID. first is true when the identity had no handles before.
func (p *Presence) Register(identityID int64, handle string) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.handles[identityID]
	if !ok {
		set = make(map[string]struct{})
		p.handles[identityID] = set
	}
	first = len(set) == 0
	set[handle] = struct{}{}
	return first
}

// Deregister removes handle from identityID. last is true when that removal left the identity
// offline. Unknown handles are ignored.
func (p *Presence) Deregister(identityID int64, handle string) (last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.handles[identityID]
	if !ok {
		return false
	}
	if _, held := set[handle]; !held {
		return false
	}

	delete(set, handle)
	if len(set) == 0 {
		delete(p.handles, identityID)
		return true
	}
	return false
}

// IsOnline reports whether identityID holds at least one handle
func (p *Presence) IsOnline(identityID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles[identityID]) > 0
}

// Handles returns the handles held by identityID
func (p *Presence) Handles(identityID int64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.handles[identityID])
}

// Count returns the number of online identities
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// Online returns the online identity ids in ascending order
func (p *Presence) Online() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int64, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
