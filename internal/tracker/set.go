package tracker

// Set bundles the three trackers the hub coordinates
type Set struct {
	Presence *Presence
	Rooms    *Rooms
	Typing   *Typing
}

// NewSet creates empty trackers
func NewSet() *Set {
	return &Set{
		Presence: NewPresence(),
		Rooms:    NewRooms(),
		Typing:   NewTyping(),
	}
}
