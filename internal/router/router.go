package router

import (
	"log"

	"bankchat/internal/tracker"
	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

// Router fans outbound events out to connection handles.
// It decides who receives a frame; the Deliverer owns the sockets.
type Router struct {
	rooms     *tracker.Rooms
	deliverer interfaces.Deliverer
}

// NewRouter creates a router over room membership and a deliverer
func NewRouter(rooms *tracker.Rooms, deliverer interfaces.Deliverer) *Router {
	return &Router{
		rooms:     rooms,
		deliverer: deliverer,
	}
}

// ToHandle sends one event to a single connection
func (r *Router) ToHandle(handle, event string, payload interface{}) error {
	if r.deliverer == nil {
		return ErrNoDeliverer
	}
	return r.deliverer.SendTo(handle, types.NewOutbound(event, payload))
}

// ToRoom sends an event to every handle in the session's room except the given one.
// Pass an empty except to reach the whole room. Returns the number of handles reached.
func (r *Router) ToRoom(sessionID int64, event string, payload interface{}, except string) int {
	if r.deliverer == nil {
		return 0
	}

	frame := types.NewOutbound(event, payload)
	delivered := 0
	for _, handle := range r.rooms.Members(sessionID) {
		if handle == except {
			continue
		}
		if err := r.deliverer.SendTo(handle, frame); err != nil {
			log.Printf("Failed to deliver %s to %s in session %d: %v", event, handle, sessionID, err)
			continue
		}
		delivered++
	}
	return delivered
}

// ToAll sends an event to every open connection
func (r *Router) ToAll(event string, payload interface{}) int {
	if r.deliverer == nil {
		return 0
	}
	return r.deliverer.SendToAll(types.NewOutbound(event, payload))
}
