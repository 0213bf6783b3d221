package websocket

import (
	"log"
	"sync"

	"bankchat/internal/metrics"
	"bankchat/pkg/interfaces"
)

// Registry tracks open connections by handle and delivers frames to them
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

var _ interfaces.Deliverer = (*Registry)(nil)

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds a connection under its handle
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.Handle()]; exists {
		return ErrDuplicateHandle
	}
	r.connections[conn.Handle()] = conn
	metrics.OpenConnections.Set(float64(len(r.connections)))

	return nil
}

// Unregister removes conn if it is the connection registered under its handle
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.Handle()]; !exists || registered != conn {
		return
	}
	delete(r.connections, conn.Handle())
	metrics.OpenConnections.Set(float64(len(r.connections)))
}

// Get returns the connection registered under handle
func (r *Registry) Get(handle string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[handle]
	return conn, exists
}

// SendTo delivers v to one connection
func (r *Registry) SendTo(handle string, v interface{}) error {
	conn, exists := r.Get(handle)
	if !exists {
		return ErrConnectionNotFound
	}
	return conn.WriteJSON(v)
}

// SendToAll delivers v to every open connection and returns how many accepted it
func (r *Registry) SendToAll(v interface{}) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Failed to deliver broadcast to %s: %v", conn.Handle(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of open connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make(map[int64]struct{})
	for _, conn := range r.connections {
		if id := conn.Identity(); id != nil {
			identities[id.ID] = struct{}{}
		}
	}

	return map[string]int{
		"total_connections":   len(r.connections),
		"distinct_identities": len(identities),
	}
}

// CloseAll closes every registered connection. Read pumps notice the closed
// sockets and unregister on their own.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		_ = conn.Close()
	}
	return len(targets)
}
