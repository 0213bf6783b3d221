package interfaces

import "bankchat/pkg/types"

// Connection is one physical client connection.
// WriteJSON must be safe for concurrent callers.
type Connection interface {
	// WriteJSON queues a JSON frame for the client
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its writer
	Close() error

	// Handle returns the opaque, per-socket connection handle
	Handle() string

	// Identity returns the verified identity attached at upgrade time
	Identity() *types.Identity
}
