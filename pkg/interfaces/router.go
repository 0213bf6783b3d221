package interfaces

// Deliverer writes frames to live connections by handle.
// Handles that are no longer connected are skipped silently.
type Deliverer interface {
	// SendTo delivers v to a single connection
	SendTo(handle string, v interface{}) error

	// SendToAll delivers v to every connection and returns how many accepted it
	SendToAll(v interface{}) int
}
