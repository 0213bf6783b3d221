package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBufferFull       = errors.New("write buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection      = errors.New("connection cannot be nil")
	ErrDuplicateHandle    = errors.New("connection handle already registered")
	ErrConnectionNotFound = errors.New("connection not found")
)
