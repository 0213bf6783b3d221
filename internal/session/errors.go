package session

import (
	"errors"

	"bankchat/pkg/interfaces"
)

// Chat session error types
var (
	ErrSessionNotFound = interfaces.ErrSessionNotFound
	ErrAccessDenied    = errors.New("access denied to this chat session")
	ErrAdminRequired   = errors.New("admin privileges required")
	ErrEmptyUpdate     = errors.New("update must change status, priority or agent")
	ErrNoIdentity      = errors.New("identity required")
)
