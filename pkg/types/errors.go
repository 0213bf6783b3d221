package types

import "errors"

var (
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrInvalidSessionID   = errors.New("session ID must be a positive integer")
	ErrEmptyMessage       = errors.New("message text is required")
	ErrMessageTooLong     = errors.New("message text exceeds maximum length")
	ErrInvalidStatus      = errors.New("invalid session status")
	ErrInvalidPriority    = errors.New("invalid session priority")
	ErrInvalidAgentStatus = errors.New("invalid agent status: must be online, busy or offline")
	ErrInvalidSenderType  = errors.New("invalid sender type")
	ErrSubjectTooLong     = errors.New("subject must be at most 200 characters")
)
