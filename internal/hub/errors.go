package hub

import "errors"

// Hub lifecycle errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrNoIdentity        = errors.New("event has no identity")
)

// Client-facing message_error texts
const (
	MsgSessionNotFound = "Chat session not found"
	MsgAccessDenied    = "Access denied to this chat session"
	MsgTextRequired    = "Message text is required"
	MsgTextTooLong     = "Message text is too long"
	MsgInvalidPayload  = "Invalid payload"
	MsgRateLimited     = "Too many messages, please slow down"
	MsgSendFailed      = "Failed to send message"
	MsgJoinFailed      = "Failed to join session"
)
