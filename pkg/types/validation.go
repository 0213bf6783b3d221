package types

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageLength bounds message_text in characters
const DefaultMaxMessageLength = 2000

const maxSubjectLength = 200

// NormalizeMessageText trims the text and checks it against maxLen characters.
// A maxLen of zero or less applies DefaultMaxMessageLength.
func NormalizeMessageText(text string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// NormalizeSubject trims an optional subject; blank subjects become nil
func NormalizeSubject(subject *string) (*string, error) {
	if subject == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*subject)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxSubjectLength {
		return nil, ErrSubjectTooLong
	}
	return &trimmed, nil
}

// IsValidSessionStatus reports whether status is one of the session lifecycle states
func IsValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusResolved, SessionStatusClosed:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether the status ends the session lifecycle
func IsTerminalStatus(status string) bool {
	return status == SessionStatusResolved || status == SessionStatusClosed
}

// IsValidPriority accepts low, normal, high and urgent
func IsValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// IsValidAgentStatus reports whether status is a known agent availability
func IsValidAgentStatus(status string) bool {
	switch status {
	case AgentStatusOnline, AgentStatusBusy, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// IsValidSenderType reports whether senderType is user, agent or system
func IsValidSenderType(senderType string) bool {
	switch senderType {
	case SenderTypeUser, SenderTypeAgent, SenderTypeSystem:
		return true
	default:
		return false
	}
}

// Validate checks every field set on the update
func (u *SessionUpdate) Validate() error {
	if u.Status != nil && !IsValidSessionStatus(*u.Status) {
		return ErrInvalidStatus
	}
	if u.Priority != nil && !IsValidPriority(*u.Priority) {
		return ErrInvalidPriority
	}
	if u.AgentID != nil && *u.AgentID <= 0 {
		return ErrInvalidPayload
	}
	return nil
}
