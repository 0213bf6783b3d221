package types

import (
	"strings"
	"time"
)

// Chat session lifecycle states
const (
	SessionStatusWaiting  = "waiting"
	SessionStatusActive   = "active"
	SessionStatusResolved = "resolved"
	SessionStatusClosed   = "closed"
)

// Session priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Message sender types
const (
	SenderTypeUser   = "user"
	SenderTypeAgent  = "agent"
	SenderTypeSystem = "system"
)

// Agent availability states
const (
	AgentStatusOnline  = "online"
	AgentStatusBusy    = "busy"
	AgentStatusOffline = "offline"
)

// SystemSenderID is recorded as sender_id for synthesized system messages
const SystemSenderID int64 = 0

// SessionStartedText is the system message written when a session is created
const SessionStartedText = "Chat session started. An agent will be with you shortly."

// Identity is the verified claim attached to a connection or HTTP request.
// It is immutable for the lifetime of the connection.
type Identity struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	IsAdmin     bool   `json:"isAdmin"`
	AccountType string `json:"accountType"`
}

// DisplayName returns "First Last", falling back to the email address
func (i *Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Email
	}
	return name
}

// SenderType maps the identity to the sender type recorded on its messages
func (i *Identity) SenderType() string {
	if i.IsAdmin {
		return SenderTypeAgent
	}
	return SenderTypeUser
}

// ChatSession is a persisted customer-support conversation
type ChatSession struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"userId" db:"user_id"`
	AgentID   *int64     `json:"agentId" db:"agent_id"`
	Status    string     `json:"status" db:"status"`
	Subject   *string    `json:"subject,omitempty" db:"subject"`
	Priority  string     `json:"priority" db:"priority"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	ClosedAt  *time.Time `json:"closedAt,omitempty" db:"closed_at"`
}

// HasAgent reports whether an agent has been assigned
func (s *ChatSession) HasAgent() bool {
	return s.AgentID != nil
}

// IsOwnerOrAdmin reports whether the identity may read or write the session
func (s *ChatSession) IsOwnerOrAdmin(identity *Identity) bool {
	if identity == nil {
		return false
	}
	return identity.IsAdmin || identity.ID == s.UserID
}

// ChatMessage is a persisted, immutable chat message
type ChatMessage struct {
	ID          int64     `json:"id" db:"id"`
	SessionID   int64     `json:"sessionId" db:"session_id"`
	SenderID    int64     `json:"senderId" db:"sender_id"`
	SenderType  string    `json:"senderType" db:"sender_type"`
	MessageText string    `json:"messageText" db:"message_text"`
	IsRead      bool      `json:"isRead" db:"is_read"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// SessionUpdate carries the fields of a partial session update; nil means unchanged
type SessionUpdate struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	AgentID  *int64  `json:"agentId,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u *SessionUpdate) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.AgentID == nil
}

// SessionFilter narrows ListSessions results
type SessionFilter struct {
	UserID *int64
	Status string
}

// AgentStatus is the persisted availability of a support agent
type AgentStatus struct {
	AgentID   int64     `json:"agentId" db:"agent_id"`
	Status    string    `json:"status" db:"status"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
