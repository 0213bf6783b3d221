package interfaces

import (
	"context"

	"bankchat/pkg/types"
)

// SessionStore persists chat sessions, messages and agent availability.
// Lookups of unknown sessions return ErrSessionNotFound.
type SessionStore interface {
	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, sessionID int64) (*types.ChatSession, error)

	// CreateSession inserts a waiting session owned by userID
	CreateSession(ctx context.Context, userID int64, subject *string, priority string) (*types.ChatSession, error)

	// UpdateSession applies a partial update and returns the stored result
	UpdateSession(ctx context.Context, sessionID int64, update types.SessionUpdate) (*types.ChatSession, error)

	// AssignAgent sets agentID and activates the session only if no agent is assigned yet.
	// claimed is false when another agent already holds it; session is the stored row either way.
	AssignAgent(ctx context.Context, sessionID, agentID int64) (session *types.ChatSession, claimed bool, err error)

	// ListSessions returns sessions newest first
	ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.ChatSession, error)

	// AddMessage appends an immutable message to a session
	AddMessage(ctx context.Context, sessionID, senderID int64, senderType, text string) (*types.ChatMessage, error)

	// ListMessages returns a session transcript ordered by creation time
	ListMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error)

	// MarkMessagesRead flags every message not sent by readerID as read
	MarkMessagesRead(ctx context.Context, sessionID, readerID int64) (int64, error)

	// UpdateAgentStatus upserts the availability of an agent
	UpdateAgentStatus(ctx context.Context, agentID int64, status string) error

	// ListAgentStatuses returns every persisted agent status
	ListAgentStatuses(ctx context.Context) ([]*types.AgentStatus, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
