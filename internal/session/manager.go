package session

import (
	"context"
	"fmt"
	"log"

	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

// Manager applies chat session rules on top of a SessionStore.
// Every call reads through to the store; nothing is cached between calls.
type Manager struct {
	store            interfaces.SessionStore
	maxMessageLength int
}

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore, maxMessageLength int) *Manager {
	if maxMessageLength <= 0 {
		maxMessageLength = types.DefaultMaxMessageLength
	}
	return &Manager{
		store:            store,
		maxMessageLength: maxMessageLength,
	}
}

// MaxMessageLength returns the configured message length limit in characters
func (m *Manager) MaxMessageLength() int {
	return m.maxMessageLength
}

// CreateSession opens a waiting session for the customer and writes the greeting system message
func (m *Manager) CreateSession(ctx context.Context, owner *types.Identity, subject *string, priority string) (*types.ChatSession, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	subject, err := types.NormalizeSubject(subject)
	if err != nil {
		return nil, err
	}
	if priority == "" {
		priority = types.PriorityNormal
	}
	if !types.IsValidPriority(priority) {
		return nil, types.ErrInvalidPriority
	}

	session, err := m.store.CreateSession(ctx, owner.ID, subject, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if _, err := m.store.AddMessage(ctx, session.ID, types.SystemSenderID, types.SenderTypeSystem, types.SessionStartedText); err != nil {
		return nil, fmt.Errorf("failed to write system message: %w", err)
	}

	log.Printf("Created chat session: id=%d user=%d priority=%s", session.ID, owner.ID, session.Priority)
	return session, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.ChatSession, error) {
	return m.store.GetSession(ctx, sessionID)
}

// Authorize fetches the session and checks that identity owns it or is an admin
func (m *Manager) Authorize(ctx context.Context, sessionID int64, identity *types.Identity) (*types.ChatSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOwnerOrAdmin(identity) {
		return nil, ErrAccessDenied
	}
	return session, nil
}

// ClaimIfUnassigned makes agent the session's agent and activates it when the session has none.
// claimed is false when nothing changed.
func (m *Manager) ClaimIfUnassigned(ctx context.Context, sessionID int64, agent *types.Identity) (updated *types.ChatSession, claimed bool, err error) {
	if agent == nil || !agent.IsAdmin {
		return nil, false, nil
	}

	current, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if current.HasAgent() {
		return current, false, nil
	}

	updated, claimed, err = m.store.AssignAgent(ctx, sessionID, agent.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to assign agent: %w", err)
	}
	if claimed {
		log.Printf("Agent %d assigned to chat session %d", agent.ID, sessionID)
	}
	return updated, claimed, nil
}

// NormalizeText trims text and enforces the configured length limit
func (m *Manager) NormalizeText(text string) (string, error) {
	return types.NormalizeMessageText(text, m.maxMessageLength)
}

// PostMessage persists an already-normalized message from sender into session
func (m *Manager) PostMessage(ctx context.Context, session *types.ChatSession, sender *types.Identity, text string) (*types.ChatMessage, error) {
	message, err := m.store.AddMessage(ctx, session.ID, sender.ID, sender.SenderType(), text)
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	return message, nil
}

// UpdateSession applies an admin update
func (m *Manager) UpdateSession(ctx context.Context, actor *types.Identity, sessionID int64, update types.SessionUpdate) (*types.ChatSession, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrAdminRequired
	}
	if update.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	session, err := m.store.UpdateSession(ctx, sessionID, update)
	if err != nil {
		return nil, err
	}

	log.Printf("Chat session %d updated by admin %d: status=%s priority=%s", sessionID, actor.ID, session.Status, session.Priority)
	return session, nil
}

// ListSessions returns the caller's own sessions, or every session for admins.
// status filters admin listings only.
func (m *Manager) ListSessions(ctx context.Context, identity *types.Identity, status string) ([]*types.ChatSession, error) {
	if identity == nil {
		return nil, ErrNoIdentity
	}
	if status != "" && !types.IsValidSessionStatus(status) {
		return nil, types.ErrInvalidStatus
	}

	filter := types.SessionFilter{}
	if identity.IsAdmin {
		filter.Status = status
	} else {
		userID := identity.ID
		filter.UserID = &userID
	}

	return m.store.ListSessions(ctx, filter)
}

// Transcript marks the other side's messages read for reader and returns the full history
func (m *Manager) Transcript(ctx context.Context, sessionID int64, reader *types.Identity) ([]*types.ChatMessage, error) {
	session, err := m.Authorize(ctx, sessionID, reader)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.MarkMessagesRead(ctx, session.ID, reader.ID); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}

	return m.store.ListMessages(ctx, session.ID)
}

// SetAgentStatus persists the availability of an agent
func (m *Manager) SetAgentStatus(ctx context.Context, agentID int64, status string) error {
	if !types.IsValidAgentStatus(status) {
		return types.ErrInvalidAgentStatus
	}
	return m.store.UpdateAgentStatus(ctx, agentID, status)
}

// AgentStatuses returns the persisted status of every agent
func (m *Manager) AgentStatuses(ctx context.Context) ([]*types.AgentStatus, error) {
	return m.store.ListAgentStatuses(ctx)
}

// HealthCheck checks the backing store
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}
