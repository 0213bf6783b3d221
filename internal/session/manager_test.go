package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

// Mock SessionStore for testing
type mockStore struct {
	mu       sync.Mutex
	sessions map[int64]*types.ChatSession
	messages map[int64][]*types.ChatMessage
	agents   map[int64]string
	nextID   int64
	marked   int

	shouldFailCreate  bool
	shouldFailMessage bool

	// beforeAssign runs inside AssignAgent before the conditional write
	beforeAssign func(s *types.ChatSession)
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[int64]*types.ChatSession),
		messages: make(map[int64][]*types.ChatMessage),
		agents:   make(map[int64]string),
	}
}

func (m *mockStore) GetSession(ctx context.Context, id int64) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) CreateSession(ctx context.Context, userID int64, subject *string, priority string) (*types.ChatSession, error) {
	if m.shouldFailCreate {
		return nil, errors.New("database create failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &types.ChatSession{ID: m.nextID, UserID: userID, Status: types.SessionStatusWaiting, Subject: subject, Priority: priority, CreatedAt: time.Now()}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *mockStore) UpdateSession(ctx context.Context, id int64, update types.SessionUpdate) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	if update.Status != nil {
		s.Status = *update.Status
	}
	if update.Priority != nil {
		s.Priority = *update.Priority
	}
	if update.AgentID != nil {
		id := *update.AgentID
		s.AgentID = &id
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) AssignAgent(ctx context.Context, id, agentID int64) (*types.ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false, interfaces.ErrSessionNotFound
	}
	if m.beforeAssign != nil {
		m.beforeAssign(s)
	}
	claimed := s.AgentID == nil
	if claimed {
		s.AgentID = &agentID
		s.Status = types.SessionStatusActive
	}
	cp := *s
	return &cp, claimed, nil
}

func (m *mockStore) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.ChatSession
	for _, s := range m.sessions {
		if filter.UserID != nil && s.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockStore) AddMessage(ctx context.Context, sessionID, senderID int64, senderType, text string) (*types.ChatMessage, error) {
	if m.shouldFailMessage {
		return nil, errors.New("database insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &types.ChatMessage{ID: int64(len(m.messages[sessionID]) + 1), SessionID: sessionID, SenderID: senderID, SenderType: senderType, MessageText: text}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *mockStore) ListMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[sessionID], nil
}

func (m *mockStore) MarkMessagesRead(ctx context.Context, sessionID, readerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages[sessionID] {
		if msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	m.marked++
	return n, nil
}

func (m *mockStore) UpdateAgentStatus(ctx context.Context, agentID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agentID] = status
	return nil
}

func (m *mockStore) ListAgentStatuses(ctx context.Context) ([]*types.AgentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.AgentStatus
	for id, status := range m.agents {
		out = append(out, &types.AgentStatus{AgentID: id, Status: status})
	}
	return out, nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

var (
	customer = &types.Identity{ID: 1, Email: "ada@bank.test", FirstName: "Ada"}
	stranger = &types.Identity{ID: 3, Email: "eve@bank.test"}
	admin    = &types.Identity{ID: 2, Email: "bob@bank.test", FirstName: "Bob", IsAdmin: true}
)

func TestManager_CreateSessionWritesSystemMessage(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	subject := "  Card blocked  "
	session, err := manager.CreateSession(ctx, customer, &subject, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.Priority != types.PriorityNormal {
		t.Errorf("Expected default priority, got %s", session.Priority)
	}
	if session.Subject == nil || *session.Subject != "Card blocked" {
		t.Errorf("Expected trimmed subject, got %v", session.Subject)
	}

	messages := store.messages[session.ID]
	if len(messages) != 1 {
		t.Fatalf("Expected 1 system message, got %d", len(messages))
	}
	if messages[0].SenderType != types.SenderTypeSystem || messages[0].SenderID != types.SystemSenderID {
		t.Errorf("Expected system sender, got %+v", messages[0])
	}
	if messages[0].MessageText != types.SessionStartedText {
		t.Errorf("Unexpected greeting: %q", messages[0].MessageText)
	}
}

func TestManager_CreateSessionValidation(t *testing.T) {
	manager := NewManager(newMockStore(), 0)
	ctx := context.Background()

	if _, err := manager.CreateSession(ctx, nil, nil, ""); err != ErrNoIdentity {
		t.Errorf("Expected ErrNoIdentity, got %v", err)
	}
	if _, err := manager.CreateSession(ctx, customer, nil, "critical"); err != types.ErrInvalidPriority {
		t.Errorf("Expected ErrInvalidPriority, got %v", err)
	}
}

func TestManager_CreateSessionStoreFailure(t *testing.T) {
	store := newMockStore()
	store.shouldFailCreate = true
	manager := NewManager(store, 0)

	if _, err := manager.CreateSession(context.Background(), customer, nil, ""); err == nil {
		t.Error("Expected store failure to propagate")
	}
}

func TestManager_Authorize(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")

	if _, err := manager.Authorize(ctx, session.ID, customer); err != nil {
		t.Errorf("Owner should be authorized: %v", err)
	}
	if _, err := manager.Authorize(ctx, session.ID, admin); err != nil {
		t.Errorf("Admin should be authorized: %v", err)
	}
	if _, err := manager.Authorize(ctx, session.ID, stranger); err != ErrAccessDenied {
		t.Errorf("Expected ErrAccessDenied, got %v", err)
	}
	if _, err := manager.Authorize(ctx, 999, customer); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ClaimIfUnassigned(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")

	unchanged, claimed, err := manager.ClaimIfUnassigned(ctx, session.ID, customer)
	if err != nil || claimed || unchanged != nil {
		t.Errorf("Non-admin should never claim: claimed=%v err=%v", claimed, err)
	}

	updated, claimed, err := manager.ClaimIfUnassigned(ctx, session.ID, admin)
	if err != nil {
		t.Fatalf("ClaimIfUnassigned failed: %v", err)
	}
	if !claimed {
		t.Fatal("Admin should claim an unassigned session")
	}
	if updated.Status != types.SessionStatusActive || updated.AgentID == nil || *updated.AgentID != admin.ID {
		t.Errorf("Unexpected claimed session: %+v", updated)
	}

	other := &types.Identity{ID: 9, IsAdmin: true}
	current, claimed, _ := manager.ClaimIfUnassigned(ctx, session.ID, other)
	if claimed {
		t.Error("Assigned session should not be claimed again")
	}
	if current.AgentID == nil || *current.AgentID != admin.ID {
		t.Errorf("Expected stored agent %d, got %+v", admin.ID, current.AgentID)
	}

	if _, _, err := manager.ClaimIfUnassigned(ctx, 999, admin); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ClaimReadsStoredAssignment(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")

	// Reassigned after the caller fetched its copy.
	reassigned := int64(9)
	if _, err := store.UpdateSession(ctx, session.ID, types.SessionUpdate{AgentID: &reassigned}); err != nil {
		t.Fatal(err)
	}

	current, claimed, err := manager.ClaimIfUnassigned(ctx, session.ID, admin)
	if err != nil {
		t.Fatalf("ClaimIfUnassigned failed: %v", err)
	}
	if claimed {
		t.Error("Reassigned session should not be claimed")
	}
	if current.AgentID == nil || *current.AgentID != reassigned {
		t.Errorf("Expected agent %d to be kept, got %+v", reassigned, current.AgentID)
	}
}

func TestManager_ClaimLosesConcurrentAssignment(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")

	// Another agent wins between the read and the conditional write.
	winner := int64(9)
	store.beforeAssign = func(s *types.ChatSession) { s.AgentID = &winner }

	current, claimed, err := manager.ClaimIfUnassigned(ctx, session.ID, admin)
	if err != nil {
		t.Fatalf("ClaimIfUnassigned failed: %v", err)
	}
	if claimed {
		t.Error("Claim should report false when the write matched no row")
	}
	if current.AgentID == nil || *current.AgentID != winner {
		t.Errorf("Expected winning agent %d, got %+v", winner, current.AgentID)
	}
}

func TestManager_NormalizeText(t *testing.T) {
	manager := NewManager(newMockStore(), 5)

	if _, err := manager.NormalizeText("   "); err != types.ErrEmptyMessage {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
	if _, err := manager.NormalizeText("toolong"); err != types.ErrMessageTooLong {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
	if got, err := manager.NormalizeText(" hi "); err != nil || got != "hi" {
		t.Errorf("Expected trimmed text, got %q (%v)", got, err)
	}
	if manager.MaxMessageLength() != 5 {
		t.Errorf("Expected limit 5, got %d", manager.MaxMessageLength())
	}
	if NewManager(newMockStore(), 0).MaxMessageLength() != types.DefaultMaxMessageLength {
		t.Error("Zero limit should fall back to the default")
	}
}

func TestManager_PostMessageUsesSenderType(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")

	msg, err := manager.PostMessage(ctx, session, admin, "Hello")
	if err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	if msg.SenderType != types.SenderTypeAgent || msg.SenderID != admin.ID {
		t.Errorf("Unexpected message sender: %+v", msg)
	}

	store.shouldFailMessage = true
	if _, err := manager.PostMessage(ctx, session, customer, "Hi"); err == nil {
		t.Error("Expected store failure to propagate")
	}
}

func TestManager_UpdateSession(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")
	high := types.PriorityHigh

	if _, err := manager.UpdateSession(ctx, customer, session.ID, types.SessionUpdate{Priority: &high}); err != ErrAdminRequired {
		t.Errorf("Expected ErrAdminRequired, got %v", err)
	}
	if _, err := manager.UpdateSession(ctx, admin, session.ID, types.SessionUpdate{}); err != ErrEmptyUpdate {
		t.Errorf("Expected ErrEmptyUpdate, got %v", err)
	}
	bad := "archived"
	if _, err := manager.UpdateSession(ctx, admin, session.ID, types.SessionUpdate{Status: &bad}); err != types.ErrInvalidStatus {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	updated, err := manager.UpdateSession(ctx, admin, session.ID, types.SessionUpdate{Priority: &high})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Priority != types.PriorityHigh {
		t.Errorf("Expected high priority, got %s", updated.Priority)
	}
}

func TestManager_ListSessionsScopes(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	_, _ = manager.CreateSession(ctx, customer, nil, "")
	_, _ = manager.CreateSession(ctx, stranger, nil, "")

	own, err := manager.ListSessions(ctx, customer, types.SessionStatusActive)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(own) != 1 || own[0].UserID != customer.ID {
		t.Errorf("Customer should see only own sessions regardless of status filter, got %v", own)
	}

	all, _ := manager.ListSessions(ctx, admin, "")
	if len(all) != 2 {
		t.Errorf("Admin should see all sessions, got %d", len(all))
	}

	waiting, _ := manager.ListSessions(ctx, admin, types.SessionStatusActive)
	if len(waiting) != 0 {
		t.Errorf("Expected no active sessions, got %d", len(waiting))
	}

	if _, err := manager.ListSessions(ctx, admin, "open"); err != types.ErrInvalidStatus {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestManager_TranscriptMarksRead(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, customer, nil, "")
	_, _ = manager.PostMessage(ctx, session, admin, "Hello")

	messages, err := manager.Transcript(ctx, session.ID, customer)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected system + agent messages, got %d", len(messages))
	}
	for _, msg := range messages {
		if !msg.IsRead {
			t.Errorf("Message %d from other side should be read", msg.ID)
		}
	}

	if _, err := manager.Transcript(ctx, session.ID, stranger); err != ErrAccessDenied {
		t.Errorf("Expected ErrAccessDenied, got %v", err)
	}
	if store.marked != 1 {
		t.Errorf("Denied transcript should not mark messages, marked=%d", store.marked)
	}
}

func TestManager_AgentStatus(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store, 0)
	ctx := context.Background()

	if err := manager.SetAgentStatus(ctx, admin.ID, "away"); err != types.ErrInvalidAgentStatus {
		t.Errorf("Expected ErrInvalidAgentStatus, got %v", err)
	}
	if err := manager.SetAgentStatus(ctx, admin.ID, types.AgentStatusBusy); err != nil {
		t.Fatalf("SetAgentStatus failed: %v", err)
	}

	statuses, _ := manager.AgentStatuses(ctx)
	if len(statuses) != 1 || statuses[0].Status != types.AgentStatusBusy {
		t.Errorf("Unexpected statuses: %v", statuses)
	}
	if err := manager.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck should pass: %v", err)
	}
}
