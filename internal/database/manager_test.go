package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dbconfig "bankchat/pkg/database"
	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	if err := manager.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return manager
}

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.SessionStore = (*Manager)(nil)
}

func TestNewManager_InvalidConfig(t *testing.T) {
	if _, err := NewManager(&dbconfig.Config{}); err == nil {
		t.Error("Expected error for empty config")
	}
}

func TestManager_CreateSession(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, 1, strPtr("Card blocked"), "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.ID == 0 {
		t.Error("Expected assigned session ID")
	}
	if session.UserID != 1 {
		t.Errorf("Expected user 1, got %d", session.UserID)
	}
	if session.Status != types.SessionStatusWaiting {
		t.Errorf("Expected waiting status, got %s", session.Status)
	}
	if session.Priority != types.PriorityNormal {
		t.Errorf("Expected default priority normal, got %s", session.Priority)
	}
	if session.Subject == nil || *session.Subject != "Card blocked" {
		t.Errorf("Expected subject to round-trip, got %v", session.Subject)
	}
	if session.HasAgent() {
		t.Error("New session should not have an agent")
	}
	if session.ClosedAt != nil {
		t.Error("New session should not be closed")
	}
}

func TestManager_CreateSessionInvalidPriority(t *testing.T) {
	manager := setupTestDB(t)

	_, err := manager.CreateSession(context.Background(), 1, nil, "critical")
	if err != types.ErrInvalidPriority {
		t.Errorf("Expected ErrInvalidPriority, got %v", err)
	}
}

func TestManager_GetSessionNotFound(t *testing.T) {
	manager := setupTestDB(t)

	_, err := manager.GetSession(context.Background(), 999)
	if err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_UpdateSession(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, 1, nil, types.PriorityNormal)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	updated, err := manager.UpdateSession(ctx, session.ID, types.SessionUpdate{
		Status:  strPtr(types.SessionStatusActive),
		AgentID: int64Ptr(2),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Status != types.SessionStatusActive {
		t.Errorf("Expected active, got %s", updated.Status)
	}
	if updated.AgentID == nil || *updated.AgentID != 2 {
		t.Errorf("Expected agent 2, got %v", updated.AgentID)
	}

	resolved, err := manager.UpdateSession(ctx, session.ID, types.SessionUpdate{
		Status: strPtr(types.SessionStatusResolved),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if resolved.ClosedAt == nil {
		t.Error("Resolved session should have closed_at set")
	}
	if resolved.AgentID == nil || *resolved.AgentID != 2 {
		t.Error("Partial update should not clear agent")
	}

	reopened, err := manager.UpdateSession(ctx, session.ID, types.SessionUpdate{
		Status: strPtr(types.SessionStatusActive),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if reopened.ClosedAt != nil {
		t.Error("Reopened session should have closed_at cleared")
	}
}

func TestManager_UpdateSessionErrors(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	_, err := manager.UpdateSession(ctx, 999, types.SessionUpdate{Priority: strPtr(types.PriorityHigh)})
	if err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	_, err = manager.UpdateSession(ctx, 1, types.SessionUpdate{Status: strPtr("archived")})
	if err != types.ErrInvalidStatus {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestManager_ListSessionsFilter(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	a, _ := manager.CreateSession(ctx, 1, nil, "")
	_, _ = manager.CreateSession(ctx, 1, nil, "")
	_, _ = manager.CreateSession(ctx, 2, nil, "")

	if _, err := manager.UpdateSession(ctx, a.ID, types.SessionUpdate{Status: strPtr(types.SessionStatusActive)}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	all, err := manager.ListSessions(ctx, types.SessionFilter{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(all))
	}

	mine, _ := manager.ListSessions(ctx, types.SessionFilter{UserID: int64Ptr(1)})
	if len(mine) != 2 {
		t.Errorf("Expected 2 sessions for user 1, got %d", len(mine))
	}

	active, _ := manager.ListSessions(ctx, types.SessionFilter{Status: types.SessionStatusActive})
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("Expected only session %d active, got %v", a.ID, active)
	}
}

func TestManager_AddMessageAndList(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, 1, nil, "")

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		msg, err := manager.AddMessage(ctx, session.ID, 1, types.SenderTypeUser, text)
		if err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
		if msg.ID == 0 || msg.CreatedAt.IsZero() {
			t.Errorf("Expected assigned ID and timestamp, got %+v", msg)
		}
	}

	messages, err := manager.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != len(texts) {
		t.Fatalf("Expected %d messages, got %d", len(texts), len(messages))
	}
	for i, msg := range messages {
		if msg.MessageText != texts[i] {
			t.Errorf("Message %d: expected %q, got %q", i, texts[i], msg.MessageText)
		}
		if msg.IsRead {
			t.Errorf("Message %d should start unread", i)
		}
	}
}

func TestManager_AddMessageUnknownSession(t *testing.T) {
	manager := setupTestDB(t)

	_, err := manager.AddMessage(context.Background(), 999, 1, types.SenderTypeUser, "hello")
	if err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_AddMessageInvalidSenderType(t *testing.T) {
	manager := setupTestDB(t)

	_, err := manager.AddMessage(context.Background(), 1, 1, "bot", "hello")
	if err != types.ErrInvalidSenderType {
		t.Errorf("Expected ErrInvalidSenderType, got %v", err)
	}
}

func TestManager_MarkMessagesRead(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	session, _ := manager.CreateSession(ctx, 1, nil, "")
	_, _ = manager.AddMessage(ctx, session.ID, 1, types.SenderTypeUser, "from customer")
	_, _ = manager.AddMessage(ctx, session.ID, 2, types.SenderTypeAgent, "from agent")
	_, _ = manager.AddMessage(ctx, session.ID, 2, types.SenderTypeAgent, "again")

	marked, err := manager.MarkMessagesRead(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	if marked != 2 {
		t.Errorf("Expected 2 messages marked, got %d", marked)
	}

	again, _ := manager.MarkMessagesRead(ctx, session.ID, 1)
	if again != 0 {
		t.Errorf("Second mark should be a no-op, got %d", again)
	}

	messages, _ := manager.ListMessages(ctx, session.ID)
	if messages[0].IsRead {
		t.Error("Reader's own message should stay unread")
	}
}

func TestManager_AgentStatus(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if err := manager.UpdateAgentStatus(ctx, 2, types.AgentStatusOnline); err != nil {
		t.Fatalf("UpdateAgentStatus failed: %v", err)
	}
	if err := manager.UpdateAgentStatus(ctx, 2, types.AgentStatusBusy); err != nil {
		t.Fatalf("UpdateAgentStatus upsert failed: %v", err)
	}
	if err := manager.UpdateAgentStatus(ctx, 3, "away"); err != types.ErrInvalidAgentStatus {
		t.Errorf("Expected ErrInvalidAgentStatus, got %v", err)
	}

	statuses, err := manager.ListAgentStatuses(ctx)
	if err != nil {
		t.Fatalf("ListAgentStatuses failed: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("Expected 1 agent status, got %d", len(statuses))
	}
	if statuses[0].AgentID != 2 || statuses[0].Status != types.AgentStatusBusy {
		t.Errorf("Unexpected agent status: %+v", statuses[0])
	}
}

func TestManager_SingleWriterPattern(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	const numWrites = 20
	var wg sync.WaitGroup
	errs := make(chan error, numWrites)

	wg.Add(numWrites)
	for i := 0; i < numWrites; i++ {
		go func(userID int64) {
			defer wg.Done()
			if _, err := manager.CreateSession(ctx, userID, nil, ""); err != nil {
				errs <- err
			}
		}(int64(i + 1))
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent write failed: %v", err)
	}

	sessions, err := manager.ListSessions(ctx, types.SessionFilter{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != numWrites {
		t.Errorf("Expected %d sessions, got %d", numWrites, len(sessions))
	}
}

func TestManager_CanceledContext(t *testing.T) {
	manager := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := manager.CreateSession(ctx, 1, nil, "")
	if err == nil {
		t.Error("Expected error for canceled context")
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := setupTestDB(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck should pass: %v", err)
	}
}

func TestManager_CleanShutdown(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if _, err := manager.CreateSession(ctx, 1, nil, ""); err != nil {
		t.Fatalf("CreateSession should succeed: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Errorf("Close should succeed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second Close should be a no-op: %v", err)
	}

	_, err := manager.CreateSession(ctx, 1, nil, "")
	if !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Expected ErrManagerClosed after Close, got %v", err)
	}
}

func TestManager_AssignAgentOnlyWhenUnassigned(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, 1, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	claimed, ok, err := manager.AssignAgent(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("AssignAgent failed: %v", err)
	}
	if !ok || claimed.AgentID == nil || *claimed.AgentID != 2 || claimed.Status != types.SessionStatusActive {
		t.Fatalf("Expected session claimed by agent 2, got ok=%v %+v", ok, claimed)
	}

	again, ok, err := manager.AssignAgent(ctx, session.ID, 9)
	if err != nil {
		t.Fatalf("AssignAgent failed: %v", err)
	}
	if ok {
		t.Error("Second claim should not succeed")
	}
	if again.AgentID == nil || *again.AgentID != 2 {
		t.Errorf("Existing assignment should be kept, got %+v", again.AgentID)
	}
}

func TestManager_AssignAgentNotFound(t *testing.T) {
	manager := setupTestDB(t)

	if _, _, err := manager.AssignAgent(context.Background(), 999, 2); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
