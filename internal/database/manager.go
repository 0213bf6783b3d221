package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "bankchat/pkg/database"
	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

const sessionColumns = `id, user_id, agent_id, status, subject, priority, created_at, updated_at, closed_at`

const messageColumns = `id, session_id, sender_id, sender_type, message_text, is_read, created_at`

// Manager implements interfaces.SessionStore on SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // Protects closed
	retryDelay   time.Duration
	writeTimeout time.Duration
}

var _ interfaces.SessionStore = (*Manager)(nil)

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded schema migrations
func (m *Manager) Migrate() error {
	if err := dbconfig.NewMigrationManager(m.db).ApplyMigrations(); err != nil {
		return err
	}
	return dbconfig.NewSchemaValidator(m.db).Validate()
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isRetryable(err) {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// isRetryable reports whether a write failed on lock contention rather than on the data itself
func isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(m.writeTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.ChatSession, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// CreateSession inserts a waiting session owned by userID
func (m *Manager) CreateSession(ctx context.Context, userID int64, subject *string, priority string) (*types.ChatSession, error) {
	if priority == "" {
		priority = types.PriorityNormal
	}
	if !types.IsValidPriority(priority) {
		return nil, types.ErrInvalidPriority
	}

	var sessionID int64
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		now := time.Now().UTC()
		res, err := db.ExecContext(ctx, `
			INSERT INTO chat_sessions (user_id, status, subject, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, userID, types.SessionStatusWaiting, subject, priority, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		sessionID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	return m.GetSession(ctx, sessionID)
}

// UpdateSession applies a partial update and returns the stored result.
// Terminal statuses stamp closed_at; reopening clears it.
func (m *Manager) UpdateSession(ctx context.Context, sessionID int64, update types.SessionUpdate) (*types.ChatSession, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		now := time.Now().UTC()
		sets := []string{"updated_at = ?"}
		args := []interface{}{now}

		if update.Status != nil {
			sets = append(sets, "status = ?")
			args = append(args, *update.Status)
			if types.IsTerminalStatus(*update.Status) {
				sets = append(sets, "closed_at = COALESCE(closed_at, ?)")
				args = append(args, now)
			} else {
				sets = append(sets, "closed_at = NULL")
			}
		}
		if update.Priority != nil {
			sets = append(sets, "priority = ?")
			args = append(args, *update.Priority)
		}
		if update.AgentID != nil {
			sets = append(sets, "agent_id = ?")
			args = append(args, *update.AgentID)
		}
		args = append(args, sessionID)

		res, err := db.ExecContext(ctx,
			`UPDATE chat_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m.GetSession(ctx, sessionID)
}

// AssignAgent claims an unassigned session for agentID in a single conditional UPDATE
func (m *Manager) AssignAgent(ctx context.Context, sessionID, agentID int64) (*types.ChatSession, bool, error) {
	var claimed bool
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE chat_sessions SET agent_id = ?, status = ?, closed_at = NULL, updated_at = ?
			 WHERE id = ? AND agent_id IS NULL`,
			agentID, types.SessionStatusActive, time.Now().UTC(), sessionID)
		if err != nil {
			return fmt.Errorf("failed to assign agent: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = affected > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return session, claimed, nil
}

// ListSessions returns sessions newest activity first
func (m *Manager) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions`
	var where []string
	var args []interface{}

	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// AddMessage appends a message and bumps the session's updated_at
func (m *Manager) AddMessage(ctx context.Context, sessionID, senderID int64, senderType, text string) (*types.ChatMessage, error) {
	if !types.IsValidSenderType(senderType) {
		return nil, types.ErrInvalidSenderType
	}

	message := &types.ChatMessage{
		SessionID:   sessionID,
		SenderID:    senderID,
		SenderType:  senderType,
		MessageText: text,
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (session_id, sender_id, sender_type, message_text, is_read, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, sessionID, senderID, senderType, text, now)
		if err != nil {
			if isForeignKeyViolation(err) {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}

		message.ID = id
		message.CreatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

// ListMessages returns the transcript in server-timestamp order
func (m *Manager) ListMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var message types.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.SenderID,
			&message.SenderType,
			&message.MessageText,
			&message.IsRead,
			&message.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// MarkMessagesRead flags unread messages not sent by readerID
func (m *Manager) MarkMessagesRead(ctx context.Context, sessionID, readerID int64) (int64, error) {
	var affected int64
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE chat_messages SET is_read = 1
			WHERE session_id = ? AND sender_id != ? AND is_read = 0
		`, sessionID, readerID)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// UpdateAgentStatus upserts the availability of an agent
func (m *Manager) UpdateAgentStatus(ctx context.Context, agentID int64, status string) error {
	if !types.IsValidAgentStatus(status) {
		return types.ErrInvalidAgentStatus
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO agent_status (agent_id, status, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				status = excluded.status,
				updated_at = excluded.updated_at
		`, agentID, status, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update agent status: %w", err)
		}
		return nil
	})
}

// ListAgentStatuses returns every persisted agent status
func (m *Manager) ListAgentStatuses(ctx context.Context) ([]*types.AgentStatus, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT agent_id, status, updated_at FROM agent_status ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []*types.AgentStatus
	for rows.Next() {
		var status types.AgentStatus
		if err := rows.Scan(&status.AgentID, &status.Status, &status.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent status row: %w", err)
		}
		statuses = append(statuses, &status)
	}

	return statuses, rows.Err()
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}


// Close shuts down the writer and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.ChatSession, error) {
	var session types.ChatSession
	var agentID sql.NullInt64
	var subject sql.NullString
	var closedAt sql.NullTime

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&agentID,
		&session.Status,
		&subject,
		&session.Priority,
		&session.CreatedAt,
		&session.UpdatedAt,
		&closedAt,
	); err != nil {
		return nil, err
	}

	if agentID.Valid {
		id := agentID.Int64
		session.AgentID = &id
	}
	if subject.Valid {
		s := subject.String
		session.Subject = &s
	}
	if closedAt.Valid {
		t := closedAt.Time
		session.ClosedAt = &t
	}

	return &session, nil
}
