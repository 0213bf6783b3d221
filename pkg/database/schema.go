package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that a migrated database has the shape the store expects
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every structural check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"chat_sessions":     "Chat session storage",
		"chat_messages":     "Chat message storage",
		"agent_status":      "Agent availability",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column names and declared types
func (v *SchemaValidator) ValidateTableStructure() error {
	sessionColumns := map[string]string{
		"id":         "INTEGER",
		"user_id":    "INTEGER",
		"agent_id":   "INTEGER",
		"status":     "TEXT",
		"subject":    "TEXT",
		"priority":   "TEXT",
		"created_at": "DATETIME",
		"updated_at": "DATETIME",
		"closed_at":  "DATETIME",
	}
	if err := v.validateColumns("chat_sessions", sessionColumns); err != nil {
		return fmt.Errorf("chat_sessions table structure invalid: %w", err)
	}

	messageColumns := map[string]string{
		"id":           "INTEGER",
		"session_id":   "INTEGER",
		"sender_id":    "INTEGER",
		"sender_type":  "TEXT",
		"message_text": "TEXT",
		"is_read":      "INTEGER",
		"created_at":   "DATETIME",
	}
	if err := v.validateColumns("chat_messages", messageColumns); err != nil {
		return fmt.Errorf("chat_messages table structure invalid: %w", err)
	}

	agentColumns := map[string]string{
		"agent_id":   "INTEGER",
		"status":     "TEXT",
		"updated_at": "DATETIME",
	}
	if err := v.validateColumns("agent_status", agentColumns); err != nil {
		return fmt.Errorf("agent_status table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_chat_sessions_user":         "Customer session lists",
		"idx_chat_sessions_status":       "Admin queue filtering",
		"idx_chat_sessions_agent":        "Agent assignment lookups",
		"idx_chat_messages_session_time": "Transcript retrieval",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints probes the foreign key and check constraints.
// Probe rows are written inside a transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chat_messages (session_id, sender_id, sender_type, message_text)
		VALUES (-1, 1, 'user', 'probe')
	`); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: chat_messages.session_id")
	}

	if _, err := tx.Exec(`INSERT INTO chat_sessions (user_id, status) VALUES (1, 'archived')`); err == nil {
		return fmt.Errorf("check constraint not enforced: chat_sessions.status")
	}

	res, err := tx.Exec(`INSERT INTO chat_sessions (user_id) VALUES (1)`)
	if err != nil {
		return fmt.Errorf("failed to create probe session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO chat_messages (session_id, sender_id, sender_type, message_text)
		VALUES (?, 1, 'bot', 'probe')
	`, sessionID); err == nil {
		return fmt.Errorf("check constraint not enforced: chat_messages.sender_type")
	}

	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
