package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/strrl/agent-activity/internal/db"
	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	workspace_id   TEXT NOT NULL,
	id             TEXT NOT NULL,
	chat_id        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	agent_type     TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	current_task   TEXT NOT NULL DEFAULT '',
	chat_name      TEXT NOT NULL DEFAULT '',
	last_heartbeat TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL DEFAULT '',
	updated_at     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workspace_id, id)
);
CREATE TABLE IF NOT EXISTS chats (
	workspace_id TEXT NOT NULL,
	chat_id      TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workspace_id, chat_id)
);
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id TEXT NOT NULL,
	chat_id      TEXT NOT NULL,
	id           TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (workspace_id, chat_id, created_at);
`

// SQLiteStore keeps workspaces in a single SQLite database
type SQLiteStore struct {
	database *sql.DB
	now      func() time.Time
}

// NewSQLiteStore opens the database at path and applies the schema
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	database, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(sqliteSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{database: database, now: time.Now}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.database.Close()
}

func (s *SQLiteStore) fail(op, workspaceID string, err error) error {
	return &StoreError{Backend: BackendSQLite, Op: op, Workspace: workspaceID, Err: err}
}

const sessionSelect = `
	SELECT id, chat_id, status, agent_type, model, current_task, chat_name,
		last_heartbeat, created_at, updated_at
	FROM sessions`

func scanSession(row interface{ Scan(...any) error }) (models.Session, error) {
	var s models.Session
	var status string
	var heartbeat, created, updated sql.NullString
	err := row.Scan(&s.ID, &s.ChatID, &status, &s.AgentType, &s.Model, &s.CurrentTask, &s.ChatName,
		&heartbeat, &created, &updated)
	if err != nil {
		return s, err
	}
	s.Status = models.SessionStatus(status)
	s.LastHeartbeat = parseNull(heartbeat)
	s.CreatedAt = parseNull(created)
	s.UpdatedAt = parseNull(updated)
	return s, nil
}

// ListSessions returns every session in the workspace, most recently updated first
func (s *SQLiteStore) ListSessions(ctx context.Context, workspaceID string) ([]models.Session, error) {
	rows, err := s.database.QueryContext(ctx,
		sessionSelect+` WHERE workspace_id = ? ORDER BY updated_at DESC, id`, workspaceID)
	if err != nil {
		return nil, s.fail("list sessions", workspaceID, err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			logger.Warn("skipping unreadable session row", "workspace", workspaceID, "err", err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list sessions", workspaceID, err)
	}
	return sessions, nil
}

// ListChats returns every chat in the workspace, most recently updated first
func (s *SQLiteStore) ListChats(ctx context.Context, workspaceID string) ([]models.ChatSummary, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT chat_id, name, updated_at FROM chats WHERE workspace_id = ? ORDER BY updated_at DESC, chat_id`,
		workspaceID)
	if err != nil {
		return nil, s.fail("list chats", workspaceID, err)
	}
	defer rows.Close()

	chats := []models.ChatSummary{}
	for rows.Next() {
		var c models.ChatSummary
		if err := rows.Scan(&c.ChatID, &c.Name, &c.UpdatedAt); err != nil {
			continue
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list chats", workspaceID, err)
	}
	return chats, nil
}

// GetChat returns a chat with all of its messages, oldest first
func (s *SQLiteStore) GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error) {
	chat := &models.Chat{ChatSummary: models.ChatSummary{ChatID: chatID}}

	err := s.database.QueryRowContext(ctx,
		`SELECT name, updated_at FROM chats WHERE workspace_id = ? AND chat_id = ?`,
		workspaceID, chatID).Scan(&chat.Name, &chat.UpdatedAt)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.fail("get chat", workspaceID, err)
	}

	rows, err := s.database.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages
		WHERE workspace_id = ? AND chat_id = ?
		ORDER BY created_at ASC, seq ASC`, workspaceID, chatID)
	if err != nil {
		return nil, s.fail("get chat", workspaceID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.ChatMessage
		var role string
		var created sql.NullString
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			continue
		}
		m.Role = models.MessageRole(role)
		m.CreatedAt = parseNull(created)
		chat.Messages = append(chat.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("get chat", workspaceID, err)
	}

	if !found && len(chat.Messages) == 0 {
		return nil, s.fail("get chat", workspaceID, fmt.Errorf("%w: %s", ErrChatNotFound, chatID))
	}
	return chat, nil
}

// Pause moves a running or idle session to paused
func (s *SQLiteStore) Pause(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionPause, workspaceID, sessionID)
}

// Resume moves a paused session back to running
func (s *SQLiteStore) Resume(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionResume, workspaceID, sessionID)
}

// Cancel completes a session that has not finished
func (s *SQLiteStore) Cancel(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionCancel, workspaceID, sessionID)
}

func (s *SQLiteStore) apply(ctx context.Context, action Action, workspaceID, sessionID string) error {
	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(string(action), workspaceID, err)
	}
	defer tx.Rollback()

	current, err := scanSession(tx.QueryRowContext(ctx,
		sessionSelect+` WHERE workspace_id = ? AND id = ?`, workspaceID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return s.fail(string(action), workspaceID, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}
	if err != nil {
		return s.fail(string(action), workspaceID, err)
	}

	updated, err := transition(current, action, s.now())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, current_task = ?, updated_at = ?
		WHERE workspace_id = ? AND id = ? AND status = ?`,
		string(updated.Status), updated.CurrentTask, formatTime(updated.UpdatedAt),
		workspaceID, sessionID, string(current.Status))
	if err != nil {
		return s.fail(string(action), workspaceID, err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail(string(action), workspaceID, err)
	}
	logger.Debug("session updated", "workspace", workspaceID, "session", sessionID, "status", updated.Status)
	return nil
}

// Import upserts the fixture's sessions and chats and appends its messages
func (s *SQLiteStore) Import(ctx context.Context, workspaceID string, fixture *Fixture) error {
	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("import", workspaceID, err)
	}
	defer tx.Rollback()

	for _, session := range fixture.Sessions {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO sessions (
				workspace_id, id, chat_id, status, agent_type, model, current_task, chat_name,
				last_heartbeat, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			workspaceID, session.ID, session.ChatID, string(session.Status), session.AgentType,
			session.Model, session.CurrentTask, session.ChatName,
			formatTime(session.LastHeartbeat), formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
		if err != nil {
			return s.fail("import", workspaceID, fmt.Errorf("session %s: %w", session.ID, err))
		}
	}

	for _, c := range fixture.Chats {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chats (workspace_id, chat_id, name, updated_at) VALUES (?, ?, ?, ?)`,
			workspaceID, c.ChatID, c.Name, c.UpdatedAt)
		if err != nil {
			return s.fail("import", workspaceID, fmt.Errorf("chat %s: %w", c.ChatID, err))
		}
	}

	for _, m := range fixture.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (workspace_id, chat_id, id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			workspaceID, m.ChatID, m.ID, string(m.Role), m.Content, formatTime(m.CreatedAt))
		if err != nil {
			return s.fail("import", workspaceID, fmt.Errorf("message %s: %w", m.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail("import", workspaceID, err)
	}
	return nil
}
