package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strrl/agent-activity/internal/db"
	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/internal/timefmt"
	"github.com/strrl/agent-activity/pkg/models"
)

const (
	sessionsFile = "sessions.jsonl"
	chatsFile    = "chats.jsonl"
	messagesFile = "messages.jsonl"
)

// explicit schemas so absent keys read as NULL and timestamps stay text
const (
	sessionColumns = `{
		'id': 'VARCHAR', 'chat_id': 'VARCHAR', 'status': 'VARCHAR',
		'agent_type': 'VARCHAR', 'model': 'VARCHAR', 'current_task': 'VARCHAR',
		'chat_name': 'VARCHAR', 'last_heartbeat': 'VARCHAR',
		'created_at': 'VARCHAR', 'updated_at': 'VARCHAR', 'event_id': 'VARCHAR'
	}`
	chatColumns    = `{'chat_id': 'VARCHAR', 'name': 'VARCHAR', 'updated_at': 'VARCHAR'}`
	messageColumns = `{
		'id': 'VARCHAR', 'chat_id': 'VARCHAR', 'role': 'VARCHAR',
		'content': 'VARCHAR', 'created_at': 'VARCHAR'
	}`
)

// sessionRecord is one line of sessions.jsonl. The file is an event log:
// the row with the latest updated_at wins for each id.
type sessionRecord struct {
	ID            string `json:"id"`
	ChatID        string `json:"chat_id"`
	Status        string `json:"status"`
	AgentType     string `json:"agent_type"`
	Model         string `json:"model"`
	CurrentTask   string `json:"current_task,omitempty"`
	ChatName      string `json:"chat_name,omitempty"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at"`
	EventID       string `json:"event_id"`
}

type chatRecord struct {
	ChatID    string `json:"chat_id"`
	Name      string `json:"name,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

type messageRecord struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// DuckDBStore reads workspaces stored as JSONL files with DuckDB and
// appends to them for writes
type DuckDBStore struct {
	dataDir  string
	database *sql.DB
	now      func() time.Time

	// serializes read-modify-append for lifecycle actions
	writeMu sync.Mutex
}

// NewDuckDBStore opens a store rooted at dataDir
func NewDuckDBStore(dataDir string) (*DuckDBStore, error) {
	database, err := db.GetDB()
	if err != nil {
		return nil, err
	}
	return &DuckDBStore{
		dataDir:  dataDir,
		database: database,
		now:      time.Now,
	}, nil
}

// Close is a no-op; the DuckDB connection is shared
func (s *DuckDBStore) Close() error {
	return nil
}

func (s *DuckDBStore) workspaceDir(workspaceID string) (string, error) {
	if err := validWorkspace(workspaceID); err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, "workspaces", workspaceID), nil
}

// dataFile returns the path of name in the workspace, and whether it exists
func (s *DuckDBStore) dataFile(workspaceID, name string) (string, bool, error) {
	dir, err := s.workspaceDir(workspaceID)
	if err != nil {
		return "", false, err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return path, false, nil
		}
		return "", false, err
	}
	return path, true, nil
}

func (s *DuckDBStore) fail(op, workspaceID string, err error) error {
	return &StoreError{Backend: BackendDuckDB, Op: op, Workspace: workspaceID, Err: err}
}

// ListSessions returns the latest state of every session in the workspace
func (s *DuckDBStore) ListSessions(ctx context.Context, workspaceID string) ([]models.Session, error) {
	path, ok, err := s.dataFile(workspaceID, sessionsFile)
	if err != nil {
		return nil, s.fail("list sessions", workspaceID, err)
	}
	if !ok {
		return []models.Session{}, nil
	}

	sessionsQuery := fmt.Sprintf(`
		WITH events AS (
			SELECT
				id, chat_id, status, agent_type, model, current_task, chat_name,
				last_heartbeat, created_at, updated_at,
				ROW_NUMBER() OVER (
					PARTITION BY id
					ORDER BY TRY_CAST(updated_at AS TIMESTAMP) DESC NULLS LAST, updated_at DESC
				) AS rn
			FROM read_json(%s,
				format = 'newline_delimited',
				columns = %s
			)
			WHERE id IS NOT NULL AND id <> ''
		)
		SELECT
			id, chat_id, status, agent_type, model, current_task, chat_name,
			last_heartbeat, created_at, updated_at
		FROM events
		WHERE rn = 1
		ORDER BY TRY_CAST(updated_at AS TIMESTAMP) DESC NULLS LAST, updated_at DESC, id
	`, db.QuoteLiteral(path), sessionColumns)

	rows, err := s.database.QueryContext(ctx, sessionsQuery)
	if err != nil {
		return nil, s.fail("list sessions", workspaceID, fmt.Errorf("failed to execute sessions query: %w", err))
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var id, chatID, status, agentType, model, task, chatName sql.NullString
		var heartbeat, created, updated sql.NullString

		if err := rows.Scan(&id, &chatID, &status, &agentType, &model, &task, &chatName,
			&heartbeat, &created, &updated); err != nil {
			logger.Warn("skipping unreadable session row", "workspace", workspaceID, "err", err)
			continue
		}

		sessions = append(sessions, models.Session{
			ID:            id.String,
			ChatID:        chatID.String,
			Status:        models.SessionStatus(status.String),
			AgentType:     agentType.String,
			Model:         model.String,
			CurrentTask:   task.String,
			ChatName:      chatName.String,
			LastHeartbeat: parseNull(heartbeat),
			CreatedAt:     parseNull(created),
			UpdatedAt:     parseNull(updated),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list sessions", workspaceID, err)
	}
	return sessions, nil
}

// ListChats returns every chat in the workspace, most recently updated first
func (s *DuckDBStore) ListChats(ctx context.Context, workspaceID string) ([]models.ChatSummary, error) {
	path, ok, err := s.dataFile(workspaceID, chatsFile)
	if err != nil {
		return nil, s.fail("list chats", workspaceID, err)
	}
	if !ok {
		return []models.ChatSummary{}, nil
	}

	chatsQuery := fmt.Sprintf(`
		WITH latest AS (
			SELECT
				chat_id, name, updated_at,
				ROW_NUMBER() OVER (
					PARTITION BY chat_id
					ORDER BY TRY_CAST(updated_at AS TIMESTAMP) DESC NULLS LAST, updated_at DESC
				) AS rn
			FROM read_json(%s,
				format = 'newline_delimited',
				columns = %s
			)
			WHERE chat_id IS NOT NULL AND chat_id <> ''
		)
		SELECT chat_id, name, updated_at
		FROM latest
		WHERE rn = 1
		ORDER BY TRY_CAST(updated_at AS TIMESTAMP) DESC NULLS LAST, updated_at DESC, chat_id
	`, db.QuoteLiteral(path), chatColumns)

	rows, err := s.database.QueryContext(ctx, chatsQuery)
	if err != nil {
		return nil, s.fail("list chats", workspaceID, fmt.Errorf("failed to execute chats query: %w", err))
	}
	defer rows.Close()

	chats := []models.ChatSummary{}
	for rows.Next() {
		var chatID, name, updated sql.NullString
		if err := rows.Scan(&chatID, &name, &updated); err != nil {
			continue
		}
		chats = append(chats, models.ChatSummary{
			ChatID:    chatID.String,
			Name:      name.String,
			UpdatedAt: updated.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list chats", workspaceID, err)
	}
	return chats, nil
}

// GetChat returns a chat with all of its messages, oldest first
func (s *DuckDBStore) GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error) {
	chat := &models.Chat{ChatSummary: models.ChatSummary{ChatID: chatID}}
	found := false

	chatsPath, ok, err := s.dataFile(workspaceID, chatsFile)
	if err != nil {
		return nil, s.fail("get chat", workspaceID, err)
	}
	if ok {
		chatQuery := fmt.Sprintf(`
			SELECT name, updated_at
			FROM read_json(%s,
				format = 'newline_delimited',
				columns = %s
			)
			WHERE chat_id = ?
			ORDER BY TRY_CAST(updated_at AS TIMESTAMP) DESC NULLS LAST, updated_at DESC
			LIMIT 1
		`, db.QuoteLiteral(chatsPath), chatColumns)

		var name, updated sql.NullString
		err := s.database.QueryRowContext(ctx, chatQuery, chatID).Scan(&name, &updated)
		switch {
		case err == nil:
			found = true
			chat.Name = name.String
			chat.UpdatedAt = updated.String
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, s.fail("get chat", workspaceID, fmt.Errorf("failed to execute chat query: %w", err))
		}
	}

	messagesPath, ok, err := s.dataFile(workspaceID, messagesFile)
	if err != nil {
		return nil, s.fail("get chat", workspaceID, err)
	}
	if ok {
		messagesQuery := fmt.Sprintf(`
			SELECT id, role, content, created_at
			FROM read_json(%s,
				format = 'newline_delimited',
				columns = %s
			)
			WHERE chat_id = ?
			ORDER BY TRY_CAST(created_at AS TIMESTAMP) ASC NULLS FIRST, created_at, id
		`, db.QuoteLiteral(messagesPath), messageColumns)

		rows, err := s.database.QueryContext(ctx, messagesQuery, chatID)
		if err != nil {
			return nil, s.fail("get chat", workspaceID, fmt.Errorf("failed to execute messages query: %w", err))
		}
		defer rows.Close()

		for rows.Next() {
			var id, role, content, created sql.NullString
			if err := rows.Scan(&id, &role, &content, &created); err != nil {
				continue
			}
			chat.Messages = append(chat.Messages, models.ChatMessage{
				ID:        id.String,
				Role:      models.MessageRole(role.String),
				Content:   content.String,
				CreatedAt: parseNull(created),
			})
		}
		if err := rows.Err(); err != nil {
			return nil, s.fail("get chat", workspaceID, err)
		}
	}

	if !found && len(chat.Messages) == 0 {
		return nil, s.fail("get chat", workspaceID, fmt.Errorf("%w: %s", ErrChatNotFound, chatID))
	}
	return chat, nil
}

// Pause moves a running or idle session to paused
func (s *DuckDBStore) Pause(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionPause, workspaceID, sessionID)
}

// Resume moves a paused session back to running
func (s *DuckDBStore) Resume(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionResume, workspaceID, sessionID)
}

// Cancel completes a session that has not finished
func (s *DuckDBStore) Cancel(ctx context.Context, workspaceID, sessionID string) error {
	return s.apply(ctx, ActionCancel, workspaceID, sessionID)
}

func (s *DuckDBStore) apply(ctx context.Context, action Action, workspaceID, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sessions, err := s.ListSessions(ctx, workspaceID)
	if err != nil {
		return err
	}

	var current *models.Session
	for i := range sessions {
		if sessions[i].ID == sessionID {
			current = &sessions[i]
			break
		}
	}
	if current == nil {
		return s.fail(string(action), workspaceID, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}

	updated, err := transition(*current, action, s.now())
	if err != nil {
		return err
	}

	if err := s.appendLines(workspaceID, sessionsFile, []any{toSessionRecord(updated)}); err != nil {
		return s.fail(string(action), workspaceID, err)
	}
	logger.Debug("session updated", "workspace", workspaceID, "session", sessionID, "status", updated.Status)
	return nil
}

// Import appends a fixture to the workspace files
func (s *DuckDBStore) Import(ctx context.Context, workspaceID string, fixture *Fixture) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sessionLines := make([]any, 0, len(fixture.Sessions))
	for _, session := range fixture.Sessions {
		sessionLines = append(sessionLines, toSessionRecord(session))
	}
	chatLines := make([]any, 0, len(fixture.Chats))
	for _, c := range fixture.Chats {
		chatLines = append(chatLines, chatRecord{ChatID: c.ChatID, Name: c.Name, UpdatedAt: c.UpdatedAt})
	}
	messageLines := make([]any, 0, len(fixture.Messages))
	for _, m := range fixture.Messages {
		messageLines = append(messageLines, messageRecord{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}

	for _, batch := range []struct {
		file  string
		lines []any
	}{
		{sessionsFile, sessionLines},
		{chatsFile, chatLines},
		{messagesFile, messageLines},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.appendLines(workspaceID, batch.file, batch.lines); err != nil {
			return s.fail("import", workspaceID, err)
		}
	}
	return nil
}

func (s *DuckDBStore) appendLines(workspaceID, name string, lines []any) error {
	if len(lines) == 0 {
		return nil
	}
	dir, err := s.workspaceDir(workspaceID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return f.Sync()
}

func toSessionRecord(s models.Session) sessionRecord {
	return sessionRecord{
		ID:            s.ID,
		ChatID:        s.ChatID,
		Status:        string(s.Status),
		AgentType:     s.AgentType,
		Model:         s.Model,
		CurrentTask:   s.CurrentTask,
		ChatName:      s.ChatName,
		LastHeartbeat: formatTime(s.LastHeartbeat),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
		EventID:       uuid.NewString(),
	}
}

func parseNull(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, _ := timefmt.Parse(v.String)
	return t
}
