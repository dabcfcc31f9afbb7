package sessions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/strrl/agent-activity/pkg/models"
)

const (
	BackendDuckDB = "duckdb"
	BackendSQLite = "sqlite"
)

// Backends lists the supported backend names
var Backends = []string{BackendDuckDB, BackendSQLite}

// Store is the session source and chat fetch collaborator
type Store interface {
	ListSessions(ctx context.Context, workspaceID string) ([]models.Session, error)
	ListChats(ctx context.Context, workspaceID string) ([]models.ChatSummary, error)
	GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error)

	Pause(ctx context.Context, workspaceID, sessionID string) error
	Resume(ctx context.Context, workspaceID, sessionID string) error
	Cancel(ctx context.Context, workspaceID, sessionID string) error

	Import(ctx context.Context, workspaceID string, fixture *Fixture) error
	Close() error
}

// Open opens the named backend rooted at dataDir
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendDuckDB:
		return NewDuckDBStore(dataDir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dataDir, "agent-activity.db"))
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, backend, strings.Join(Backends, ", "))
	}
}

// Action is a lifecycle command sent to a session
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// NextStatus returns the status a session moves to when action is applied
// in status from. ok is false when the action does not apply.
func NextStatus(action Action, from models.SessionStatus) (next models.SessionStatus, ok bool) {
	switch action {
	case ActionPause:
		if from == models.StatusRunning || from == models.StatusIdle {
			return models.StatusPaused, true
		}
	case ActionResume:
		if from == models.StatusPaused {
			return models.StatusRunning, true
		}
	case ActionCancel:
		if from == models.StatusRunning || from == models.StatusIdle || from == models.StatusPaused {
			return models.StatusCompleted, true
		}
	}
	return from, false
}

// Apply dispatches action to the matching Store method
func Apply(ctx context.Context, store Store, action Action, workspaceID, sessionID string) error {
	switch action {
	case ActionPause:
		return store.Pause(ctx, workspaceID, sessionID)
	case ActionResume:
		return store.Resume(ctx, workspaceID, sessionID)
	case ActionCancel:
		return store.Cancel(ctx, workspaceID, sessionID)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// transition computes the updated session for action, or a TransitionError
func transition(s models.Session, action Action, now time.Time) (models.Session, error) {
	next, ok := NextStatus(action, s.Status)
	if !ok {
		return s, &TransitionError{SessionID: s.ID, Action: action, From: s.Status}
	}
	// updated_at never moves backwards, so the newest event always wins
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Microsecond)
	}
	s.Status = next
	s.UpdatedAt = now
	if action == ActionCancel {
		s.CurrentTask = ""
	}
	return s, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// validWorkspace rejects IDs that would escape the data directory
func validWorkspace(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid workspace id %q", id)
	}
	return nil
}
