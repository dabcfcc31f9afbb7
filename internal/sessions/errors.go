package sessions

import (
	"errors"
	"fmt"

	"github.com/strrl/agent-activity/pkg/models"
)

var (
	// ErrSessionNotFound is returned when a session ID is not in the workspace
	ErrSessionNotFound = errors.New("session not found")
	// ErrChatNotFound is returned when a chat ID is not in the workspace
	ErrChatNotFound = errors.New("chat not found")
	// ErrUnknownBackend is returned by Open for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown backend")
)

// StoreError wraps a failure talking to a backend
type StoreError struct {
	Backend   string
	Op        string // "list sessions", "get chat", "pause", ...
	Workspace string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s [%s]: %v", e.Backend, e.Op, e.Workspace, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when a lifecycle action does not apply to the
// session's current status
type TransitionError struct {
	SessionID string
	Action    Action
	From      models.SessionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s session %s: status is %s", e.Action, e.SessionID, e.From.Label())
}
