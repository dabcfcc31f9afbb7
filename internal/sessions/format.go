package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/strrl/agent-activity/pkg/models"
)

// FormatMessage renders a message as a single line with a role prefix,
// e.g. "[Assistant] Looking at the lexer now"
func FormatMessage(m models.ChatMessage, maxLen int) string {
	var rolePrefix string
	switch m.Role {
	case models.RoleUser:
		rolePrefix = "[User] "
	case models.RoleAssistant:
		rolePrefix = "[Assistant] "
	case models.RoleTool:
		rolePrefix = "[Tool] "
	case models.RoleSystem:
		rolePrefix = "[System] "
	default:
		rolePrefix = fmt.Sprintf("[%s] ", m.Role)
	}
	return rolePrefix + TruncateString(m.Content, maxLen)
}

// TruncateString collapses whitespace and cuts s to maxLen runes. maxLen <= 0
// disables truncation.
func TruncateString(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")

	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// SessionDetail is a session with its chat, as shown by inspect
type SessionDetail struct {
	Session models.Session `json:"session" yaml:"session"`
	Chat    *models.Chat   `json:"chat,omitempty" yaml:"chat,omitempty"`
	// ChatError is set when the chat could not be loaded
	ChatError string `json:"chat_error,omitempty" yaml:"chat_error,omitempty"`
}

// InspectSession looks up a session and loads its chat. A missing chat is
// not an error; it is reported in ChatError.
func InspectSession(ctx context.Context, store Store, workspaceID, sessionID string) (*SessionDetail, error) {
	list, err := store.ListSessions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var detail *SessionDetail
	for _, s := range list {
		if s.ID == sessionID {
			detail = &SessionDetail{Session: s}
			break
		}
	}
	if detail == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if detail.Session.ChatID == "" {
		detail.ChatError = "session has no chat"
		return detail, nil
	}
	chat, err := store.GetChat(ctx, workspaceID, detail.Session.ChatID)
	switch {
	case err == nil:
		detail.Chat = chat
	case errors.Is(err, ErrChatNotFound):
		detail.ChatError = "chat not found"
	default:
		return nil, err
	}
	return detail, nil
}
