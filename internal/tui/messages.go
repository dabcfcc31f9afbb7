package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/pkg/models"
)

// Message types for async operations
type (
	// SessionsLoadedMsg contains the reloaded session list
	SessionsLoadedMsg struct {
		Sessions []models.Session
		Error    error
	}

	// ChatsLoadedMsg contains the chat list for the chats view
	ChatsLoadedMsg struct {
		Chats []models.ChatSummary
		Error error
	}

	// ActionDoneMsg reports the outcome of a pause, resume or cancel
	ActionDoneMsg struct {
		Action    sessions.Action
		SessionID string
		Error     error
	}

	// PreviewsUpdatedMsg is sent when the poller changed any preview
	PreviewsUpdatedMsg struct{}

	// RefreshMsg triggers the periodic session reload
	RefreshMsg time.Time

	// TickMsg is sent periodically for spinner animation
	TickMsg time.Time
)

// Commands for async operations

// loadSessionsCmd reloads the session list
func loadSessionsCmd(ctx context.Context, store sessions.Store, workspaceID string) tea.Cmd {
	return func() tea.Msg {
		list, err := sessions.Do(ctx, sessions.DefaultQueryTimeout, func(ctx context.Context) ([]models.Session, error) {
			return store.ListSessions(ctx, workspaceID)
		})
		return SessionsLoadedMsg{
			Sessions: list,
			Error:    err,
		}
	}
}

// loadChatsCmd loads the chat summaries
func loadChatsCmd(ctx context.Context, store sessions.Store, workspaceID string) tea.Cmd {
	return func() tea.Msg {
		chats, err := sessions.Do(ctx, sessions.DefaultQueryTimeout, func(ctx context.Context) ([]models.ChatSummary, error) {
			return store.ListChats(ctx, workspaceID)
		})
		return ChatsLoadedMsg{
			Chats: chats,
			Error: err,
		}
	}
}

// actionCmd applies a lifecycle action to a session
func actionCmd(ctx context.Context, store sessions.Store, action sessions.Action, workspaceID, sessionID string) tea.Cmd {
	return func() tea.Msg {
		_, err := sessions.Do(ctx, sessions.DefaultQueryTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, sessions.Apply(ctx, store, action, workspaceID, sessionID)
		})
		return ActionDoneMsg{
			Action:    action,
			SessionID: sessionID,
			Error:     err,
		}
	}
}

// waitForPreviewsCmd blocks until the poller signals a change. It yields
// no message once the poller is closed.
func waitForPreviewsCmd(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return PreviewsUpdatedMsg{}
	}
}

// refreshCmd schedules the next session reload
func refreshCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return RefreshMsg(t)
	})
}

// tickCmd creates a ticker for spinner animation
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
