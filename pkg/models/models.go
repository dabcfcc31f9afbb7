package models

import "time"

// SessionStatus is the lifecycle state of an agent session
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusIdle      SessionStatus = "idle"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// AllStatuses lists the known statuses in display order
var AllStatuses = []SessionStatus{
	StatusRunning,
	StatusIdle,
	StatusPaused,
	StatusCompleted,
	StatusError,
}

// Valid reports whether s is one of the known statuses
func (s SessionStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label returns the status for display, "unknown" for anything unrecognised
func (s SessionStatus) Label() string {
	if !s.Valid() {
		return "unknown"
	}
	return string(s)
}

// Session represents an agent execution context tracked by the server
type Session struct {
	ID            string        `json:"id" yaml:"id"`
	ChatID        string        `json:"chat_id" yaml:"chat_id"`
	Status        SessionStatus `json:"status" yaml:"status"`
	AgentType     string        `json:"agent_type" yaml:"agent_type"`
	Model         string        `json:"model" yaml:"model"`
	CurrentTask   string        `json:"current_task,omitempty" yaml:"current_task,omitempty"`
	ChatName      string        `json:"chat_name,omitempty" yaml:"chat_name,omitempty"`
	LastHeartbeat time.Time     `json:"last_heartbeat" yaml:"last_heartbeat"`
	CreatedAt     time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" yaml:"updated_at"`
}

// DisplayName returns the chat name, or the session ID when the chat has none
func (s Session) DisplayName() string {
	if s.ChatName != "" {
		return s.ChatName
	}
	return s.ID
}

// ChatSummary is a conversation thread without its messages.
// UpdatedAt is kept as the raw source string; see timefmt.Parse.
type ChatSummary struct {
	ChatID    string `json:"chat_id" yaml:"chat_id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
}

// DisplayName returns the chat name or its ID
func (c ChatSummary) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ChatID
}

// MessageRole identifies the author of a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleSystem    MessageRole = "system"
)

// ChatMessage is a single entry in a chat
type ChatMessage struct {
	ID        string      `json:"id" yaml:"id"`
	Role      MessageRole `json:"role" yaml:"role"`
	Content   string      `json:"content" yaml:"content"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
}

// Chat is a chat together with its messages, oldest first
type Chat struct {
	ChatSummary `yaml:",inline"`
	Messages    []ChatMessage `json:"messages" yaml:"messages"`
}
