package sessions

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/strrl/agent-activity/pkg/models"
)

// Fixture is a YAML snapshot of a workspace used to seed a store
type Fixture struct {
	Sessions []models.Session     `yaml:"sessions"`
	Chats    []models.ChatSummary `yaml:"chats"`
	Messages []FixtureMessage     `yaml:"messages"`
}

// FixtureMessage is a chat message tagged with its chat
type FixtureMessage struct {
	ChatID             string `yaml:"chat_id"`
	models.ChatMessage `yaml:",inline"`
}

// LoadFixture reads and validates a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture and fills in message IDs
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) normalize() error {
	for i, s := range f.Sessions {
		if s.ID == "" {
			return fmt.Errorf("fixture session %d has no id", i)
		}
		if s.UpdatedAt.IsZero() {
			f.Sessions[i].UpdatedAt = s.CreatedAt
		}
	}
	for i, c := range f.Chats {
		if c.ChatID == "" {
			return fmt.Errorf("fixture chat %d has no chat_id", i)
		}
	}
	for i, m := range f.Messages {
		if m.ChatID == "" {
			return fmt.Errorf("fixture message %d has no chat_id", i)
		}
		if m.ID == "" {
			f.Messages[i].ID = uuid.NewString()
		}
		if m.Role == "" {
			f.Messages[i].Role = models.RoleUser
		}
	}
	return nil
}
