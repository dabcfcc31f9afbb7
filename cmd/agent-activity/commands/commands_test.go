package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/agent-activity/internal/chatgroup"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/pkg/models"
)

const fixtureYAML = `
sessions:
  - id: s-run
    chat_id: c-1
    status: running
    agent_type: coder
    model: gpt-4o
    current_task: Refactor parser
    created_at: 2024-03-01T09:00:00Z
    updated_at: 2024-03-01T10:00:00Z
  - id: s-paused
    chat_id: c-2
    status: paused
    agent_type: reviewer
    model: claude-sonnet
    chat_name: Release notes
    created_at: 2024-02-28T09:00:00Z
  - id: s-done
    chat_id: c-3
    status: completed
    agent_type: planner
    model: gpt-5
    created_at: 2024-02-01T09:00:00Z
chats:
  - chat_id: c-1
    name: Parser work
    updated_at: "2024-03-01T10:00:00Z"
messages:
  - chat_id: c-1
    role: user
    content: Please refactor the parser
    created_at: 2024-03-01T09:00:00Z
  - chat_id: c-1
    role: assistant
    content: Looking at the lexer now
    created_at: 2024-03-01T09:05:00Z
`

type harness struct {
	t       *testing.T
	dataDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"WORKSPACE", "BACKEND", "DATA_DIR", "POLL_INTERVAL", "MAX_MESSAGES", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv("AGENT_ACTIVITY_"+key, "")
		os.Unsetenv("AGENT_ACTIVITY_" + key)
	}
	return &harness{t: t, dataDir: t.TempDir()}
}

// run executes the CLI against a SQLite store in the harness data dir
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--backend", "sqlite",
		"--data-dir", h.dataDir,
		"--env-file", "",
		"--poll-interval", "20ms",
		"--log-level", "error",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) seed() {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), "fixture.yaml")
	require.NoError(h.t, os.WriteFile(path, []byte(fixtureYAML), 0644))
	out, err := h.run("import", path)
	require.NoError(h.t, err)
	assert.Contains(h.t, out, "Imported 3 sessions, 1 chats and 2 messages into workspace default")
}

func TestImportRejectsBadFixture(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  - status: running\n"), 0644))

	_, err := h.run("import", path)
	assert.Error(t, err)
}

func TestSessionsTable(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "s-run")
	assert.Contains(t, out, "Refactor parser")
	assert.Contains(t, out, "Release notes")
}

func TestSessionsFilterJSON(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("sessions", "--status", "running", "--format", "json")
	require.NoError(t, err)

	var list []models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s-run", list[0].ID)

	out, err = h.run("sessions", "--query", "SONNET", "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s-paused", list[0].ID)
}

func TestSessionsCounts(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("sessions", "--counts", "--format", "json")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, map[string]int{
		"all": 3, "running": 1, "idle": 0, "paused": 1, "completed": 1, "error": 0,
	}, counts)
}

func TestSessionsRejectsBadFlags(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("sessions", "--status", "sleeping")
	assert.Error(t, err)

	_, err = h.run("sessions", "--format", "xml")
	assert.Error(t, err)
}

func TestSessionsEmptyWorkspace(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestLifecycleCommands(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("pause", "s-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Session s-run paused")

	out, err = h.run("sessions", "--status", "paused", "--format", "json")
	require.NoError(t, err)
	var list []models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 2)

	out, err = h.run("resume", "s-paused")
	require.NoError(t, err)
	assert.Contains(t, out, "Session s-paused resumed")

	out, err = h.run("cancel", "s-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Session s-run cancelled")
}

func TestLifecycleRejectsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	h.seed()

	_, err := h.run("resume", "s-done")
	require.Error(t, err)
	var transErr *sessions.TransitionError
	assert.ErrorAs(t, err, &transErr)

	_, err = h.run("pause", "missing")
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestChatsJSON(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("chats", "--format", "json")
	require.NoError(t, err)

	var buckets []chatgroup.Bucket
	require.NoError(t, json.Unmarshal([]byte(out), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, chatgroup.Older, buckets[0].Label)
	assert.Equal(t, "c-1", buckets[0].Chats[0].ChatID)

	out, err = h.run("chats")
	require.NoError(t, err)
	assert.Contains(t, out, "Older (1)")
	assert.Contains(t, out, "Parser work")
}

func TestInspect(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("inspect", "s-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: s-run")
	assert.Contains(t, out, "Found 2 messages")
	assert.Contains(t, out, "Looking at the lexer now")

	out, err = h.run("inspect", "s-done")
	require.NoError(t, err)
	assert.Contains(t, out, "No messages: chat not found")

	_, err = h.run("inspect", "nope")
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestWatchOnce(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out, err := h.run("--max-messages", "1", "watch", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "[s-run] s-run (running)")
	assert.Contains(t, out, "[Assistant] Looking at the lexer now")
	assert.NotContains(t, out, "Please refactor")
}

func TestWatchShowsErrors(t *testing.T) {
	h := newHarness(t)
	h.seed()

	// c-2 has neither a summary nor messages
	out, err := h.run("watch", "--once", "s-paused", "unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "[s-paused] Release notes (paused)")
	assert.Contains(t, out, "! ")
	assert.Contains(t, out, "chat not found")
}

func TestWatchNothingToWatch(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("watch")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions to watch")
}

func TestConfigCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("-w", "team", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: sqlite")
	assert.Contains(t, out, "workspace: team")
	assert.Contains(t, out, "poll_interval: 20ms")
}

func TestInvalidBackend(t *testing.T) {
	h := newHarness(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "postgres", "--data-dir", h.dataDir, "--env-file", "", "sessions"})
	assert.Error(t, cmd.Execute())
}
