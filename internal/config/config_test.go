package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the default config file at an empty directory
func isolate(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".agent-activity"), cfg.DataDir)
	assert.Equal(t, "default", cfg.Workspace)
	assert.Equal(t, "duckdb", cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxMessages)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/activity
workspace: team
backend: sqlite
poll_interval: 500ms
max_messages: 5
`), 0644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/activity", cfg.DataDir)
	assert.Equal(t, "team", cfg.Workspace)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxMessages)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agent-activity"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent-activity", "config.yaml"), []byte("workspace: from-file\n"), 0644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Workspace)
	assert.Equal(t, DefaultConfigFile(), cfg.ConfigFile)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	isolate(t)
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: from-file\nmax_messages: 5\n"), 0644))
	t.Setenv("AGENT_ACTIVITY_WORKSPACE", "from-env")
	t.Setenv("AGENT_ACTIVITY_POLL_INTERVAL", "750ms")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Workspace)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxMessages)
}

func TestFlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("AGENT_ACTIVITY_BACKEND", "duckdb")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--backend", "sqlite", "-w", "cli", "--max-messages", "7"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "cli", cfg.Workspace)
	assert.Equal(t, 7, cfg.MaxMessages)
	// unset flags fall through to defaults
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)
	tests := map[string]string{
		"AGENT_ACTIVITY_BACKEND":       "postgres",
		"AGENT_ACTIVITY_POLL_INTERVAL": "-1s",
		"AGENT_ACTIVITY_MAX_MESSAGES":  "0",
		"AGENT_ACTIVITY_WORKSPACE":     "  ",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(New(), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AGENT_ACTIVITY_WORKSPACE=dotenv\nAGENT_ACTIVITY_BACKEND=sqlite\nUNRELATED_KEY=x\n"), 0644))
	t.Setenv("AGENT_ACTIVITY_BACKEND", "duckdb")
	// registered so t.Setenv restores it after LoadDotEnv exports it
	t.Setenv("AGENT_ACTIVITY_WORKSPACE", "")
	os.Unsetenv("AGENT_ACTIVITY_WORKSPACE")

	require.NoError(t, LoadDotEnv(path))
	_, unrelated := os.LookupEnv("UNRELATED_KEY")
	assert.False(t, unrelated)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.Workspace)
	// the real environment wins
	assert.Equal(t, "duckdb", cfg.Backend)
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	assert.NoError(t, LoadDotEnv(""))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), got)

	got, err = expandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestPollerConfig(t *testing.T) {
	cfg := &Config{Workspace: "ws", PollInterval: time.Second, MaxMessages: 4}
	pc := cfg.PollerConfig()
	assert.Equal(t, "ws", pc.WorkspaceID)
	assert.Equal(t, time.Second, pc.Interval)
	assert.Equal(t, 4, pc.MaxMessages)
}
