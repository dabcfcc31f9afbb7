// Package config resolves agent-activity settings from flags, environment,
// an optional .env file, an optional YAML config file and defaults, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/strrl/agent-activity/internal/poller"
	"github.com/strrl/agent-activity/internal/sessions"
)

const EnvPrefix = "AGENT_ACTIVITY"

// Keys
const (
	KeyDataDir      = "data_dir"
	KeyWorkspace    = "workspace"
	KeyBackend      = "backend"
	KeyPollInterval = "poll_interval"
	KeyMaxMessages  = "max_messages"
	KeyLogLevel     = "log_level"
	KeyLogFile      = "log_file"
)

// Config is the resolved configuration
type Config struct {
	DataDir      string        `yaml:"data_dir" json:"data_dir"`
	Workspace    string        `yaml:"workspace" json:"workspace"`
	Backend      string        `yaml:"backend" json:"backend"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxMessages  int           `yaml:"max_messages" json:"max_messages"`
	LogLevel     string        `yaml:"log_level" json:"log_level"`
	LogFile      string        `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// ConfigFile is the file that was read, empty if none
	ConfigFile string `yaml:"-" json:"config_file,omitempty"`
}

// New returns a viper instance carrying the defaults and env bindings
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDataDir, "~/.agent-activity")
	v.SetDefault(KeyWorkspace, "default")
	v.SetDefault(KeyBackend, sessions.BackendDuckDB)
	v.SetDefault(KeyPollInterval, poller.DefaultInterval)
	v.SetDefault(KeyMaxMessages, poller.DefaultMaxMessages)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags adds the persistent flags shared by every command
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/agent-activity/config.yaml)")
	flags.String("env-file", ".env", "Dotenv file with AGENT_ACTIVITY_* variables")
	flags.String("data-dir", "", "Directory holding workspace data [default: ~/.agent-activity]")
	flags.StringP("workspace", "w", "", "Workspace ID [default: default]")
	flags.String("backend", "", "Storage backend (duckdb|sqlite) [default: duckdb]")
	flags.Duration("poll-interval", 0, "Preview refresh interval [default: 2s]")
	flags.Int("max-messages", 0, "Messages kept per preview [default: 3]")
	flags.String("log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String("log-file", "", "Write logs to file instead of stderr")
}

// BindFlags binds the flags from RegisterFlags to their keys. Only flags the
// user actually set override lower layers.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		KeyDataDir:      "data-dir",
		KeyWorkspace:    "workspace",
		KeyBackend:      "backend",
		KeyPollInterval: "poll-interval",
		KeyMaxMessages:  "max-messages",
		KeyLogLevel:     "log-level",
		KeyLogFile:      "log-file",
	} {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding %s flag: %w", name, err)
		}
	}
	return nil
}

// LoadDotEnv exports AGENT_ACTIVITY_* variables from a dotenv file without
// overriding the real environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	envMap, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}
	for key, value := range envMap {
		if !strings.HasPrefix(key, EnvPrefix+"_") {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/agent-activity/config.yaml
func DefaultConfigFile() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "agent-activity", "config.yaml")
}

// Load reads configFile (or the default file, if present) and resolves the
// final configuration
func Load(v *viper.Viper, configFile string) (*Config, error) {
	explicit := configFile != ""
	if !explicit {
		configFile = DefaultConfigFile()
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil || explicit {
			v.SetConfigFile(configFile)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		} else {
			configFile = ""
		}
	}

	dataDir, err := expandHome(v.GetString(KeyDataDir))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:      dataDir,
		Workspace:    strings.TrimSpace(v.GetString(KeyWorkspace)),
		Backend:      strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		PollInterval: v.GetDuration(KeyPollInterval),
		MaxMessages:  v.GetInt(KeyMaxMessages),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFile:      v.GetString(KeyLogFile),
		ConfigFile:   configFile,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved values
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Workspace == "" {
		errs = append(errs, errors.New("workspace must not be empty"))
	}
	if !validBackend(c.Backend) {
		errs = append(errs, fmt.Errorf("backend must be one of %s, got %q", strings.Join(sessions.Backends, ", "), c.Backend))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("max_messages must be positive, got %d", c.MaxMessages))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// PollerConfig returns the poller settings for this configuration
func (c *Config) PollerConfig() poller.Config {
	return poller.Config{
		WorkspaceID: c.Workspace,
		Interval:    c.PollInterval,
		MaxMessages: c.MaxMessages,
	}
}

func validBackend(name string) bool {
	for _, b := range sessions.Backends {
		if name == b {
			return true
		}
	}
	return false
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
