package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strrl/agent-activity/internal/config"
	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/internal/poller"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/internal/tui"
)

// app carries the state shared by every command of one invocation
type app struct {
	v         *viper.Viper
	cfg       *config.Config
	store     sessions.Store
	logCloser io.Closer
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "agent-activity",
		Short: "Monitor agent sessions and their chats",
		Long: `agent-activity is a TUI for monitoring agent sessions: filter them by status,
search them, expand any number of them for live message previews, and pause,
resume or cancel them.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
		RunE:               a.runTUI,
	}

	config.RegisterFlags(rootCmd.PersistentFlags())
	if err := config.BindFlags(a.v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(NewSessionsCommand(a))
	rootCmd.AddCommand(NewChatsCommand(a))
	rootCmd.AddCommand(NewWatchCommand(a))
	rootCmd.AddCommand(NewInspectCommand(a))
	rootCmd.AddCommand(NewLifecycleCommand(a, sessions.ActionPause))
	rootCmd.AddCommand(NewLifecycleCommand(a, sessions.ActionResume))
	rootCmd.AddCommand(NewLifecycleCommand(a, sessions.ActionCancel))
	rootCmd.AddCommand(NewImportCommand(a))
	rootCmd.AddCommand(NewConfigCommand(a))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.v, configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	closer, err := logger.Configure(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.logCloser = closer
	logger.Debug("configuration loaded",
		"backend", cfg.Backend, "data_dir", cfg.DataDir, "workspace", cfg.Workspace, "config_file", cfg.ConfigFile)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
	return err
}

// openStore opens the configured backend once per invocation
func (a *app) openStore() (sessions.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := sessions.Open(a.cfg.Backend, a.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Backend, err)
	}
	a.store = store
	return store, nil
}

func (a *app) runTUI(cmd *cobra.Command, args []string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}

	// the TUI owns the terminal
	if a.cfg.LogFile == "" {
		logger.Discard()
	}

	p := poller.New(store, a.cfg.PollerConfig())
	defer p.Close()

	if err := tui.Run(cmd.Context(), tui.Options{
		Store:       store,
		Poller:      p,
		WorkspaceID: a.cfg.Workspace,
	}); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
