package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/sessions"
)

// NewImportCommand creates the import command
func NewImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Load sessions, chats and messages from a YAML fixture",
		Long: `Load a YAML fixture into the workspace. Sessions and chats with an existing
ID replace the stored ones; messages are appended.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := sessions.LoadFixture(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}

			ctx, cancel := contextWithQueryTimeout(cmd)
			defer cancel()
			if err := store.Import(ctx, a.cfg.Workspace, fixture); err != nil {
				return fmt.Errorf("failed to import fixture: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sessions, %d chats and %d messages into workspace %s\n",
				len(fixture.Sessions), len(fixture.Chats), len(fixture.Messages), a.cfg.Workspace)
			return nil
		},
	}
}
