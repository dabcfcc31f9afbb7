package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/sessions"
)

var pastTense = map[sessions.Action]string{
	sessions.ActionPause:  "paused",
	sessions.ActionResume: "resumed",
	sessions.ActionCancel: "cancelled",
}

var actionHelp = map[sessions.Action]string{
	sessions.ActionPause:  "Pause a running or idle session",
	sessions.ActionResume: "Resume a paused session",
	sessions.ActionCancel: "Cancel a session that has not finished",
}

// NewLifecycleCommand creates the pause, resume or cancel command
func NewLifecycleCommand(a *app, action sessions.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <session-id>",
		Short: actionHelp[action],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}

			ctx, cancel := contextWithQueryTimeout(cmd)
			defer cancel()

			sessionID := args[0]
			if err := sessions.Apply(ctx, store, action, a.cfg.Workspace, sessionID); err != nil {
				var transErr *sessions.TransitionError
				if errors.As(err, &transErr) {
					return transErr
				}
				return fmt.Errorf("failed to %s session: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s %s\n", sessionID, pastTense[action])
			return nil
		},
	}
}

func contextWithQueryTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), sessions.DefaultQueryTimeout)
}
