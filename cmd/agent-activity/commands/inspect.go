package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/internal/timefmt"
)

// NewInspectCommand creates the inspect command
func NewInspectCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show a session and the full history of its chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}

			ctx, cancel := contextWithQueryTimeout(cmd)
			defer cancel()
			detail, err := sessions.InspectSession(ctx, store, a.cfg.Workspace, args[0])
			if err != nil {
				return fmt.Errorf("failed to inspect session: %w", err)
			}

			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, detail)
			}

			now := time.Now()
			s := detail.Session
			fmt.Fprintf(out, "Session: %s\n", s.ID)
			fmt.Fprintln(out, strings.Repeat("=", 42))
			w := newTable(out)
			fmt.Fprintf(w, "Status:\t%s\n", s.Status.Label())
			fmt.Fprintf(w, "Agent:\t%s\n", s.AgentType)
			fmt.Fprintf(w, "Model:\t%s\n", s.Model)
			fmt.Fprintf(w, "Chat:\t%s (%s)\n", s.DisplayName(), s.ChatID)
			if s.CurrentTask != "" {
				fmt.Fprintf(w, "Task:\t%s\n", s.CurrentTask)
			}
			fmt.Fprintf(w, "Heartbeat:\t%s\n", timefmt.Relative(s.LastHeartbeat, now))
			fmt.Fprintf(w, "Created:\t%s\n", timefmt.Stamp(s.CreatedAt))
			fmt.Fprintf(w, "Updated:\t%s\n", timefmt.Stamp(s.UpdatedAt))
			if err := w.Flush(); err != nil {
				return err
			}

			if detail.Chat == nil {
				fmt.Fprintf(out, "\nNo messages: %s\n", detail.ChatError)
				return nil
			}
			if len(detail.Chat.Messages) == 0 {
				fmt.Fprintln(out, "\nNo messages found for this session")
				return nil
			}

			fmt.Fprintf(out, "\nFound %d messages:\n", len(detail.Chat.Messages))
			for i, msg := range detail.Chat.Messages {
				fmt.Fprintf(out, "\n--- Message %d: %s %s ---\n%s\n", i+1, msg.Role, timefmt.Stamp(msg.CreatedAt), msg.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format (table, json, yaml)")
	return cmd
}
