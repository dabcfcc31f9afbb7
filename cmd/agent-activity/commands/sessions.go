package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/catalog"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/internal/timefmt"
	"github.com/strrl/agent-activity/pkg/models"
)

// NewSessionsCommand creates the sessions command
func NewSessionsCommand(a *app) *cobra.Command {
	var (
		status string
		query  string
		counts bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions without the TUI",
		Long: `List the sessions of the workspace, optionally filtered by status and a
case-insensitive search over agent type, model, current task and chat name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if !validFilter(status) {
				return fmt.Errorf("invalid status %q (want one of %s)", status, strings.Join(catalog.FilterOptions(), ", "))
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			list, err := sessions.Do(cmd.Context(), sessions.DefaultQueryTimeout, func(ctx context.Context) ([]models.Session, error) {
				return store.ListSessions(ctx, a.cfg.Workspace)
			})
			if err != nil {
				return fmt.Errorf("failed to fetch sessions: %w", err)
			}

			c := catalog.New(list)
			out := cmd.OutOrStdout()

			if counts {
				result := c.Counts()
				if format != formatTable {
					return writeStructured(out, format, result)
				}
				w := newTable(out)
				for _, opt := range catalog.FilterOptions() {
					fmt.Fprintf(w, "%s\t%d\n", opt, result[opt])
				}
				return w.Flush()
			}

			filtered := c.Filter(status, query)
			if format != formatTable {
				return writeStructured(out, format, filtered)
			}
			if len(filtered) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}
			return printSessions(out, filtered, time.Now())
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", catalog.All, "Status filter (all|running|idle|paused|completed|error)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive search text")
	cmd.Flags().BoolVar(&counts, "counts", false, "Print the number of sessions per status instead")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format (table, json, yaml)")
	return cmd
}

func validFilter(status string) bool {
	for _, opt := range catalog.FilterOptions() {
		if status == opt {
			return true
		}
	}
	return false
}

func printSessions(out io.Writer, list []models.Session, now time.Time) error {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tSTATUS\tAGENT\tMODEL\tCHAT\tHEARTBEAT\tTASK")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Status.Label(),
			s.AgentType,
			s.Model,
			sessions.TruncateString(s.DisplayName(), 40),
			timefmt.Relative(s.LastHeartbeat, now),
			sessions.TruncateString(s.CurrentTask, 50))
	}
	return w.Flush()
}
