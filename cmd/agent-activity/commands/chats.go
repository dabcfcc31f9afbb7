package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/chatgroup"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/internal/timefmt"
	"github.com/strrl/agent-activity/pkg/models"
)

// NewChatsCommand creates the chats command
func NewChatsCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats grouped by recency",
		Long:  `List the chats of the workspace in Today, Yesterday, Previous 7 Days and Older groups, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			chats, err := sessions.Do(cmd.Context(), sessions.DefaultQueryTimeout, func(ctx context.Context) ([]models.ChatSummary, error) {
				return store.ListChats(ctx, a.cfg.Workspace)
			})
			if err != nil {
				return fmt.Errorf("failed to fetch chats: %w", err)
			}

			now := time.Now()
			buckets := chatgroup.Group(chats, now)
			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, buckets)
			}
			if len(buckets) == 0 {
				fmt.Fprintln(out, "No chats found")
				return nil
			}

			for i, bucket := range buckets {
				fmt.Fprintf(out, "%s (%s)\n", bucket.Label, humanize.Comma(int64(len(bucket.Chats))))
				w := newTable(out)
				for _, chat := range bucket.Chats {
					updated := chat.UpdatedAt
					if t, ok := timefmt.Parse(chat.UpdatedAt); ok {
						updated = timefmt.Relative(t, now)
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\n", chat.ChatID, sessions.TruncateString(chat.DisplayName(), 48), updated)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if i < len(buckets)-1 {
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format (table, json, yaml)")
	return cmd
}
