package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/strrl/agent-activity/internal/catalog"
	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/internal/poller"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/pkg/models"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch [session-id...]",
		Short: "Print live message previews without the TUI",
		Long: `Poll the given sessions (all running sessions by default) and print their
latest messages whenever they change, until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}

			w := &watcher{
				store:     store,
				workspace: a.cfg.Workspace,
				poller:    poller.New(store, a.cfg.PollerConfig()),
				out:       cmd.OutOrStdout(),
				once:      once,
				last:      make(map[string]string),
			}
			defer w.poller.Close()
			return w.run(cmd.Context(), args)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first complete set of previews")
	return cmd
}

type watcher struct {
	store     sessions.Store
	workspace string
	poller    *poller.Poller
	out       io.Writer
	once      bool

	catalog *catalog.Catalog
	last    map[string]string // last printed block per session
}

func (w *watcher) run(ctx context.Context, ids []string) error {
	if err := w.reload(ctx); err != nil {
		return err
	}

	if len(ids) == 0 {
		for _, s := range w.catalog.Filter(string(models.StatusRunning), "") {
			ids = append(ids, s.ID)
		}
	}
	var watched []string
	for _, id := range ids {
		if _, ok := w.catalog.Lookup(id); !ok {
			logger.Warn("unknown session, skipping", "session", id)
			continue
		}
		watched = append(watched, id)
	}
	if len(watched) == 0 {
		fmt.Fprintln(w.out, "No sessions to watch")
		return nil
	}

	w.poller.SetExpanded(watched...)
	reload := time.NewTicker(w.poller.Config().Interval)
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-w.poller.Updates():
			if !ok {
				return nil
			}
			settled := w.print()
			if w.once && settled {
				return nil
			}

		case <-reload.C:
			if err := w.reload(ctx); err != nil {
				logger.Warn("failed to reload sessions", "workspace", w.workspace, "err", err)
				continue
			}
			w.poller.PruneOrphans()
			if len(w.poller.Expanded()) == 0 {
				fmt.Fprintln(w.out, "All watched sessions are gone")
				return nil
			}
		}
	}
}

func (w *watcher) reload(ctx context.Context) error {
	list, err := sessions.Do(ctx, sessions.DefaultQueryTimeout, func(ctx context.Context) ([]models.Session, error) {
		return w.store.ListSessions(ctx, w.workspace)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch sessions: %w", err)
	}
	if w.catalog == nil {
		w.catalog = catalog.New(list)
	} else {
		w.catalog.Replace(list)
	}
	w.poller.SetSessions(w.catalog.Sessions())
	return nil
}

// print writes every preview that changed since the last call. It reports
// whether no preview is still waiting for its first fetch.
func (w *watcher) print() bool {
	settled := true
	for _, id := range w.poller.Expanded() {
		session, _ := w.catalog.Lookup(id)
		preview, ok := w.poller.Preview(id)
		if session.ChatID != "" && (!ok || preview.State() == poller.StateLoading) {
			settled = false
		}
		if !ok || preview.State() == poller.StateLoading {
			continue
		}

		block := renderPreview(session, preview)
		if w.last[id] == block {
			continue
		}
		w.last[id] = block
		fmt.Fprint(w.out, block)
	}
	return settled
}

func renderPreview(session models.Session, preview poller.Preview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s)\n", session.ID, session.DisplayName(), session.Status.Label())
	if preview.Error != "" {
		fmt.Fprintf(&b, "  ! %s\n", preview.Error)
	}
	if len(preview.Messages) == 0 && preview.Error == "" {
		b.WriteString("  (no messages)\n")
	}
	for _, msg := range preview.Messages {
		fmt.Fprintf(&b, "  %s\n", sessions.FormatMessage(msg, 100))
	}
	return b.String()
}
