package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/strrl/agent-activity/internal/catalog"
	"github.com/strrl/agent-activity/internal/chatgroup"
	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/internal/poller"
	"github.com/strrl/agent-activity/internal/sessions"
	"github.com/strrl/agent-activity/internal/timefmt"
	"github.com/strrl/agent-activity/pkg/models"
)

type viewMode int

const (
	sessionsView viewMode = iota
	chatsView
)

// Options wires the TUI to its collaborators
type Options struct {
	Store       sessions.Store
	Poller      *poller.Poller
	WorkspaceID string
	// Interval between session list reloads, defaults to the poller's
	Interval time.Duration
	Now      func() time.Time
}

type model struct {
	ctx       context.Context
	store     sessions.Store
	poller    *poller.Poller
	workspace string
	interval  time.Duration
	now       func() time.Time

	catalog   *catalog.Catalog
	filter    string
	search    textinput.Model
	searching bool
	visible   []models.Session
	cursor    int

	currentMode  viewMode
	chats        []chatgroup.Bucket
	chatsLoading bool
	chatsErr     error

	viewport viewport.Model
	loading  *LoadingIndicator
	loaded   bool
	notice   string
	err      error
	ready    bool
	width    int
	height   int
}

func initialModel(ctx context.Context, opts Options) model {
	search := textinput.New()
	search.Placeholder = "search agent, model, task or chat"
	search.Prompt = "/ "
	search.CharLimit = 128

	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Poller.Config().Interval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return model{
		ctx:         ctx,
		store:       opts.Store,
		poller:      opts.Poller,
		workspace:   opts.WorkspaceID,
		interval:    interval,
		now:         now,
		catalog:     catalog.New(nil),
		filter:      catalog.All,
		search:      search,
		currentMode: sessionsView,
		loading:     NewLoadingIndicator("Loading sessions..."),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		loadSessionsCmd(m.ctx, m.store, m.workspace),
		refreshCmd(m.interval),
		waitForPreviewsCmd(m.poller.Updates()),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := msg.Height - 5
		if bodyHeight < 1 {
			bodyHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.search.Width = msg.Width - 4

	case SessionsLoadedMsg:
		m.loaded = true
		if msg.Error != nil {
			// keep showing the previous snapshot
			m.err = msg.Error
			logger.Warn("failed to reload sessions", "workspace", m.workspace, "err", msg.Error)
			break
		}
		m.err = nil
		m.catalog.Replace(msg.Sessions)
		m.poller.SetSessions(m.catalog.Sessions())
		m.poller.PruneOrphans()
		m.applyFilter()

	case ChatsLoadedMsg:
		m.chatsLoading = false
		m.chatsErr = msg.Error
		if msg.Error == nil {
			m.chats = chatgroup.Group(msg.Chats, m.now())
		}

	case ActionDoneMsg:
		if msg.Error != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.Action, msg.Error)
		} else {
			m.notice = fmt.Sprintf("%s %s: ok", msg.Action, msg.SessionID)
		}
		cmds = append(cmds, loadSessionsCmd(m.ctx, m.store, m.workspace))

	case PreviewsUpdatedMsg:
		cmds = append(cmds, waitForPreviewsCmd(m.poller.Updates()))

	case RefreshMsg:
		cmds = append(cmds,
			loadSessionsCmd(m.ctx, m.store, m.workspace),
			refreshCmd(m.interval))

	case TickMsg:
		m.loading.Tick()
		cmds = append(cmds, tickCmd())

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		next, cmd, handled := m.handleKey(msg)
		if handled {
			next.refreshContent()
			return next, cmd
		}
		m = next
	}

	m.refreshContent()

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleKey processes a key outside search mode. handled is false for keys
// the viewport should see.
func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit, true

	case "c":
		if m.currentMode == chatsView {
			m.currentMode = sessionsView
			return m, nil, true
		}
		m.currentMode = chatsView
		m.chatsLoading = true
		return m, loadChatsCmd(m.ctx, m.store, m.workspace), true

	case "esc":
		if m.currentMode == chatsView {
			m.currentMode = sessionsView
		} else if m.search.Value() != "" {
			m.search.SetValue("")
			m.applyFilter()
		}
		return m, nil, true

	case "R":
		m.poller.Refresh()
		if m.currentMode == chatsView {
			m.chatsLoading = true
			return m, loadChatsCmd(m.ctx, m.store, m.workspace), true
		}
		return m, loadSessionsCmd(m.ctx, m.store, m.workspace), true
	}

	if m.currentMode == chatsView {
		return m, nil, false
	}

	switch msg.String() {
	case "tab":
		m.filter = catalog.NextFilter(m.filter, 1)
		m.applyFilter()

	case "shift+tab":
		m.filter = catalog.NextFilter(m.filter, -1)
		m.applyFilter()

	case "/":
		m.searching = true
		return m, m.search.Focus(), true

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}

	case " ", "space", "enter":
		if s, ok := m.selected(); ok {
			m.poller.Toggle(s.ID)
		}

	case "p", "r", "x":
		s, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		action := map[string]sessions.Action{
			"p": sessions.ActionPause,
			"r": sessions.ActionResume,
			"x": sessions.ActionCancel,
		}[msg.String()]
		if _, allowed := sessions.NextStatus(action, s.Status); !allowed {
			m.notice = fmt.Sprintf("cannot %s a %s session", action, s.Status.Label())
			return m, nil, true
		}
		m.notice = fmt.Sprintf("%s %s...", action, s.ID)
		return m, actionCmd(m.ctx, m.store, action, m.workspace, s.ID), true

	default:
		return m, nil, false
	}
	return m, nil, true
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.SetValue("")
		m.search.Blur()
		m.searching = false
	case "enter":
		m.search.Blur()
		m.searching = false
	case "ctrl+c":
		return m, tea.Quit
	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.applyFilter()
		m.refreshContent()
		return m, cmd
	}
	m.applyFilter()
	m.refreshContent()
	return m, nil
}

// applyFilter recomputes the visible list and clamps the cursor
func (m *model) applyFilter() {
	var current string
	if s, ok := m.selected(); ok {
		current = s.ID
	}

	m.visible = m.catalog.Filter(m.filter, m.search.Value())

	m.cursor = 0
	for i, s := range m.visible {
		if s.ID == current {
			m.cursor = i
			break
		}
	}
}

func (m model) selected() (models.Session, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return models.Session{}, false
	}
	return m.visible[m.cursor], true
}

func (m *model) refreshContent() {
	if !m.ready {
		return
	}
	if m.currentMode == chatsView {
		m.viewport.SetContent(m.renderChats())
		return
	}
	content, cursorLine := m.renderSessions()
	m.viewport.SetContent(content)

	// keep the cursor row on screen
	if cursorLine < m.viewport.YOffset {
		m.viewport.SetYOffset(cursorLine)
	} else if cursorLine >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(cursorLine - m.viewport.Height + 1)
	}
}

func (m model) renderTabs() string {
	counts := m.catalog.Counts()
	tabs := make([]string, 0, len(catalog.FilterOptions()))
	for _, opt := range catalog.FilterOptions() {
		label := fmt.Sprintf("%s (%d)", opt, counts[opt])
		if opt == m.filter {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return strings.Join(tabs, "  ")
}

// renderSessions renders the session rows and returns the line the cursor is on
func (m model) renderSessions() (string, int) {
	if len(m.visible) == 0 {
		if m.catalog.Len() == 0 {
			return emptyStyle.Render("No sessions in this workspace"), 0
		}
		return emptyStyle.Render("No sessions match the current filter"), 0
	}

	now := m.now()
	var s strings.Builder
	line, cursorLine := 0, 0

	for i, session := range m.visible {
		cursor := "  "
		style := rowStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
			cursorLine = line
		}

		marker := "▸"
		expanded := m.poller.IsExpanded(session.ID)
		if expanded {
			marker = "▾"
		}

		row := fmt.Sprintf("%s%s %s  %s  %s",
			cursor,
			marker,
			style.Render(truncate(session.DisplayName(), 32)),
			statusStyle(session.Status).Render(session.Status.Label()),
			mutedStyle.Render(fmt.Sprintf("%s · %s · %s",
				session.AgentType,
				session.Model,
				timefmt.Relative(session.LastHeartbeat, now))))
		s.WriteString(row + "\n")
		line++

		if session.CurrentTask != "" {
			s.WriteString("     " + mutedStyle.Render(truncate(session.CurrentTask, m.wrapWidth())) + "\n")
			line++
		}

		if expanded {
			for _, l := range m.renderPreview(session) {
				s.WriteString("     " + l + "\n")
				line++
			}
		}
	}
	return s.String(), cursorLine
}

// renderPreview renders the poller state for an expanded session
func (m model) renderPreview(session models.Session) []string {
	if session.ChatID == "" {
		return []string{emptyStyle.Render("no chat attached")}
	}
	preview, ok := m.poller.Preview(session.ID)
	if !ok {
		return []string{emptyStyle.Render("waiting...")}
	}

	var lines []string
	switch preview.State() {
	case poller.StateLoading:
		lines = append(lines, m.loading.Frame()+" "+mutedStyle.Render("loading messages"))
	case poller.StateErrored:
		lines = append(lines, errorStyle.Render("! "+preview.Error))
	}

	if len(preview.Messages) == 0 && preview.State() == poller.StateReady {
		lines = append(lines, emptyStyle.Render("No messages yet"))
	}
	for _, msg := range preview.Messages {
		lines = append(lines, rowStyle.Render(sessions.FormatMessage(msg, m.wrapWidth())))
	}
	return lines
}

func (m model) renderChats() string {
	if m.chatsLoading && len(m.chats) == 0 {
		return m.loading.Frame() + " " + mutedStyle.Render("Loading chats...")
	}
	if m.chatsErr != nil {
		return errorStyle.Render(fmt.Sprintf("Error loading chats: %v", m.chatsErr))
	}
	if len(m.chats) == 0 {
		return emptyStyle.Render("No chats in this workspace")
	}

	var s strings.Builder
	for i, bucket := range m.chats {
		s.WriteString(headerStyle.Render(string(bucket.Label)) + "\n")
		for _, chat := range bucket.Chats {
			updated := chat.UpdatedAt
			if t, ok := timefmt.Parse(chat.UpdatedAt); ok {
				updated = timefmt.Relative(t, m.now())
			}
			s.WriteString(fmt.Sprintf("  %s  %s\n",
				rowStyle.Render(truncate(chat.DisplayName(), 48)),
				mutedStyle.Render(updated)))
		}
		if i < len(m.chats)-1 {
			s.WriteString("\n")
		}
	}
	return s.String()
}

func (m model) wrapWidth() int {
	w := m.width - 8
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if !m.loaded {
		return LoadingOverlay(m.width, m.height, m.loading)
	}

	var s strings.Builder
	s.WriteString(m.renderHeader() + "\n")
	if m.currentMode == sessionsView {
		s.WriteString(m.renderTabs() + "\n")
		if m.searching || m.search.Value() != "" {
			s.WriteString(m.search.View() + "\n")
		} else {
			s.WriteString("\n")
		}
	} else {
		s.WriteString("\n\n")
	}
	s.WriteString(m.viewport.View() + "\n")
	s.WriteString(m.renderFooter())
	return s.String()
}

func (m model) renderHeader() string {
	title := fmt.Sprintf("Agent Activity - %s", m.workspace)
	if m.currentMode == chatsView {
		title += " - Chats"
	}
	header := titleStyle.Render(title)
	if m.err != nil {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.notice != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", mutedStyle.Render(m.notice))
	}
	return header
}

func (m model) renderFooter() string {
	var info string
	switch {
	case m.searching:
		info = "enter: apply • esc: clear"
	case m.currentMode == chatsView:
		info = "R: refresh • c/esc: sessions • q: quit"
	default:
		info = "↑/↓: navigate • space: preview • tab: status • /: search • p/r/x: pause/resume/cancel • c: chats • q: quit"
	}
	return footerStyle.Render(info)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Run shows the TUI until the user quits. The caller owns the poller and
// closes it afterwards.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(
		initialModel(ctx, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}
