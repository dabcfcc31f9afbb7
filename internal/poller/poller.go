// Package poller keeps live message previews for the sessions a user has
// expanded. Every expanded session is refreshed on a fixed interval; state
// is tracked per session and evicted as soon as the session is collapsed.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/strrl/agent-activity/internal/logger"
	"github.com/strrl/agent-activity/pkg/models"
)

const (
	// DefaultInterval is the tick period when Config.Interval is unset
	DefaultInterval = 2 * time.Second
	// DefaultMaxMessages is how many trailing messages a preview keeps
	DefaultMaxMessages = 3

	fallbackError = "failed to load messages"
)

// ChatFetcher loads a chat with its full message list
type ChatFetcher interface {
	GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error)
}

// ChatFetcherFunc adapts a function to ChatFetcher
type ChatFetcherFunc func(ctx context.Context, workspaceID, chatID string) (*models.Chat, error)

// GetChat calls f
func (f ChatFetcherFunc) GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error) {
	return f(ctx, workspaceID, chatID)
}

// Config holds the caller-tunable knobs. Zero values take the defaults.
type Config struct {
	WorkspaceID string
	Interval    time.Duration
	MaxMessages int
}

// State is the lifecycle of one session's preview
type State int

const (
	StateUnfetched State = iota
	StateLoading
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return "unfetched"
	}
}

// Preview is a copy of one session's cached state. An entry exists from the
// first fetch issued for the session, so an expanded session whose chat can't
// be resolved has no Preview.
type Preview struct {
	SessionID string
	Messages  []models.ChatMessage
	Loading   bool
	Error     string
	FetchedAt time.Time
}

// State derives the lifecycle state from the preview fields
func (p Preview) State() State {
	switch {
	case p.Loading:
		return StateLoading
	case p.Error != "":
		return StateErrored
	default:
		return StateReady
	}
}

type entry struct {
	messages  []models.ChatMessage
	loading   bool
	err       string
	fetchedAt time.Time
	// sequence number of the outstanding fetch, 0 when idle
	inflight uint64
}

// Option customises a Poller
type Option func(*Poller)

// WithClock overrides the clock used for FetchedAt
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// Poller refreshes previews for the expanded set
type Poller struct {
	fetcher ChatFetcher
	cfg     Config
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	known    map[string]string // session ID -> chat ID, from SetSessions
	expanded map[string]struct{}
	cache    map[string]*entry
	seq      uint64
	stop     chan struct{} // non-nil while the ticker goroutine runs
	closed   bool
	updates  chan struct{}
}

// New creates a poller. It does nothing until sessions are expanded.
func New(fetcher ChatFetcher, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		fetcher:  fetcher,
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		known:    make(map[string]string),
		expanded: make(map[string]struct{}),
		cache:    make(map[string]*entry),
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration
func (p *Poller) Config() Config {
	return p.cfg
}

// SetSessions replaces the list used to resolve session IDs to chat IDs.
// Later duplicates of an ID are ignored.
func (p *Poller) SetSessions(sessions []models.Session) {
	known := make(map[string]string, len(sessions))
	for _, s := range sessions {
		if _, dup := known[s.ID]; dup {
			continue
		}
		known[s.ID] = s.ChatID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.known = known
}

// SetExpanded replaces the expanded set
func (p *Poller) SetExpanded(ids ...string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || sameSet(p.expanded, next) {
		return
	}
	p.expanded = next
	p.expandedChangedLocked()
}

// Toggle expands id if collapsed and collapses it otherwise. It reports
// whether id is expanded afterwards.
func (p *Poller) Toggle(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	_, on := p.expanded[id]
	if on {
		delete(p.expanded, id)
	} else {
		p.expanded[id] = struct{}{}
	}
	p.expandedChangedLocked()
	return !on
}

// IsExpanded reports whether id is in the expanded set
func (p *Poller) IsExpanded(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.expanded[id]
	return ok
}

// Expanded returns the expanded IDs, sorted
func (p *Poller) Expanded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.expanded))
	for id := range p.expanded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneOrphans collapses expanded IDs that no longer match a session in the
// list given to SetSessions
func (p *Poller) PruneOrphans() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	changed := false
	for id := range p.expanded {
		if _, ok := p.known[id]; !ok {
			delete(p.expanded, id)
			changed = true
		}
	}
	if changed {
		p.expandedChangedLocked()
	}
}

// Refresh runs a poll tick now, outside the regular interval
func (p *Poller) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.tickLocked()
}

// Preview returns the cached state for id; false while it is unfetched
func (p *Poller) Preview(id string) (Preview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.cache[id]
	if !ok {
		return Preview{SessionID: id}, false
	}
	return e.preview(id), true
}

// Snapshot copies every cached preview
func (p *Poller) Snapshot() map[string]Preview {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Preview, len(p.cache))
	for id, e := range p.cache {
		out[id] = e.preview(id)
	}
	return out
}

// Updates signals after every state change. Signals are coalesced; the
// channel is closed by Close.
func (p *Poller) Updates() <-chan struct{} {
	return p.updates
}

// Close stops the ticker and cancels in-flight fetches. No state changes
// after Close returns.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stopLocked()
	p.cancel()
	close(p.updates)
}

// expandedChangedLocked evicts collapsed sessions, starts or stops the
// ticker and runs the immediate tick
func (p *Poller) expandedChangedLocked() {
	for id := range p.cache {
		if _, ok := p.expanded[id]; !ok {
			delete(p.cache, id)
		}
	}

	if len(p.expanded) == 0 {
		p.stopLocked()
	} else {
		p.startLocked()
		p.tickLocked()
	}
	p.notifyLocked()
}

func (p *Poller) startLocked() {
	if p.stop != nil {
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	go p.loop(stop)
}

func (p *Poller) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Poller) loop(stop chan struct{}) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			// a stop may have raced with this tick
			if p.stop == stop && !p.closed {
				p.tickLocked()
			}
			p.mu.Unlock()
		}
	}
}

// tickLocked issues one fetch per resolvable expanded session that has
// none outstanding
func (p *Poller) tickLocked() {
	started := false
	for id := range p.expanded {
		chatID := p.known[id]
		if chatID == "" {
			continue
		}

		e, ok := p.cache[id]
		if !ok {
			e = &entry{loading: true}
			p.cache[id] = e
			started = true
		}
		if e.inflight != 0 {
			continue
		}

		p.seq++
		e.inflight = p.seq
		go p.fetch(id, chatID, p.seq)
	}
	if started {
		p.notifyLocked()
	}
}

func (p *Poller) fetch(sessionID, chatID string, seq uint64) {
	chat, err := p.fetcher.GetChat(p.ctx, p.cfg.WorkspaceID, chatID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	e, ok := p.cache[sessionID]
	if !ok || e.inflight != seq {
		// collapsed, or collapsed and expanded again, while in flight
		return
	}

	e.inflight = 0
	e.loading = false
	if err != nil {
		e.err = err.Error()
		if e.err == "" {
			e.err = fallbackError
		}
		logger.Debug("preview fetch failed", "session", sessionID, "chat", chatID, "err", err)
	} else {
		e.err = ""
		var msgs []models.ChatMessage
		if chat != nil {
			msgs = chat.Messages
		}
		e.messages = lastMessages(msgs, p.cfg.MaxMessages)
		e.fetchedAt = p.now()
	}
	p.notifyLocked()
}

func (p *Poller) notifyLocked() {
	if p.closed {
		return
	}
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (e *entry) preview(id string) Preview {
	msgs := make([]models.ChatMessage, len(e.messages))
	copy(msgs, e.messages)
	return Preview{
		SessionID: id,
		Messages:  msgs,
		Loading:   e.loading,
		Error:     e.err,
		FetchedAt: e.fetchedAt,
	}
}

// lastMessages copies the trailing n messages, keeping their order
func lastMessages(msgs []models.ChatMessage, n int) []models.ChatMessage {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
