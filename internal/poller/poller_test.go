package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/agent-activity/pkg/models"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
	never   = time.Hour
)

type call struct {
	chatID string
	n      int
}

// fakeFetcher answers GetChat with respond. Calls listed in gates block
// until their channel is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	total   int
	gates   map[int]chan struct{}
	respond func(c call) (*models.Chat, error)
}

func newFakeFetcher(respond func(c call) (*models.Chat, error)) *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[string]int),
		gates:   make(map[int]chan struct{}),
		respond: respond,
	}
}

// block makes the nth call overall (1-based) wait for the returned channel
func (f *fakeFetcher) block(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[n] = gate
	return gate
}

func (f *fakeFetcher) GetChat(ctx context.Context, workspaceID, chatID string) (*models.Chat, error) {
	f.mu.Lock()
	f.total++
	f.calls[chatID]++
	c := call{chatID: chatID, n: f.calls[chatID]}
	gate := f.gates[f.total]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.respond(c)
}

func (f *fakeFetcher) count(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[chatID]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func chatWith(chatID string, n int) *models.Chat {
	chat := &models.Chat{ChatSummary: models.ChatSummary{ChatID: chatID}}
	for i := 1; i <= n; i++ {
		chat.Messages = append(chat.Messages, models.ChatMessage{
			ID:      fmt.Sprintf("%s-m%d", chatID, i),
			Role:    models.RoleAssistant,
			Content: fmt.Sprintf("message %d", i),
		})
	}
	return chat
}

func messageIDs(p Preview) []string {
	out := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, m.ID)
	}
	return out
}

func testSessions() []models.Session {
	return []models.Session{
		{ID: "A", ChatID: "chat-a", Status: models.StatusRunning},
		{ID: "B", ChatID: "chat-b", Status: models.StatusIdle},
		{ID: "orphan-chat", Status: models.StatusIdle},
	}
}

func newTestPoller(t *testing.T, f ChatFetcher, interval time.Duration) *Poller {
	t.Helper()
	p := New(f, Config{WorkspaceID: "ws", Interval: interval})
	p.SetSessions(testSessions())
	t.Cleanup(p.Close)
	return p
}

func waitState(t *testing.T, p *Poller, id string, want State) Preview {
	t.Helper()
	var got Preview
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = p.Preview(id)
		return ok && got.State() == want
	}, waitFor, poll, "session %s never reached %s", id, want)
	return got
}

func TestDefaults(t *testing.T) {
	p := New(newFakeFetcher(nil), Config{})
	defer p.Close()

	assert.Equal(t, DefaultInterval, p.Config().Interval)
	assert.Equal(t, DefaultMaxMessages, p.Config().MaxMessages)
}

func TestExpandLoadsThenReady(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 5), nil
	})
	gate := f.block(1)
	p := newTestPoller(t, f, never)

	_, ok := p.Preview("A")
	require.False(t, ok, "unfetched before expansion")

	p.SetExpanded("A")
	loading, ok := p.Preview("A")
	require.True(t, ok)
	assert.Equal(t, StateLoading, loading.State())
	assert.Empty(t, loading.Messages)

	close(gate)
	ready := waitState(t, p, "A", StateReady)
	assert.Equal(t, []string{"chat-a-m3", "chat-a-m4", "chat-a-m5"}, messageIDs(ready))
	assert.Empty(t, ready.Error)
	assert.False(t, ready.FetchedAt.IsZero())
}

func TestMaxMessagesConfigurable(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 4), nil
	})
	p := New(f, Config{WorkspaceID: "ws", Interval: never, MaxMessages: 10})
	defer p.Close()
	p.SetSessions(testSessions())

	p.SetExpanded("A")
	ready := waitState(t, p, "A", StateReady)
	assert.Len(t, ready.Messages, 4)
}

func TestCollapseEvictsState(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 2), nil
	})
	p := newTestPoller(t, f, never)

	assert.True(t, p.Toggle("A"))
	waitState(t, p, "A", StateReady)

	assert.False(t, p.Toggle("A"))
	_, ok := p.Preview("A")
	assert.False(t, ok)
	assert.Empty(t, p.Snapshot())
	assert.Empty(t, p.Expanded())
}

func TestShrinkKeepsRemainingState(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 3), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A", "B")
	before := waitState(t, p, "A", StateReady)
	waitState(t, p, "B", StateReady)
	callsBefore := f.count("chat-a")

	p.SetExpanded("A")

	after, ok := p.Preview("A")
	require.True(t, ok)
	assert.Equal(t, messageIDs(before), messageIDs(after))
	_, ok = p.Preview("B")
	assert.False(t, ok)
	assert.Equal(t, []string{"A"}, p.Expanded())

	// the shrink is a change, so A is refreshed once more
	require.Eventually(t, func() bool { return f.count("chat-a") == callsBefore+1 }, waitFor, poll)
}

func TestErrorKeepsPreviousMessages(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		if c.n == 1 {
			return chatWith(c.chatID, 3), nil
		}
		return nil, fmt.Errorf("gateway timeout %d", c.n)
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	ready := waitState(t, p, "A", StateReady)

	p.Refresh()
	first := waitState(t, p, "A", StateErrored)
	assert.Equal(t, "gateway timeout 2", first.Error)
	assert.Equal(t, messageIDs(ready), messageIDs(first))

	p.Refresh()
	require.Eventually(t, func() bool {
		got, _ := p.Preview("A")
		return got.Error == "gateway timeout 3"
	}, waitFor, poll)
	second, _ := p.Preview("A")
	assert.Equal(t, messageIDs(ready), messageIDs(second))
	assert.False(t, second.Loading)
}

func TestErrorWithoutMessageUsesFallback(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return nil, errors.New("")
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	got := waitState(t, p, "A", StateErrored)
	assert.Equal(t, "failed to load messages", got.Error)
	assert.Empty(t, got.Messages)
}

func TestErrorRecoversOnNextTick(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		if c.n == 1 {
			return nil, errors.New("boom")
		}
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	waitState(t, p, "A", StateErrored)
	p.Refresh()
	got := waitState(t, p, "A", StateReady)
	assert.Empty(t, got.Error)
	assert.Len(t, got.Messages, 1)
}

func TestFailureIsolatedPerSession(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		if c.chatID == "chat-b" {
			return nil, errors.New("no such chat")
		}
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A", "B")
	waitState(t, p, "A", StateReady)
	waitState(t, p, "B", StateErrored)
}

func TestUnresolvableSessionSkipped(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("ghost", "orphan-chat")
	p.Refresh()

	assert.Empty(t, p.Snapshot())
	assert.Equal(t, 0, f.totalCalls())
	assert.Equal(t, []string{"ghost", "orphan-chat"}, p.Expanded())
}

func TestOverlappingTicksDropped(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	gate := f.block(1)
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	p.Refresh()
	p.Refresh()
	p.Refresh()
	assert.Equal(t, 1, f.count("chat-a"))

	close(gate)
	waitState(t, p, "A", StateReady)
	p.Refresh()
	require.Eventually(t, func() bool { return f.count("chat-a") == 2 }, waitFor, poll)
}

func TestStaleFetchDiscardedAfterReexpand(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		if c.n == 1 {
			return chatWith("stale", 3), nil
		}
		return chatWith("fresh", 3), nil
	})
	slow := f.block(1)
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	p.SetExpanded()
	p.SetExpanded("A")

	fresh := waitState(t, p, "A", StateReady)
	assert.Equal(t, "fresh-m3", fresh.Messages[2].ID)

	close(slow)
	require.Eventually(t, func() bool { return f.count("chat-a") == 2 }, waitFor, poll)
	time.Sleep(20 * time.Millisecond)

	got, _ := p.Preview("A")
	assert.Equal(t, messageIDs(fresh), messageIDs(got))
}

func TestIntervalTicks(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, 10*time.Millisecond)

	p.SetExpanded("A")
	require.Eventually(t, func() bool { return f.count("chat-a") >= 3 }, waitFor, poll)
}

func TestTimerStopsWhenEmptyAndRestarts(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, 5*time.Millisecond)

	p.SetExpanded("A")
	require.Eventually(t, func() bool { return f.count("chat-a") >= 2 }, waitFor, poll)

	p.SetExpanded()
	// let goroutines launched by the last tick reach the fetcher
	time.Sleep(20 * time.Millisecond)
	stopped := f.totalCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, f.totalCalls(), "no fetches with nothing expanded")

	p.SetExpanded("B")
	require.Eventually(t, func() bool { return f.count("chat-b") >= 2 }, waitFor, poll)
}

func TestCloseStopsStateWrites(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	gate := f.block(1)
	p := New(f, Config{WorkspaceID: "ws", Interval: 5 * time.Millisecond})
	p.SetSessions(testSessions())

	p.SetExpanded("A")
	p.Close()
	close(gate)
	time.Sleep(30 * time.Millisecond)

	got, ok := p.Preview("A")
	require.True(t, ok)
	assert.Equal(t, StateLoading, got.State())
	assert.Equal(t, 1, f.totalCalls())

	p.SetExpanded("B")
	assert.False(t, p.Toggle("B"))
	assert.NotContains(t, p.Expanded(), "B")

	// drain the pending signal; then the channel must be closed
	for range p.Updates() {
	}
	p.Close()
}

func TestPruneOrphans(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A", "B")
	waitState(t, p, "B", StateReady)

	p.SetSessions(testSessions()[:1])
	p.PruneOrphans()

	assert.Equal(t, []string{"A"}, p.Expanded())
	_, ok := p.Preview("B")
	assert.False(t, ok)
}

func TestUpdatesSignalled(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 1), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	select {
	case <-p.Updates():
	case <-time.After(waitFor):
		t.Fatal("expected an update signal")
	}
	waitState(t, p, "A", StateReady)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFakeFetcher(func(c call) (*models.Chat, error) {
		return chatWith(c.chatID, 2), nil
	})
	p := newTestPoller(t, f, never)

	p.SetExpanded("A")
	waitState(t, p, "A", StateReady)

	snap := p.Snapshot()
	snap["A"].Messages[0].Content = "mutated"

	got, _ := p.Preview("A")
	assert.Equal(t, "message 1", got.Messages[0].Content)
}

func TestChatFetcherFunc(t *testing.T) {
	var gotWS string
	fn := ChatFetcherFunc(func(ctx context.Context, workspaceID, chatID string) (*models.Chat, error) {
		gotWS = workspaceID
		return chatWith(chatID, 1), nil
	})
	p := newTestPoller(t, fn, never)

	p.SetExpanded("A")
	waitState(t, p, "A", StateReady)
	assert.Equal(t, "ws", gotWS)
}
