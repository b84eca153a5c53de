package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

type fakePage struct {
	mu        sync.Mutex
	location  string
	navigated []string
	waited    []string
	closed    bool
	locErr    error
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	p.location = url
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, p.locErr
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = append(p.waited, selector)
	return nil
}

func (p *fakePage) Select(ctx context.Context, selector, value string) error { return nil }
func (p *fakePage) Type(ctx context.Context, selector, text string) error    { return nil }
func (p *fakePage) Click(ctx context.Context, selector string) error         { return nil }
func (p *fakePage) Submit(ctx context.Context, selector string) error        { return nil }
func (p *fakePage) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	return nil
}
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) navigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.navigated)
}

type fakeLauncher struct {
	mu     sync.Mutex
	pages  []*fakePage
	opens  map[string]int
	closed bool
	err    error
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{opens: map[string]int{}}
}

func (l *fakeLauncher) Open(ctx context.Context, group string) (*browser.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.opens[group]++
	p := &fakePage{}
	l.pages = append(l.pages, p)
	return &browser.Handle{Page: p, ConnectURL: "ws://127.0.0.1:9222/" + group}, nil
}

func (l *fakeLauncher) Render(ctx context.Context, url string) (string, error) { return "", nil }

func (l *fakeLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLauncher) openCount(group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens[group]
}

func (l *fakeLauncher) lastPage() *fakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages[len(l.pages)-1]
}

type fakeGroups struct{}

func (fakeGroups) URL(group string) (string, error) {
	if group == "unknown" {
		return "", errors.New("unsupported group")
	}
	return "https://chat.example/" + group, nil
}

func (fakeGroups) Matches(group, location string) bool {
	return location == "https://chat.example/"+group
}

func newTestManager(l *fakeLauncher) *Manager {
	return NewManager(l, fakeGroups{}, Config{
		ReadySelectors: []string{"select#model-select", "textarea#message-input"},
		ElementTimeout: time.Second,
	}, zerolog.Nop())
}

func noop(ctx context.Context, page browser.Page) error { return nil }

func TestManager_OpensOnceAndReuses(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	require.NoError(t, m.Do(ctx, "chatgpt", noop))

	assert.Equal(t, 1, l.openCount("chatgpt"))
	page := l.lastPage()
	assert.Equal(t, []string{"https://chat.example/chatgpt"}, page.navigated)
	assert.Equal(t, []string{"select#model-select", "textarea#message-input"}, page.waited)

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, models.StatusReady, infos[0].Status)
	assert.Equal(t, int64(2), infos[0].Requests)
}

func TestManager_SerializesSameGroup(t *testing.T) {
	m := newTestManager(newFakeLauncher())
	ctx := context.Background()

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Do(ctx, "chatgpt", func(ctx context.Context, page browser.Page) error {
				n := inFlight.Add(1)
				for {
					old := maxInFlight.Load()
					if n <= old || maxInFlight.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestManager_DistinctGroupsRunInParallel(t *testing.T) {
	m := newTestManager(newFakeLauncher())
	ctx := context.Background()

	var ready sync.WaitGroup
	ready.Add(2)
	both := make(chan struct{})
	go func() {
		ready.Wait()
		close(both)
	}()

	errs := make(chan error, 2)
	for _, g := range []string{"chatgpt", "deepseek"} {
		go func(g string) {
			errs <- m.Do(ctx, g, func(ctx context.Context, page browser.Page) error {
				ready.Done()
				select {
				case <-both:
					return nil
				case <-time.After(time.Second):
					return errors.New("groups did not overlap")
				}
			})
		}(g)
	}

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestManager_AutomationFailureInvalidates(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	fail := &models.AutomationFailure{Group: "chatgpt", Step: "select model", Err: errors.New("gone")}
	err := m.Do(ctx, "chatgpt", func(ctx context.Context, page browser.Page) error { return fail })
	assert.ErrorIs(t, err, fail)

	first := l.lastPage()
	assert.True(t, first.closed)
	assert.Empty(t, m.List())

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.Equal(t, 2, l.openCount("chatgpt"))
}

func TestManager_CancellationKeepsSessionButReloads(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)

	ctx, cancel := context.WithCancel(context.Background())
	err := m.Do(ctx, "chatgpt", func(ctx context.Context, page browser.Page) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	page := l.lastPage()
	assert.False(t, page.closed)

	require.NoError(t, m.Do(context.Background(), "chatgpt", noop))
	assert.Equal(t, 1, l.openCount("chatgpt"))
	assert.Equal(t, 2, page.navigations(), "a cancelled run re-navigates before reuse")
}

func TestManager_TimeoutKeepsSessionButReloads(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	err := m.Do(ctx, "chatgpt", func(ctx context.Context, page browser.Page) error {
		return &models.AutomationTimeoutError{Group: "chatgpt", After: "1m0s"}
	})
	var timeout *models.AutomationTimeoutError
	require.ErrorAs(t, err, &timeout)

	page := l.lastPage()
	assert.False(t, page.closed)

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.Equal(t, 1, l.openCount("chatgpt"))
	assert.Equal(t, 2, page.navigations(), "a timed out run re-navigates before reuse")
}

func TestManager_MarkReload(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	m.MarkReload("chatgpt")

	require.NoError(t, m.Do(ctx, "chatgpt", func(ctx context.Context, page browser.Page) error {
		m.MarkReload("chatgpt")
		return nil
	}))
	page := l.lastPage()
	assert.Equal(t, 1, page.navigations())

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.Equal(t, 2, page.navigations())

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.Equal(t, 2, page.navigations(), "the reload flag is cleared once used")
}

func TestManager_RevalidatesWhenLocationDrifts(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	page := l.lastPage()
	page.mu.Lock()
	page.location = "https://chat.example/login"
	page.mu.Unlock()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.Equal(t, 2, page.navigations())
	assert.Equal(t, 1, l.openCount("chatgpt"))
}

func TestManager_UnreachablePageIsReopened(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	first := l.lastPage()
	first.mu.Lock()
	first.locErr = errors.New("target closed")
	first.mu.Unlock()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	assert.True(t, first.closed)
	assert.Equal(t, 2, l.openCount("chatgpt"))
}

func TestManager_WaitingForLockIsCancellable(t *testing.T) {
	m := newTestManager(newFakeLauncher())
	hold := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = m.Do(context.Background(), "chatgpt", func(ctx context.Context, page browser.Page) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Do(ctx, "chatgpt", noop)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
	require.NoError(t, m.Do(context.Background(), "chatgpt", noop))
}

func TestManager_OpenFailureIsAutomationFailure(t *testing.T) {
	l := newFakeLauncher()
	l.err = errors.New("docker unavailable")
	m := newTestManager(l)

	err := m.Do(context.Background(), "chatgpt", noop)
	assert.True(t, models.IsAutomationFailure(err))
	assert.Empty(t, m.List())
}

func TestManager_InvalidateAndLookups(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	_, err := m.ControlURL("chatgpt")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, m.Do(ctx, "chatgpt", noop))

	url, err := m.ControlURL("chatgpt")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/chatgpt", url)

	shot, err := m.Screenshot(ctx, "chatgpt")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), shot)

	require.NoError(t, m.Invalidate(ctx, "chatgpt"))
	assert.True(t, l.lastPage().closed)
	assert.ErrorIs(t, m.Invalidate(ctx, "chatgpt"), ErrNoSession)
	assert.ErrorIs(t, m.Invalidate(ctx, "deepseek"), ErrNoSession)
}

func TestManager_ReapsIdleSessions(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	m.cfg.IdleTimeout = time.Minute
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Do(context.Background(), "chatgpt", noop))
	assert.Equal(t, 0, m.reapIdle())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.reapIdle())
	assert.True(t, l.lastPage().closed)
	assert.Empty(t, m.List())
}

func TestManager_CloseAll(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(l)
	ctx := context.Background()

	require.NoError(t, m.Do(ctx, "chatgpt", noop))
	require.NoError(t, m.Do(ctx, "deepseek", noop))

	require.NoError(t, m.CloseAll(ctx))
	for _, p := range l.pages {
		assert.True(t, p.closed)
	}
	assert.True(t, l.closed)
	assert.ErrorIs(t, m.Do(ctx, "chatgpt", noop), ErrClosed)
}
