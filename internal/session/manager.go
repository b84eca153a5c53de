package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
	"github.com/shehryarbajwa/browserbase-chat/internal/metrics"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

var (
	// ErrNoSession is returned for a group that has no open page
	ErrNoSession = errors.New("no session for group")
	// ErrClosed is returned once CloseAll has run
	ErrClosed = errors.New("session manager closed")
)

// Groups resolves a group to its chat page
type Groups interface {
	URL(group string) (string, error)
	Matches(group, location string) bool
}

// Config controls page readiness and idle expiry
type Config struct {
	// ReadySelectors must all exist before a page is handed out
	ReadySelectors []string
	ElementTimeout time.Duration
	// IdleTimeout closes pages unused for this long; zero keeps them forever
	IdleTimeout time.Duration
}

// Session is the long-lived page serving one group
type Session struct {
	group  string
	handle *browser.Handle
	info   models.SessionInfo
	reload bool
}

// Page returns the session's page. Only valid while the group lock is held.
func (s *Session) Page() browser.Page { return s.handle.Page }

// Group returns the group the session serves
func (s *Session) Group() string { return s.group }

type slot struct {
	sem  *semaphore.Weighted
	sess *Session
}

// Manager keeps at most one page per group and serializes its use
type Manager struct {
	launcher browser.Launcher
	groups   Groups
	cfg      Config
	log      zerolog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(launcher browser.Launcher, groups Groups, cfg Config, log zerolog.Logger) *Manager {
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = 15 * time.Second
	}
	return &Manager{
		launcher: launcher,
		groups:   groups,
		cfg:      cfg,
		log:      log.With().Str("component", "sessions").Logger(),
		slots:    make(map[string]*slot),
		now:      time.Now,
	}
}

func (m *Manager) slot(group string) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	sl, ok := m.slots[group]
	if !ok {
		sl = &slot{sem: semaphore.NewWeighted(1)}
		m.slots[group] = sl
	}
	return sl, nil
}

// Acquire locks the group's page and makes sure it shows the group's chat
// UI, opening it on first use. The returned release func must be called
// when the caller is done with the page.
func (m *Manager) Acquire(ctx context.Context, group string) (*Session, func(), error) {
	sl, err := m.slot(group)
	if err != nil {
		return nil, nil, err
	}
	if err := sl.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}

	sess, err := m.ready(ctx, group, sl)
	if err != nil {
		sl.sem.Release(1)
		return nil, nil, err
	}

	m.mu.Lock()
	sess.info.Status = models.StatusBusy
	sess.info.LastUsedAt = m.now()
	sess.info.Requests++
	m.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			if sl.sess == sess && sess.info.Status == models.StatusBusy {
				sess.info.Status = models.StatusReady
				sess.info.LastUsedAt = m.now()
			}
			m.mu.Unlock()
			sl.sem.Release(1)
		})
	}
	return sess, release, nil
}

// Do runs fn against the group's page with the group lock held. An
// automation failure closes the page so the next request starts fresh. A
// cancelled or timed out run may leave the remote UI mid-answer, so it only
// forces a re-navigation.
func (m *Manager) Do(ctx context.Context, group string, fn func(ctx context.Context, page browser.Page) error) error {
	sess, release, err := m.Acquire(ctx, group)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx, sess.Page())
	var timeout *models.AutomationTimeoutError
	switch {
	case err == nil:
	case models.IsAutomationFailure(err):
		m.log.Warn().Err(err).Str("group", group).Msg("automation failed, dropping session")
		m.drop(group, sess, models.StatusError)
	case errors.As(err, &timeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil:
		m.markReload(sess)
	}
	return err
}

// MarkReload makes the group's next Acquire re-navigate the page. Callers
// use it for runs that returned normally but left the UI busy, such as a
// partial answer cut off by the completion timeout.
func (m *Manager) MarkReload(group string) {
	if sess, ok := m.current(group); ok {
		m.markReload(sess)
	}
}

func (m *Manager) markReload(sess *Session) {
	m.mu.Lock()
	sess.reload = true
	m.mu.Unlock()
}

// ready returns a usable session. Caller holds the slot lock.
func (m *Manager) ready(ctx context.Context, group string, sl *slot) (*Session, error) {
	url, err := m.groups.URL(group)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	sess := sl.sess
	m.mu.Unlock()

	if sess != nil {
		loc, err := sess.handle.Page.Location(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warn().Err(err).Str("group", group).Msg("page unreachable, reopening")
			m.drop(group, sess, models.StatusError)
			sess = nil
		} else if sess.reload || !m.groups.Matches(group, loc) {
			m.log.Debug().Str("group", group).Str("location", loc).Msg("revalidating page")
			if err := m.navigate(ctx, sess.handle.Page, url); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				m.drop(group, sess, models.StatusError)
				return nil, &models.AutomationFailure{Group: group, Step: "revalidate page", Err: err}
			}
			m.mu.Lock()
			sess.reload = false
			sess.info.URL = url
			m.mu.Unlock()
		}
	}

	if sess != nil {
		return sess, nil
	}
	return m.open(ctx, group, url, sl)
}

func (m *Manager) open(ctx context.Context, group, url string, sl *slot) (*Session, error) {
	started := m.now()
	handle, err := m.launcher.Open(ctx, group)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.AutomationFailure{Group: group, Step: "open browser", Err: err}
	}

	if err := m.navigate(ctx, handle.Page, url); err != nil {
		_ = handle.Page.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.AutomationFailure{Group: group, Step: "load chat page", Err: err}
	}

	sess := &Session{
		group:  group,
		handle: handle,
		info: models.SessionInfo{
			Group:      group,
			Status:     models.StatusReady,
			URL:        url,
			StartedAt:  started,
			LastUsedAt: m.now(),
			ConnectURL: handle.ConnectURL,
		},
	}

	m.mu.Lock()
	sl.sess = sess
	m.mu.Unlock()
	metrics.OpenSessions.Inc()

	m.log.Info().Str("group", group).Dur("took", m.now().Sub(started)).Msg("session ready")
	return sess, nil
}

func (m *Manager) navigate(ctx context.Context, page browser.Page, url string) error {
	if err := page.Navigate(ctx, url); err != nil {
		return err
	}
	for _, sel := range m.cfg.ReadySelectors {
		if err := page.WaitFor(ctx, sel, m.cfg.ElementTimeout); err != nil {
			return err
		}
	}
	return nil
}

// drop closes sess if it is still the group's current session
func (m *Manager) drop(group string, sess *Session, status models.SessionStatus) {
	m.mu.Lock()
	sl, ok := m.slots[group]
	if !ok || sl.sess != sess {
		m.mu.Unlock()
		return
	}
	sl.sess = nil
	sess.info.Status = status
	m.mu.Unlock()

	metrics.OpenSessions.Dec()
	if err := sess.handle.Page.Close(); err != nil {
		m.log.Warn().Err(err).Str("group", group).Msg("failed to close page")
	}
}

// Invalidate closes the group's page once it is not in use
func (m *Manager) Invalidate(ctx context.Context, group string) error {
	m.mu.Lock()
	sl, ok := m.slots[group]
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sl.sem.Release(1)

	m.mu.Lock()
	sess := sl.sess
	m.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	m.drop(group, sess, models.StatusClosed)
	m.log.Info().Str("group", group).Msg("session closed")
	return nil
}

// List describes the open sessions ordered by group
func (m *Manager) List() []models.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SessionInfo, 0, len(m.slots))
	for _, sl := range m.slots {
		if sl.sess != nil {
			out = append(out, sl.sess.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

func (m *Manager) current(group string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.slots[group]
	if !ok || sl.sess == nil {
		return nil, false
	}
	return sl.sess, true
}

// Screenshot captures the group's page without waiting for the group lock
func (m *Manager) Screenshot(ctx context.Context, group string) ([]byte, error) {
	sess, ok := m.current(group)
	if !ok {
		return nil, ErrNoSession
	}
	return sess.handle.Page.Screenshot(ctx)
}

// ControlURL returns the CDP endpoint of the group's browser
func (m *Manager) ControlURL(group string) (string, error) {
	sess, ok := m.current(group)
	if !ok {
		return "", ErrNoSession
	}
	if sess.handle.ConnectURL == "" {
		return "", fmt.Errorf("%s: %w", group, ErrNoSession)
	}
	return sess.handle.ConnectURL, nil
}

// RunReaper closes sessions idle for longer than IdleTimeout until ctx ends.
// It does nothing when IdleTimeout is zero.
func (m *Manager) RunReaper(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	interval := m.cfg.IdleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() int {
	m.mu.Lock()
	groups := make([]string, 0, len(m.slots))
	for g := range m.slots {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	reaped := 0
	for _, g := range groups {
		m.mu.Lock()
		sl := m.slots[g]
		m.mu.Unlock()

		// busy pages are not idle
		if !sl.sem.TryAcquire(1) {
			continue
		}
		m.mu.Lock()
		sess := sl.sess
		idle := sess != nil && m.now().Sub(sess.info.LastUsedAt) >= m.cfg.IdleTimeout
		m.mu.Unlock()

		if idle {
			m.drop(g, sess, models.StatusClosed)
			m.log.Info().Str("group", g).Msg("idle session closed")
			reaped++
		}
		sl.sem.Release(1)
	}
	return reaped
}

// CloseAll waits for in-flight work up to ctx, closes every page and the
// launcher. The manager refuses new work afterwards.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	slots := make(map[string]*slot, len(m.slots))
	for g, sl := range m.slots {
		slots[g] = sl
	}
	m.mu.Unlock()

	for g, sl := range slots {
		if err := sl.sem.Acquire(ctx, 1); err != nil {
			m.log.Warn().Str("group", g).Msg("session still busy at shutdown, closing anyway")
		} else {
			defer sl.sem.Release(1)
		}

		m.mu.Lock()
		sess := sl.sess
		m.mu.Unlock()
		if sess != nil {
			m.drop(g, sess, models.StatusClosed)
		}
	}

	if err := m.launcher.Close(); err != nil {
		return fmt.Errorf("close launcher: %w", err)
	}
	m.log.Info().Int("groups", len(slots)).Msg("all sessions closed")
	return nil
}
