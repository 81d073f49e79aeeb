package browser

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultLaunchTimeout = 30 * time.Second
	probeTimeout         = 5 * time.Second
	profilePattern       = "nepse-profile-*"
)

// launchOptions is everything a single browser launch needs.
type launchOptions struct {
	ExecPath   string
	ProfileDir string
	Headless   bool
	NoSandbox  bool
	Proxy      string
	UserAgent  string
	Timeout    time.Duration
}

// launchFunc starts a browser and returns its root context, a teardown func
// and a channel closed when the connection to the browser drops.
type launchFunc func(opts launchOptions, log *logger.Logger) (context.Context, context.CancelFunc, <-chan struct{}, error)

// probeFunc checks that a running browser still answers.
type probeFunc func(ctx, browserCtx context.Context) error

// session is one launched browser process.
type session struct {
	handle     *Handle
	profileDir string
	cancel     context.CancelFunc
	done       chan struct{}
}

// -----------------------------------------------------------------------------

// SessionManager owns the single shared headless browser. Acquire is
// idempotent, Release is safe to repeat, and WithBrowser serialises all
// browser users of the process.
type SessionManager struct {
	Config       models.MBrowserConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger

	mu      sync.Mutex
	current *session
	exclu   *semaphore.Weighted
	limiter *rate.Limiter

	launch   launchFunc
	probe    probeFunc
	launches int
}

// -----------------------------------------------------------------------------

func NewSessionManager(cfg models.MBrowserConfig, log *logger.Logger) *SessionManager {
	limit := rate.Inf
	if cfg.NavigationsPerSecond > 0 {
		limit = rate.Limit(cfg.NavigationsPerSecond)
	}
	return &SessionManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(cfg.Proxies, cfg.UserAgent, log),
		Logger:       log,
		exclu:        semaphore.NewWeighted(1),
		limiter:      rate.NewLimiter(limit, 1),
		launch:       launchChrome,
		probe:        probeChrome,
	}
}

// -----------------------------------------------------------------------------

// Acquire returns the live handle when it answers a health probe, otherwise
// it launches a new browser into a fresh temporary profile.
func (m *SessionManager) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := m.probe(pctx, s.handle.ctx)
		cancel()
		if err == nil {
			return s.handle, nil
		}
		m.Logger.Warning("Browser health probe failed, relaunching: %v", err)
		m.teardownLocked()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.launchLocked()
}

// -----------------------------------------------------------------------------

func (m *SessionManager) launchLocked() (*Handle, error) {
	dir, err := os.MkdirTemp("", profilePattern)
	if err != nil {
		return nil, helpers.NewLaunchError(err)
	}

	proxy, _ := m.ProxyManager.GetCurrentProxy()
	timeout := defaultLaunchTimeout
	if m.Config.LaunchTimeoutSeconds > 0 {
		timeout = time.Duration(m.Config.LaunchTimeoutSeconds) * time.Second
	}
	opts := launchOptions{
		ExecPath:   m.Config.ExecPath,
		ProfileDir: dir,
		Headless:   m.Config.Headless,
		NoSandbox:  m.Config.NoSandbox,
		Proxy:      proxy,
		UserAgent:  m.ProxyManager.GetUserAgent(),
		Timeout:    timeout,
	}

	browserCtx, cancel, lost, err := m.launch(opts, m.Logger)
	if err != nil {
		_ = os.RemoveAll(dir)
		// next launch goes out through a different proxy
		m.ProxyManager.RotateProxy()
		return nil, helpers.NewLaunchError(err)
	}
	m.launches++

	s := &session{
		handle: &Handle{
			ctx:              browserCtx,
			limiter:          m.limiter,
			blockStylesheets: m.Config.BlockStylesheets,
			logger:           m.Logger,
		},
		profileDir: dir,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.current = s
	go m.watch(s, lost)

	m.Logger.Info("Browser launched (profile %s, proxy %q)", dir, proxy)
	return s.handle, nil
}

// -----------------------------------------------------------------------------

// watch resets state when the browser connection drops so the next Acquire
// relaunches instead of returning a dead handle.
func (m *SessionManager) watch(s *session, lost <-chan struct{}) {
	select {
	case <-s.done:
		return
	case <-lost:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.Logger.Warning("Browser connection lost, session reset")
		m.teardownLocked()
	}
}

// -----------------------------------------------------------------------------

// Release closes the browser and removes its temporary profile.
func (m *SessionManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *SessionManager) teardownLocked() {
	s := m.current
	if s == nil {
		return
	}
	m.current = nil
	close(s.done)
	s.cancel()
	if err := os.RemoveAll(s.profileDir); err != nil {
		m.Logger.Warning("Failed to remove browser profile %s: %v", s.profileDir, err)
	}
	m.Logger.Info("Browser released")
}

// -----------------------------------------------------------------------------

// WithBrowser runs fn while holding exclusive use of the browser.
func (m *SessionManager) WithBrowser(ctx context.Context, fn func(ctx context.Context, h *Handle) error) error {
	if err := m.exclu.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.exclu.Release(1)

	h, err := m.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, h)
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// the tab died under us, most likely with the browser
		m.Logger.Warning("Browser work cancelled from the browser side")
	}
	return err
}

// -----------------------------------------------------------------------------

// Active reports whether a browser is currently running.
func (m *SessionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}
