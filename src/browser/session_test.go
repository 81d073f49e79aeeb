package browser

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nepse-observer/src/helpers"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChrome stands in for the exec allocator.
type fakeChrome struct {
	mu       sync.Mutex
	launched []launchOptions
	lost     chan struct{}
	fail     error
	healthy  atomic.Bool
}

func (f *fakeChrome) launch(o launchOptions, _ *logger.Logger) (context.Context, context.CancelFunc, <-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, o)
	if f.fail != nil {
		return nil, nil, nil, f.fail
	}
	f.lost = make(chan struct{})
	f.healthy.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, cancel, f.lost, nil
}

func (f *fakeChrome) probe(ctx, browserCtx context.Context) error {
	if browserCtx.Err() != nil || !f.healthy.Load() {
		return errors.New("target closed")
	}
	return nil
}

func (f *fakeChrome) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launched)
}

func newTestManager(t *testing.T, cfg models.MBrowserConfig) (*SessionManager, *fakeChrome) {
	t.Helper()
	fc := &fakeChrome{}
	m := NewSessionManager(cfg, logger.NewLogger(nil, "BrowserTest"))
	m.launch = fc.launch
	m.probe = fc.probe
	t.Cleanup(m.Release)
	return m, fc
}

// -----------------------------------------------------------------------------

func TestAcquireIsIdempotent(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{Headless: true})

	h1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, fc.count())
	assert.True(t, fc.launched[0].Headless)
	assert.DirExists(t, fc.launched[0].ProfileDir)
}

func TestReleaseRemovesProfileAndIsRepeatable(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{})

	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	dir := fc.launched[0].ProfileDir

	m.Release()
	m.Release()

	assert.False(t, m.Active())
	assert.NoDirExists(t, dir)
	assert.Error(t, h.ctx.Err())
}

func TestUnhealthyBrowserIsRelaunched(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	first := fc.launched[0].ProfileDir

	fc.healthy.Store(false)
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, fc.count())
	assert.NoDirExists(t, first)
	assert.NotEqual(t, first, fc.launched[1].ProfileDir)
}

func TestLostConnectionResetsSession(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	dir := fc.launched[0].ProfileDir

	close(fc.lost)
	assert.Eventually(t, func() bool { return !m.Active() }, time.Second, 5*time.Millisecond)
	assert.NoDirExists(t, dir)

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fc.count())
}

func TestLaunchFailureIsLaunchError(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{Proxies: []string{"10.0.0.1:8080", "10.0.0.2:8080"}})
	fc.fail = errors.New("exec: \"google-chrome\": executable file not found in $PATH")

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, helpers.IsLaunch(err))
	assert.False(t, helpers.IsRetryable(err))
	assert.False(t, m.Active())

	_, statErr := os.Stat(fc.launched[0].ProfileDir)
	assert.True(t, os.IsNotExist(statErr))

	proxy, _ := m.ProxyManager.GetCurrentProxy()
	assert.Equal(t, "http://10.0.0.2:8080", proxy)
	assert.Equal(t, "http://10.0.0.1:8080", fc.launched[0].Proxy)
}

func TestLaunchUsesConfiguredOptions(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{
		ExecPath:             "/opt/chrome/chrome",
		NoSandbox:            true,
		UserAgent:            "nepse-test",
		LaunchTimeoutSeconds: 7,
	})

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	o := fc.launched[0]
	assert.Equal(t, "/opt/chrome/chrome", o.ExecPath)
	assert.True(t, o.NoSandbox)
	assert.Equal(t, "nepse-test", o.UserAgent)
	assert.Equal(t, 7*time.Second, o.Timeout)
}

func TestWithBrowserIsExclusive(t *testing.T) {
	m, fc := newTestManager(t, models.MBrowserConfig{})

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithBrowser(context.Background(), func(ctx context.Context, h *Handle) error {
				n := inside.Add(1)
				for {
					old := maxSeen.Load()
					if n <= old || maxSeen.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 1, fc.count())
}

func TestWithBrowserHonoursContext(t *testing.T) {
	m, _ := newTestManager(t, models.MBrowserConfig{})

	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = m.WithBrowser(context.Background(), func(context.Context, *Handle) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.WithBrowser(ctx, func(context.Context, *Handle) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

// -----------------------------------------------------------------------------

func TestShouldBlock(t *testing.T) {
	assert.True(t, shouldBlock(network.ResourceTypeImage, false))
	assert.True(t, shouldBlock(network.ResourceTypeFont, false))
	assert.True(t, shouldBlock(network.ResourceTypeMedia, false))
	assert.False(t, shouldBlock(network.ResourceTypeStylesheet, false))
	assert.True(t, shouldBlock(network.ResourceTypeStylesheet, true))
	assert.False(t, shouldBlock(network.ResourceTypeXHR, true))
	assert.False(t, shouldBlock(network.ResourceTypeDocument, true))
}

func TestAllocatorOptionsOnlyAddsWhatIsSet(t *testing.T) {
	base := len(allocatorOptions(launchOptions{ProfileDir: "/tmp/p"}))
	full := len(allocatorOptions(launchOptions{
		ProfileDir: "/tmp/p", ExecPath: "/bin/chrome", NoSandbox: true, Proxy: "http://p:1", UserAgent: "ua",
	}))
	assert.Equal(t, base+4, full)
}
