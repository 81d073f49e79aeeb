package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nepse-observer/src/logger"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// ErrNoResponse is returned when navigation finished without the awaited
// data response.
var ErrNoResponse = errors.New("no matching response")

// Handle is a live browser. Tabs opened from it share its process and
// profile, and every navigation is paced by the session's limiter.
type Handle struct {
	ctx              context.Context
	limiter          *rate.Limiter
	blockStylesheets bool
	logger           *logger.Logger
}

// Tab is one page target with request filtering enabled.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	h      *Handle
}

// -----------------------------------------------------------------------------

// NewTab opens a page. The tab closes when ctx is done or Close is called.
func (h *Handle) NewTab(ctx context.Context) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(h.ctx)

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*fetch.EventRequestPaused); ok {
			go h.filterRequest(tabCtx, e)
		}
	})

	if err := chromedp.Run(tabCtx, fetch.Enable(), network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	return &Tab{
		ctx:    tabCtx,
		cancel: cancel,
		stop:   context.AfterFunc(ctx, cancel),
		h:      h,
	}, nil
}

// -----------------------------------------------------------------------------

func (t *Tab) Close() {
	t.stop()
	t.cancel()
}

// bound derives a context of the tab that also ends with ctx.
func (t *Tab) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if dl, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(t.ctx, dl)
	} else {
		runCtx, cancel = context.WithCancel(t.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// -----------------------------------------------------------------------------

// Run executes actions on the tab under ctx.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := t.bound(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// -----------------------------------------------------------------------------

// Navigate waits for the pacing limiter, then loads url.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.h.limiter.Wait(ctx); err != nil {
		return err
	}
	t.h.logger.Debug("Navigating to %s", url)
	return t.Run(ctx, chromedp.Navigate(url))
}

// -----------------------------------------------------------------------------

// HTML waits for selector to be ready and returns the document markup.
func (t *Tab) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := t.Run(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// -----------------------------------------------------------------------------

// Click clicks the first element matching selector.
func (t *Tab) Click(ctx context.Context, selector string) error {
	return t.Run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// -----------------------------------------------------------------------------

// CaptureResponses navigates to pageURL and collects the bodies of successful
// responses whose URL contains one of patterns, keyed by pattern.
func (t *Tab) CaptureResponses(ctx context.Context, pageURL string, settle time.Duration, patterns ...string) (map[string][]byte, error) {
	return t.Capture(ctx, func(ctx context.Context) error {
		return t.Navigate(ctx, pageURL)
	}, settle, patterns...)
}

// Capture runs trigger and collects the bodies of successful responses whose
// URL contains one of patterns, keyed by pattern. It returns once every
// pattern matched, or settle after the first match, or when ctx ends. Only a
// capture with no match at all is an error.
func (t *Tab) Capture(ctx context.Context, trigger func(ctx context.Context) error, settle time.Duration, patterns ...string) (map[string][]byte, error) {
	runCtx, cancel := t.bound(ctx)
	defer cancel()

	type captured struct {
		pattern string
		body    []byte
		err     error
	}

	var (
		mu      sync.Mutex
		pending = map[network.RequestID]string{}
		seen    = map[string]bool{}
		results = make(chan captured, len(patterns))
	)
	chromedp.ListenTarget(runCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil || e.Response.Status != 200 {
				return
			}
			if p := matchPattern(e.Response.URL, patterns); p != "" {
				mu.Lock()
				if !seen[p] {
					seen[p] = true
					pending[e.RequestID] = p
				}
				mu.Unlock()
			}
		case *network.EventLoadingFinished:
			mu.Lock()
			p, ok := pending[e.RequestID]
			delete(pending, e.RequestID)
			mu.Unlock()
			if !ok {
				return
			}
			id := e.RequestID
			go func() {
				var body []byte
				err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					var err error
					body, err = network.GetResponseBody(id).Do(ctx)
					return err
				}))
				results <- captured{pattern: p, body: body, err: err}
			}()
		}
	})

	if err := trigger(runCtx); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(patterns))
	var (
		settleC <-chan time.Time
		lastErr error
	)
	for len(out) < len(patterns) {
		select {
		case r := <-results:
			if r.err != nil {
				lastErr = r.err
				continue
			}
			out[r.pattern] = r.body
			if settleC == nil {
				timer := time.NewTimer(settle)
				defer timer.Stop()
				settleC = timer.C
			}
		case <-settleC:
			return out, nil
		case <-runCtx.Done():
			if len(out) > 0 {
				return out, nil
			}
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrNoResponse, lastErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrNoResponse, runCtx.Err())
		}
	}
	return out, nil
}

func matchPattern(url string, patterns []string) string {
	for _, p := range patterns {
		if strings.Contains(url, p) {
			return p
		}
	}
	return ""
}

// -----------------------------------------------------------------------------

// Download clicks selector and returns the content of the file the page
// offers. The download directory is removed afterwards.
func (t *Tab) Download(ctx context.Context, selector string) ([]byte, error) {
	runCtx, cancel := t.bound(ctx)
	defer cancel()

	dir, err := os.MkdirTemp("", "nepse-download-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	done := make(chan string, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		if e, ok := ev.(*cdpbrowser.EventDownloadProgress); ok && e.State == cdpbrowser.DownloadProgressStateCompleted {
			select {
			case done <- e.GUID:
			default:
			}
		}
	})

	err = chromedp.Run(runCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return nil, err
	}

	select {
	case guid := <-done:
		return os.ReadFile(filepath.Join(dir, guid))
	case <-runCtx.Done():
		return nil, fmt.Errorf("download did not complete: %w", runCtx.Err())
	}
}
