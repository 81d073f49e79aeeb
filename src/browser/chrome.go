package browser

import (
	"context"
	"time"

	"nepse-observer/src/logger"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// -----------------------------------------------------------------------------

func allocatorOptions(o launchOptions) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserDataDir(o.ProfileDir),
		chromedp.WindowSize(1366, 900),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if o.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(o.Proxy))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	return opts
}

// -----------------------------------------------------------------------------

// launchChrome starts Chrome through an exec allocator. The first Run gets the
// browser's own context because cancelling it would kill the process.
func launchChrome(o launchOptions, log *logger.Logger) (context.Context, context.CancelFunc, <-chan struct{}, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(o)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { log.Debug(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...any) { log.Debug(format, args...) }),
	)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(o.Timeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, nil, nil, err
		}
	case <-timer.C:
		cancel()
		return nil, nil, nil, context.DeadlineExceeded
	}

	return browserCtx, cancel, chromedp.FromContext(browserCtx).Browser.LostConnection, nil
}

// -----------------------------------------------------------------------------

func probeChrome(ctx, browserCtx context.Context) error {
	pctx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(pctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	}))
}
