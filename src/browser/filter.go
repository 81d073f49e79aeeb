package browser

import (
	"context"
	"errors"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// shouldBlock decides which resource types never leave the browser.
func shouldBlock(t network.ResourceType, blockStylesheets bool) bool {
	switch t {
	case network.ResourceTypeImage, network.ResourceTypeFont, network.ResourceTypeMedia:
		return true
	case network.ResourceTypeStylesheet:
		return blockStylesheets
	}
	return false
}

// -----------------------------------------------------------------------------

// filterRequest answers one paused request. It runs off the event goroutine
// because CDP calls block until the browser replies.
func (h *Handle) filterRequest(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	ectx := cdp.WithExecutor(tabCtx, c.Target)

	var err error
	if shouldBlock(ev.ResourceType, h.blockStylesheets) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ectx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("Request filter %s: %v", ev.Request.URL, err)
	}
}
