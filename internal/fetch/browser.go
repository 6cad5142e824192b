// Package fetch - browser.go renders catalog pages in headless Chrome.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserSource renders pages in a headless browser. Requires Chrome or
// Chromium on the system.
type BrowserSource struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewBrowserSource creates a BrowserSource with a per-page timeout.
func NewBrowserSource(timeout time.Duration, logger *slog.Logger) *BrowserSource {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{Timeout: timeout, Logger: logger.With("component", "browser")}
}

// Get renders urlStr and returns the normalized page HTML.
func (b *BrowserSource) Get(ctx context.Context, urlStr string) (string, error) {
	b.Logger.Debug("starting headless browser", "url", urlStr)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body"),
		// the listing table is the last element the catalog renders
		chromedp.WaitReady("#line_actif", chromedp.ByID),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &TransportError{URL: urlStr, Message: "browser rendering failed", Cause: err}
	}

	b.Logger.Debug("rendered page", "url", urlStr, "bytes", len(html))
	return Normalize(html), nil
}

var _ PageSource = (*BrowserSource)(nil)
