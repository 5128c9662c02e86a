package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// browserFetcher drives a headless Chrome for pages that need JavaScript.
// The browser is launched once, on first use, and reused by later jobs.
type browserFetcher struct {
	remoteURL string
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func newBrowserFetcher(remoteURL string, timeout time.Duration, logger *slog.Logger) *browserFetcher {
	return &browserFetcher{remoteURL: remoteURL, timeout: timeout, logger: logger}
}

// Fetch navigates to url with a stealth page and returns the outer HTML of
// the selector's element, or the whole document when selector is empty.
func (f *browserFetcher) Fetch(ctx context.Context, url, selector string) (string, error) {
	b, err := f.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("scrape: create page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", fmt.Errorf("scrape: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.logger.Warn("page load wait timed out", "url", url, "error", err)
	}

	if selector != "" {
		el, err := page.Context(navCtx).Element(selector)
		if err != nil {
			return "", fmt.Errorf("scrape: selector %q on %s: %w", selector, url, err)
		}
		html, err := el.HTML()
		if err != nil {
			return "", fmt.Errorf("scrape: read element html: %w", err)
		}
		return html, nil
	}

	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return "", fmt.Errorf("scrape: read page html: %w", err)
	}
	return html, nil
}

func (f *browserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.remoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("scrape: launch browser: %w", err)
		}
		f.lnch = l
		wsURL = u
		f.logger.Info("launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("scrape: connect browser: %w", err)
	}
	f.browser = b
	return b, nil
}

// Close disconnects and kills a locally launched browser.
func (f *browserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	if f.lnch != nil {
		f.lnch.Cleanup()
	}
	f.browser = nil
	return err
}
