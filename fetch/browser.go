package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Browser fetches pages through headless Chrome and returns the rendered
// DOM, for targets whose watched fragment only exists after JavaScript runs.
// The Chrome process is launched lazily on first fetch and reused.
type Browser struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates a Browser fetcher. Call Close to shut Chrome down.
func NewBrowser(cfg Config, logger *slog.Logger) *Browser {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{config: cfg, logger: logger}
}

// Fetch navigates to url in a fresh stealth tab, waits for the load event,
// and returns the serialized DOM.
func (b *Browser) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !b.config.AllowPrivate {
		if err := ValidateURL(url); err != nil {
			return nil, err
		}
	}

	br, err := b.ensureBrowser()
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	page, err := stealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("fetch: create tab: %w", err)
	}
	defer page.Close()
	page = page.Context(fetchCtx)

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("fetch: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		// Load-event timeouts are common on pages with long-polling assets;
		// the DOM is usually complete enough to extract from.
		b.logger.Warn("fetch: wait load", "url", url, "error", err)
	}

	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("fetch: serialize dom: %w", err)
	}
	dom := res.Value.Str()
	if int64(len(dom)) > b.config.MaxBytes {
		return nil, fmt.Errorf("fetch: body exceeds %d bytes", b.config.MaxBytes)
	}
	return []byte(dom), nil
}

// ensureBrowser launches and connects Chrome once.
func (b *Browser) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("fetch: launch chrome: %w", err)
	}

	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("fetch: connect chrome: %w", err)
	}

	b.lnch = l
	b.browser = br
	b.logger.Info("fetch: browser launched", "control_url", u)
	return br, nil
}

// Close shuts down the Chrome process if one was launched.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	if b.lnch != nil {
		b.lnch.Kill()
	}
	b.browser = nil
	b.lnch = nil
	return err
}
