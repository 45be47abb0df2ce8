package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab is a navigated page ready to be mirrored.
type Tab struct {
	Page *rod.Page
	URL  string
}

// OpenTab creates a stealth tab, applies resource blocking, navigates to
// pageURL and waits for the load event.
func (m *Manager) OpenTab(ctx context.Context, pageURL string) (*Tab, error) {
	b, err := m.Browser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		blockResources(page, newBlocklist(m.cfg.ResourceBlocking))
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load", "url", pageURL, "error", err)
	}
	return &Tab{Page: page, URL: pageURL}, nil
}

// OuterHTML serialises the live document.
func (t *Tab) OuterHTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: outer html: %w", err)
	}
	return res.Value.Str(), nil
}

// Info returns the tab's current URL after redirects and client routing.
func (t *Tab) Info() (string, error) {
	info, err := t.Page.Info()
	if err != nil {
		return "", fmt.Errorf("browser: target info: %w", err)
	}
	return info.URL, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}
