// Package browser owns the Chrome process domwatch mirrors pages from:
// launch or remote connect through Rod, stealth tabs, resource blocking,
// an Xvfb display for headful mode, and periodic recycling.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("browser: manager closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local one.
	RemoteURL string
	// MemoryLimit in bytes of JS heap before a recycle. Default: 1GB.
	MemoryLimit int64
	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration
	// ResourceBlocking lists request types never loaded: images, fonts,
	// media, stylesheets, or any CDP resource type.
	ResourceBlocking []string
	// Mode is LevelHeadless or LevelHeadful. Default: LevelHeadless.
	Mode StealthLevel
	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Mode == LevelHTTP {
		c.Mode = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager starts Chrome lazily on first use and restarts it on recycle.
// Tabs die with the process; listeners registered with OnRecycle reopen
// theirs.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	browser   *rod.Browser
	lnch      *launcher.Launcher
	xvfb      *display
	startedAt time.Time
	closed    bool
	listeners map[int]func()
	nextID    int
	monitor   context.CancelFunc
}

// NewManager creates a Manager. Chrome is not started until Browser is
// first called.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, listeners: make(map[int]func())}
}

// Browser returns the running browser, starting it if needed.
func (m *Manager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	if err := m.launchLocked(); err != nil {
		return nil, err
	}
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.monitor = cancel
	go m.monitorLoop(mctx)
	return m.browser, nil
}

// OnRecycle registers fn to run after Chrome has been restarted. The
// returned function unregisters it.
func (m *Manager) OnRecycle(fn func()) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Recycle restarts Chrome and notifies listeners.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startedAt))
	m.cleanupLocked()
	if err := m.launchLocked(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.monitor != nil {
		m.monitor()
	}
	m.cleanupLocked()
	return nil
}

func (m *Manager) launchLocked() error {
	log := m.cfg.Logger

	if m.cfg.Mode == LevelHeadful && m.cfg.RemoteURL == "" {
		x, err := startDisplay(m.cfg.XvfbDisplay, log)
		if err != nil {
			return fmt.Errorf("browser: xvfb: %w", err)
		}
		m.xvfb = x
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(m.cfg.Mode != LevelHeadful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == LevelHeadful {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched chrome", "mode", m.cfg.Mode)
	} else {
		log.Info("browser: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	m.startedAt = time.Now()
	return nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.xvfb != nil {
		m.xvfb.stop()
		m.xvfb = nil
	}
}

func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		b, started := m.browser, m.startedAt
		m.mu.Unlock()
		if b == nil {
			continue
		}

		reason := ""
		if time.Since(started) > m.cfg.RecycleInterval {
			reason = "interval"
		} else if used, err := heapUsage(b); err == nil && used > m.cfg.MemoryLimit {
			reason = "memory"
		}
		if reason == "" {
			continue
		}
		m.cfg.Logger.Info("browser: recycle triggered", "reason", reason)
		if err := m.Recycle(); err != nil && !errors.Is(err, ErrClosed) {
			m.cfg.Logger.Error("browser: recycle failed", "error", err)
		}
	}
}

// heapUsage sums the JS heap of every open tab.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
