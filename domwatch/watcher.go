// Package domwatch watches web pages for elements matching CSS rules and
// reports every matching element once, whether it was present when the page
// was opened or inserted later by the page's scripts.
//
// Pages are acquired by a plain HTTP GET when the static HTML is enough, or
// mirrored from a live Chrome tab otherwise. Each rule is a dynsel
// subscription on the page's document; delivered elements are rendered and
// emitted to sinks (stdout, webhook, SQLite ledger, in-process callback).
package domwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"sync"

	"github.com/hazyhaar/domsel/domwatch/internal/browser"
	"github.com/hazyhaar/domsel/domwatch/internal/config"
	"github.com/hazyhaar/domsel/domwatch/internal/fetcher"
	"github.com/hazyhaar/domsel/domwatch/internal/render"
	"github.com/hazyhaar/domsel/domwatch/internal/sink"
	"github.com/hazyhaar/domsel/idgen"
)

var (
	ErrPageExists  = errors.New("domwatch: page already observed")
	ErrUnknownPage = errors.New("domwatch: unknown page")
	ErrStopped     = errors.New("domwatch: watcher stopped")
	ErrInvalidPage = errors.New("domwatch: invalid page")
)

// Watcher owns the browser, the observed pages and the sinks.
type Watcher struct {
	cfg     *config.Config
	mgr     *browser.Manager
	fetch   *fetcher.Fetcher
	render  *render.Renderer
	sinks   *sink.Router
	ids     idgen.Generator
	logger  *slog.Logger
	base    context.Context
	cancel  context.CancelFunc
	unhook  func()
	mu      sync.Mutex
	pages   map[string]*page
	stopped bool
}

type options struct {
	logger *slog.Logger
	sinks  []sink.Sink
	client *http.Client
	ids    idgen.Generator
}

// Option configures a Watcher.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSinks sets the output sinks. Default: none, matches are dropped.
func WithSinks(s ...Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// WithHTTPClient replaces the client used for HTTP acquisition.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithIDGenerator replaces the generator for match, batch, snapshot and
// subscription IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) { o.ids = g }
}

// New creates a Watcher. Chrome is only launched when a page needs it.
func New(cfg *Config, opts ...Option) *Watcher {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.ids == nil {
		o.ids = idgen.Default
	}
	if cfg == nil {
		cfg = &Config{}
	}

	mode, err := browser.ParseMode(cfg.Browser.Stealth)
	if err != nil {
		o.logger.Warn("domwatch: falling back to headless", "error", err)
		mode = browser.LevelHeadless
	}

	fopts := []fetcher.Option{fetcher.WithLogger(o.logger)}
	if o.client != nil {
		fopts = append(fopts, fetcher.WithClient(o.client))
	}

	base, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Mode:             mode,
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			Logger:           o.logger,
		}),
		fetch:  fetcher.New(fopts...),
		render: render.New(),
		sinks:  sink.NewRouter(o.logger, o.sinks...),
		ids:    o.ids,
		logger: o.logger,
		base:   base,
		cancel: cancel,
		pages:  make(map[string]*page),
	}
	w.unhook = w.mgr.OnRecycle(w.reopenBrowserPages)
	return w
}

// Start observes every page of the configuration. Pages that fail are
// logged and skipped; the error joins their failures.
func (w *Watcher) Start(ctx context.Context) error {
	var errs []error
	for _, pc := range w.cfg.Pages {
		if err := w.ObservePage(ctx, pc); err != nil {
			w.logger.Error("domwatch: observe page failed", "page_id", pc.ID, "url", pc.URL, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObservePage acquires the page and subscribes its rules. ctx bounds the
// acquisition only; the page then runs until StopPage or Stop.
func (w *Watcher) ObservePage(ctx context.Context, pc PageConfig) error {
	pc.ApplyDefaults()
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPage, err)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if _, ok := w.pages[pc.ID]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageExists, pc.ID)
	}
	// Reserve the ID while acquiring outside the lock.
	w.pages[pc.ID] = nil
	w.mu.Unlock()

	p, err := w.openPage(ctx, pc)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil || w.stopped {
		delete(w.pages, pc.ID)
		if err == nil {
			p.stop()
			err = ErrStopped
		}
		return err
	}
	w.pages[pc.ID] = p
	w.logger.Info("domwatch: observing page",
		"page_id", pc.ID, "url", pc.URL, "level", p.level, "rules", len(pc.Rules))
	return nil
}

// StopPage cancels the page's subscriptions and releases its document.
func (w *Watcher) StopPage(id string) error {
	w.mu.Lock()
	p, ok := w.pages[id]
	if !ok || p == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	delete(w.pages, id)
	w.mu.Unlock()

	p.stop()
	w.logger.Info("domwatch: stopped page", "page_id", id)
	return nil
}

// Pages lists the observed pages sorted by ID.
func (w *Watcher) Pages() []PageStatus {
	w.mu.Lock()
	out := make([]PageStatus, 0, len(w.pages))
	for _, p := range w.pages {
		if p != nil {
			out = append(out, p.status())
		}
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload makes the observed set equal to pages: removed or changed pages
// are stopped, new or changed ones are started.
func (w *Watcher) Reload(ctx context.Context, pages []PageConfig) error {
	want := make(map[string]PageConfig, len(pages))
	for _, pc := range pages {
		pc.ApplyDefaults()
		want[pc.ID] = pc
	}

	w.mu.Lock()
	var stale []string
	for id, p := range w.pages {
		if p == nil {
			continue
		}
		if pc, ok := want[id]; !ok || !reflect.DeepEqual(pc, p.cfg) {
			stale = append(stale, id)
		} else {
			delete(want, id)
		}
	}
	w.mu.Unlock()

	for _, id := range stale {
		if err := w.StopPage(id); err != nil && !errors.Is(err, ErrUnknownPage) {
			return err
		}
	}

	var errs []error
	for _, pc := range want {
		if err := w.ObservePage(ctx, pc); err != nil {
			errs = append(errs, err)
		}
	}
	w.logger.Info("domwatch: reloaded", "stopped", len(stale), "started", len(want)-len(errs))
	return errors.Join(errs...)
}

// Stop stops every page, the browser and the sinks.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	pages := w.pages
	w.pages = make(map[string]*page)
	w.mu.Unlock()

	w.unhook()
	for _, p := range pages {
		if p != nil {
			p.stop()
		}
	}
	w.cancel()
	return errors.Join(w.mgr.Close(), w.sinks.Close())
}

// reopenBrowserPages runs after a Chrome recycle: tabs died with the old
// process, so browser-backed pages are opened again.
func (w *Watcher) reopenBrowserPages() {
	w.mu.Lock()
	var cfgs []PageConfig
	for _, p := range w.pages {
		if p != nil && p.tab != nil {
			cfgs = append(cfgs, p.cfg)
		}
	}
	w.mu.Unlock()

	for _, pc := range cfgs {
		if err := w.StopPage(pc.ID); err != nil {
			continue
		}
		if err := w.ObservePage(w.base, pc); err != nil {
			w.logger.Error("domwatch: reopen after recycle failed", "page_id", pc.ID, "error", err)
		}
	}
}
