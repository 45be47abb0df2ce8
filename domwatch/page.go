package domwatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsel/dom"
	"github.com/hazyhaar/domsel/domwatch/internal/browser"
	"github.com/hazyhaar/domsel/domwatch/internal/config"
	"github.com/hazyhaar/domsel/domwatch/internal/mirror"
	"github.com/hazyhaar/domsel/domwatch/internal/nav"
	"github.com/hazyhaar/domsel/domwatch/internal/recorder"
	"github.com/hazyhaar/domsel/domwatch/mutation"
	"github.com/hazyhaar/domsel/dynsel"
	"github.com/hazyhaar/domsel/selector"
)

// PageStatus describes an observed page.
type PageStatus struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Level     string    `json:"level"`
	Rules     int       `json:"rules"`
	Record    bool      `json:"record"`
	Matches   int64     `json:"matches"`
	StartedAt time.Time `json:"started_at"`
}

// page is one observed document with its subscriptions.
type page struct {
	w      *Watcher
	cfg    config.PageConfig
	nav    *nav.Tracker // current URL, after redirects and navigations
	follow *nav.Follower
	level  browser.StealthLevel
	doc    *dom.Document
	tab    *browser.Tab
	mirror *mirror.Session
	rec    *recorder.Recorder
	logger *slog.Logger

	// subscribed is set on the loop once the rules are attached.
	subscribed bool
	stopping   atomic.Bool
	resnap     chan struct{}
	unnav      func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cancelMu sync.Mutex
	cancels  []dynsel.CancelFunc

	queueMu sync.Mutex
	queue   []found
	wake    chan struct{}

	snapshotRef atomic.Value // string
	matches     atomic.Int64
	startedAt   time.Time
}

// found is a delivered element captured on the document loop, rendered
// later on the emitter goroutine.
type found struct {
	rule   config.RuleConfig
	subID  string
	seq    uint64
	source mutation.Source
	xpath  string
	tag    string
	outer  string
}

func (w *Watcher) openPage(ctx context.Context, pc config.PageConfig) (*page, error) {
	level, auto, err := browser.ParseLevel(pc.StealthLevel)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(w.base)
	p := &page{
		w:         w,
		cfg:       pc,
		nav:       nav.NewTracker(pc.URL, ""),
		level:     level,
		logger:    w.logger.With("page_id", pc.ID),
		ctx:       pctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		resnap:    make(chan struct{}, 1),
		startedAt: time.Now(),
	}
	p.snapshotRef.Store("")

	if err := p.acquire(ctx, auto); err != nil {
		cancel()
		return nil, err
	}

	p.unnav = p.nav.OnChange(p.onNavigate)

	p.wg.Add(1)
	go p.emitLoop()

	if err := p.snapshot(ctx); err != nil {
		p.logger.Warn("domwatch: initial snapshot failed", "error", err)
	}

	if pc.Record {
		p.rec = recorder.New(p.doc, recorder.Options{
			PageID:      pc.ID,
			PageURL:     p.nav.URL,
			IDs:         w.ids,
			Window:      w.cfg.Debounce.Window,
			MaxBuffer:   w.cfg.Debounce.MaxBuffer,
			Emit:        w.sinks.Send,
			SnapshotRef: p.lastSnapshot,
			Logger:      p.logger,
		})
		if err := p.rec.Start(pctx); err != nil {
			p.rec = nil
			p.stop()
			return nil, fmt.Errorf("domwatch: %s: %w", pc.ID, err)
		}
	}

	var subErr error
	err = p.doc.Do(ctx, func() {
		subErr = p.subscribe()
		p.subscribed = subErr == nil
	})
	if err == nil {
		err = subErr
	}
	if err != nil {
		p.stop()
		return nil, fmt.Errorf("domwatch: %s: subscribe: %w", pc.ID, err)
	}

	p.wg.Add(1)
	go p.snapshotLoop()
	return p, nil
}

// acquire fills p.doc: from one GET for level 0 (escalating in auto mode
// when the HTML looks like an application shell), else from a Chrome tab.
func (p *page) acquire(ctx context.Context, auto bool) error {
	if p.level == browser.LevelHTTP {
		res, err := p.w.fetch.Fetch(ctx, p.cfg.URL)
		switch {
		case err == nil && (res.Sufficient || !auto):
			doc, err := dom.Parse(bytes.NewReader(res.Body), dom.WithLogger(p.logger))
			if err != nil {
				return err
			}
			p.doc = doc
			p.nav = nav.NewTracker(res.URL, "")
			return nil
		case err != nil && !auto:
			return err
		case err != nil:
			p.logger.Warn("domwatch: http fetch failed, escalating to browser", "error", err)
		default:
			p.logger.Info("domwatch: static html insufficient, escalating to browser")
		}
		p.level = browser.LevelHeadless
	}

	tab, err := p.w.mgr.OpenTab(ctx, p.cfg.URL)
	if err != nil {
		return err
	}
	doc := dom.New(dom.Loading(), dom.WithLogger(p.logger))
	p.doc = doc
	sess, err := mirror.Attach(p.ctx, tab.Page, doc, mirror.Options{
		Logger:  p.logger,
		OnReset: p.onReset,
	})
	if err != nil {
		p.doc = nil
		doc.Close()
		tab.Close()
		return err
	}
	url := p.cfg.URL
	if u, err := tab.Info(); err == nil && u != "" {
		url = u
	}
	p.nav = nav.NewTracker(url, tab.Page.FrameID)
	follow, err := nav.Follow(p.ctx, tab.Page, p.nav)
	if err != nil {
		p.logger.Warn("domwatch: navigation tracking unavailable", "error", err)
	}
	p.tab, p.mirror, p.follow = tab, sess, follow
	return nil
}

// subscribe runs on the document loop. With a root selector the rules wait
// for the root element, which may itself be inserted later.
func (p *page) subscribe() error {
	if p.cfg.Root == "" {
		root := p.doc.Body()
		if root == nil {
			root = p.doc.Root()
		}
		return p.subscribeRules(root)
	}

	rootSel, err := selector.Compile(p.cfg.Root)
	if err != nil {
		return err
	}
	cancel, err := dynsel.ObserveOnce(p.doc, p.doc.Root(), rootSel, func(root *html.Node) {
		if err := p.subscribeRules(root); err != nil {
			p.logger.Error("domwatch: subscribe rules under root failed", "error", err)
		}
	}, dynsel.WithID("sub_"+p.w.ids()), dynsel.WithLogger(p.logger))
	if err != nil {
		return err
	}
	p.addCancel(cancel)
	return nil
}

func (p *page) subscribeRules(root *html.Node) error {
	for _, r := range p.cfg.Rules {
		if err := p.subscribeRule(root, r); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	return nil
}

func (p *page) subscribeRule(root *html.Node, rule config.RuleConfig) error {
	m, err := selector.Compile(rule.Selector)
	if err != nil {
		return err
	}
	subID := "sub_" + p.w.ids()
	scanning := true
	var seq uint64

	deliver := func(el *html.Node) {
		seq++
		src := mutation.SourceFeed
		if scanning {
			src = mutation.SourceScan
		}
		p.push(found{
			rule:   rule,
			subID:  subID,
			seq:    seq,
			source: src,
			xpath:  dom.XPath(el),
			tag:    strings.ToLower(el.Data),
			outer:  dom.OuterHTML(el),
		})
	}

	opts := []dynsel.Option{dynsel.WithID(subID), dynsel.WithLogger(p.logger)}
	var cancel dynsel.CancelFunc
	if rule.Once {
		cancel, err = dynsel.ObserveOnce(p.doc, root, m, deliver, opts...)
	} else {
		cancel, err = dynsel.Observe(p.doc, root, m, func(el *html.Node, _ dynsel.CancelFunc) {
			deliver(el)
		}, opts...)
	}
	scanning = false
	if err != nil {
		return err
	}
	p.addCancel(cancel)
	return nil
}

func (p *page) addCancel(c dynsel.CancelFunc) {
	p.cancelMu.Lock()
	p.cancels = append(p.cancels, c)
	p.cancelMu.Unlock()
}

// push runs on the document loop and must not block it.
func (p *page) push(f found) {
	p.queueMu.Lock()
	p.queue = append(p.queue, f)
	p.queueMu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *page) emitLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			p.emit(context.WithoutCancel(p.ctx))
			return
		case <-p.wake:
			p.emit(p.ctx)
		}
	}
}

func (p *page) emit(ctx context.Context) {
	p.queueMu.Lock()
	batch := p.queue
	p.queue = nil
	p.queueMu.Unlock()

	for _, f := range batch {
		pageURL := p.nav.URL()
		out, err := p.w.render.Render(f.outer, f.rule.Format, pageURL, f.rule.Sanitize)
		if err != nil {
			p.logger.Warn("domwatch: render failed", "rule", f.rule.Name, "xpath", f.xpath, "error", err)
		}
		m := mutation.Match{
			ID:             p.w.ids(),
			SubscriptionID: f.subID,
			PageID:         p.cfg.ID,
			PageURL:        pageURL,
			Rule:           f.rule.Name,
			Selector:       f.rule.Selector,
			Once:           f.rule.Once,
			XPath:          f.xpath,
			Tag:            f.tag,
			HTML:           out.HTML,
			Markdown:       out.Markdown,
			Source:         f.source,
			Seq:            f.seq,
			Timestamp:      time.Now().UnixMilli(),
		}
		p.matches.Add(1)
		if err := p.w.sinks.SendMatch(ctx, m); err != nil {
			p.logger.Warn("domwatch: send match failed", "rule", f.rule.Name, "error", err)
		}
	}
}

// snapshot serialises the document on its loop and emits it.
func (p *page) snapshot(ctx context.Context) error {
	var buf bytes.Buffer
	var renderErr error
	if err := p.doc.Do(ctx, func() { renderErr = p.doc.Render(&buf) }); err != nil {
		return err
	}
	if renderErr != nil {
		return renderErr
	}
	body := buf.Bytes()
	snap := mutation.Snapshot{
		ID:        p.w.ids(),
		PageURL:   p.nav.URL(),
		PageID:    p.cfg.ID,
		HTML:      body,
		HTMLHash:  mutation.HashHTML(body),
		Timestamp: time.Now().UnixMilli(),
	}
	p.snapshotRef.Store(snap.ID)
	return p.w.sinks.SendSnapshot(ctx, snap)
}

func (p *page) snapshotLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.resnap:
		}
		if err := p.snapshot(p.ctx); err != nil && p.ctx.Err() == nil {
			p.logger.Warn("domwatch: snapshot failed", "error", err)
		}
	}
}

// requestSnapshot asks snapshotLoop for a snapshot without waiting. Safe
// on the loop.
func (p *page) requestSnapshot() {
	select {
	case p.resnap <- struct{}{}:
	default:
	}
}

// onReset runs on the loop after the whole document was replaced. The rule
// subscriptions hang off detached nodes, so they are rebuilt on the new
// tree.
func (p *page) onReset() {
	if !p.subscribed || p.stopping.Load() {
		return
	}
	p.cancelSubscriptions()
	if err := p.subscribe(); err != nil {
		p.logger.Error("domwatch: resubscribe after document reset failed", "error", err)
		return
	}
	p.logger.Info("domwatch: document reset, rules resubscribed", "url", p.nav.URL())
	p.requestSnapshot()
}

// onNavigate follows a URL change of a live page. Later matches and
// batches carry the new URL.
func (p *page) onNavigate(url string, cause nav.Cause) {
	if p.stopping.Load() {
		return
	}
	p.logger.Info("domwatch: page navigated", "url", url, "cause", cause)
	p.requestSnapshot()
}

func (p *page) cancelSubscriptions() {
	p.cancelMu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.cancelMu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (p *page) lastSnapshot() string {
	s, _ := p.snapshotRef.Load().(string)
	return s
}

// stop cancels subscriptions first so nothing new is delivered, then
// flushes the recorder and the emitter before releasing the document.
func (p *page) stop() {
	p.stopping.Store(true)
	p.cancelSubscriptions()
	if p.unnav != nil {
		p.unnav()
	}
	if p.follow != nil {
		p.follow.Stop()
	}

	if p.rec != nil {
		p.rec.Stop()
	}
	if p.mirror != nil {
		p.mirror.Stop()
	}
	if p.tab != nil {
		if err := p.tab.Close(); err != nil {
			p.logger.Debug("domwatch: close tab", "error", err)
		}
	}
	// Let delivered elements already on the loop reach the queue.
	p.doc.Do(context.Background(), func() {})
	p.cancel()
	p.wg.Wait()
	p.doc.Close()
}

func (p *page) status() PageStatus {
	return PageStatus{
		ID:        p.cfg.ID,
		URL:       p.nav.URL(),
		Level:     p.level.String(),
		Rules:     len(p.cfg.Rules),
		Record:    p.cfg.Record,
		Matches:   p.matches.Load(),
		StartedAt: p.startedAt,
	}
}
