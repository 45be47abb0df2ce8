// Package dynsel delivers every element that ever matches a selector inside
// a subtree to a handler, exactly once per element, until cancelled.
//
// A subscription combines a synchronous scan of the elements present when
// Observe is called with a dom.MutationObserver that reports later
// insertions. Both producers push candidates through one delivery funnel
// that drops already-delivered elements and everything after cancellation.
//
// Observe and ObserveOnce must run on the document's loop, like any other
// dom.Document call. The returned CancelFunc may be called from anywhere.
package dynsel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsel/dom"
	"github.com/hazyhaar/domsel/dynsel/internal/weakset"
	"github.com/hazyhaar/domsel/idgen"
	"github.com/hazyhaar/domsel/selector"
)

var (
	ErrNilDocument = errors.New("dynsel: nil document")
	ErrNilRoot     = errors.New("dynsel: nil root")
	ErrNilMatcher  = errors.New("dynsel: nil matcher")
	ErrNilHandler  = errors.New("dynsel: nil handler")
)

// CancelFunc ends a subscription. Idempotent; safe from any goroutine and
// from inside the handler.
type CancelFunc func()

// Handler receives each matching element once, together with the
// subscription's CancelFunc.
type Handler func(el *html.Node, cancel CancelFunc)

type options struct {
	id     string
	logger *slog.Logger
}

// Option configures a subscription.
type Option func(*options)

// WithID names the subscription in logs. Default: a generated sub_ ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets a custom logger. Default: the document's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type subscription struct {
	id      string
	logger  *slog.Logger
	match   selector.Matcher
	handler Handler

	delivered *weakset.Set[html.Node]
	cancelled atomic.Bool
	feed      *dom.MutationObserver
}

// Observe subscribes handler to every element under root matching m. The
// elements already present are delivered before Observe returns; elements
// inserted later, directly or inside an inserted subtree, are delivered by
// the document's change feed.
func Observe(doc *dom.Document, root *html.Node, m selector.Matcher, handler Handler, opts ...Option) (CancelFunc, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	if root == nil {
		return nil, ErrNilRoot
	}
	if m == nil {
		return nil, ErrNilMatcher
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.id == "" {
		o.id = idgen.Subscription()
	}
	if o.logger == nil {
		o.logger = doc.Logger()
	}

	s := &subscription{
		id:        o.id,
		logger:    o.logger,
		handler:   handler,
		delivered: weakset.New[html.Node](),
	}
	s.match = selector.Isolate(m, s.onPredicatePanic)

	// Attach first: the feed only reports insertions made after this point,
	// and the scan below covers everything before it.
	s.feed = doc.NewObserver(s.onBatch)
	if err := s.feed.Observe(root, dom.ObserveOptions{ChildList: true, Subtree: true}); err != nil {
		return nil, fmt.Errorf("dynsel: attach feed: %w", err)
	}

	for _, el := range selector.Query(root, s.match) {
		s.deliver(el)
	}

	return s.cancel, nil
}

// ObserveOnce delivers only the first matching element, scan before feed.
// The subscription is cancelled before handler runs, so a handler that
// inserts more matches cannot fire it again.
func ObserveOnce(doc *dom.Document, root *html.Node, m selector.Matcher, handler func(el *html.Node), opts ...Option) (CancelFunc, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	return Observe(doc, root, m, func(el *html.Node, cancel CancelFunc) {
		cancel()
		handler(el)
	}, opts...)
}

// deliver is the single funnel both producers go through.
func (s *subscription) deliver(el *html.Node) {
	if s.cancelled.Load() {
		return
	}
	if !s.delivered.Add(el) {
		return
	}
	s.handler(el, s.cancel)
}

// onBatch expands every inserted node into the node itself, if it matches,
// plus its matching descendants. Descendants are enumerated on every batch:
// a later record may have grown a node reported earlier, and one batch can
// list an ancestor and its descendant separately, which deliver dedups.
func (s *subscription) onBatch(records []dom.Record) {
	for _, rec := range records {
		for _, n := range rec.Added {
			if s.cancelled.Load() {
				return
			}
			if !selector.Element(n) {
				continue
			}
			if s.match.Match(n) {
				s.deliver(n)
			}
			for _, el := range selector.Query(n, s.match) {
				s.deliver(el)
			}
		}
	}
}

func (s *subscription) cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.feed.Disconnect()
	s.logger.Debug("dynsel: subscription cancelled", "id", s.id)
}

func (s *subscription) onPredicatePanic(n *html.Node, v any) {
	s.logger.Warn("dynsel: predicate panicked, element skipped",
		"id", s.id, "xpath", dom.XPath(n), "panic", v)
}
