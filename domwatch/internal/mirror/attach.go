package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domsel/dom"
)

// Session mirrors one rod page until ctx is done or Stop is called.
type Session struct {
	mirror *Mirror
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures Attach.
type Options struct {
	Logger *slog.Logger
	// OnReset runs on the document loop after a DOM.documentUpdated event
	// reloaded the tree.
	OnReset func()
}

// Attach enables the CDP DOM domain on page, loads the full tree into doc
// and replays DOM events onto it in arrival order.
func Attach(ctx context.Context, page *rod.Page, doc *dom.Document, opts Options) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	p := page.Context(ctx)
	m := New(doc, opts.Logger)
	m.OnReset(opts.OnReset)
	log := m.logger

	if err := (proto.DOMEnable{}).Call(p); err != nil {
		cancel()
		return nil, fmt.Errorf("mirror: enable dom: %w", err)
	}

	apply := func(name string, fn func() error) {
		doc.Post(func() {
			if err := fn(); err != nil {
				log.Warn("mirror: apply event failed", "event", name, "error", err)
			}
		})
	}

	// Subscribe before loading so nothing between the two is lost; the
	// events are consumed only once wait runs, after Load is queued.
	wait := p.EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			apply("childNodeInserted", func() error { return m.Inserted(e) })
		},
		func(e *proto.DOMChildNodeRemoved) {
			apply("childNodeRemoved", func() error { return m.Removed(e) })
		},
		func(e *proto.DOMSetChildNodes) {
			apply("setChildNodes", func() error { return m.SetChildren(e) })
		},
		func(e *proto.DOMAttributeModified) {
			apply("attributeModified", func() error { return m.AttributeModified(e) })
		},
		func(e *proto.DOMAttributeRemoved) {
			apply("attributeRemoved", func() error { return m.AttributeRemoved(e) })
		},
		func(e *proto.DOMCharacterDataModified) {
			apply("characterDataModified", func() error { return m.CharacterDataModified(e) })
		},
		func(*proto.DOMDocumentUpdated) {
			root, err := getDocument(p)
			if err != nil {
				log.Warn("mirror: reload after documentUpdated", "error", err)
				return
			}
			apply("documentUpdated", func() error { return m.Reset(root) })
		},
	)

	root, err := getDocument(p)
	if err != nil {
		cancel()
		return nil, err
	}
	var loadErr error
	err = doc.Do(ctx, func() { loadErr = m.Load(root) })
	if err == nil {
		err = loadErr
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mirror: load: %w", err)
	}

	s := &Session{mirror: m, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		wait()
	}()
	return s, nil
}

// Stop ends event replay and waits for the listener to exit.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// getDocument fetches the whole tree; depth -1 makes every node trackable,
// otherwise CDP stays silent about mutations below the reported depth.
func getDocument(p *rod.Page) (*proto.DOMNode, error) {
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("mirror: get document: %w", err)
	}
	return res.Root, nil
}
