// Package nav tracks the URL of a live page. Callers register handlers on a
// Tracker; CDP navigation events are fed into it and the handlers run when
// the main frame's URL changes, whether by a full load, a history API call
// (pushState, replaceState, popstate) or a fragment change.
package nav

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Cause tells how the URL changed.
type Cause string

const (
	CauseLoad         Cause = "load"          // new document in the main frame
	CauseSameDocument Cause = "same_document" // history API or fragment
)

// Handler receives the new URL.
type Handler func(url string, cause Cause)

type entry struct {
	id uint64
	h  Handler
}

// Tracker holds the current URL of one page and the handlers listening to
// it. Safe for concurrent use; handlers run outside the lock, in
// registration order, on the goroutine that fed the event.
type Tracker struct {
	mu        sync.Mutex
	url       string
	mainFrame proto.PageFrameID
	handlers  []entry
	next      uint64
}

// NewTracker starts at url. mainFrame may be empty, in which case the first
// top-level frameNavigated event names it.
func NewTracker(url string, mainFrame proto.PageFrameID) *Tracker {
	return &Tracker{url: url, mainFrame: mainFrame}
}

// URL returns the last URL seen.
func (t *Tracker) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// OnChange registers h. The returned function unregisters it and may be
// called more than once.
func (t *Tracker) OnChange(h Handler) (remove func()) {
	t.mu.Lock()
	t.next++
	id := t.next
	t.handlers = append(t.handlers, entry{id: id, h: h})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, e := range t.handlers {
			if e.id == id {
				t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
				return
			}
		}
	}
}

// Set records url and dispatches it when it differs from the current one.
// It reports whether handlers were called.
func (t *Tracker) Set(url string, cause Cause) bool {
	t.mu.Lock()
	if url == "" || url == t.url {
		t.mu.Unlock()
		return false
	}
	t.url = url
	hs := make([]Handler, len(t.handlers))
	for i, e := range t.handlers {
		hs[i] = e.h
	}
	t.mu.Unlock()

	for _, h := range hs {
		h(url, cause)
	}
	return true
}

// FrameNavigated applies a Page.frameNavigated event. Child frames are
// ignored.
func (t *Tracker) FrameNavigated(e *proto.PageFrameNavigated) bool {
	if e.Frame == nil || e.Frame.ParentID != "" {
		return false
	}
	t.mu.Lock()
	if t.mainFrame == "" {
		t.mainFrame = e.Frame.ID
	}
	main := t.mainFrame == e.Frame.ID
	t.mu.Unlock()
	if !main {
		return false
	}
	return t.Set(e.Frame.URL+e.Frame.URLFragment, CauseLoad)
}

// NavigatedWithinDocument applies a Page.navigatedWithinDocument event.
func (t *Tracker) NavigatedWithinDocument(e *proto.PageNavigatedWithinDocument) bool {
	t.mu.Lock()
	main := t.mainFrame != "" && t.mainFrame == e.FrameID
	t.mu.Unlock()
	if !main {
		return false
	}
	return t.Set(e.URL, CauseSameDocument)
}

// Follower feeds a Tracker from a rod page.
type Follower struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Follow enables the CDP Page domain and feeds t with the page's navigation
// events until ctx is done or Stop is called.
func Follow(ctx context.Context, page *rod.Page, t *Tracker) (*Follower, error) {
	ctx, cancel := context.WithCancel(ctx)
	p := page.Context(ctx)
	if err := (proto.PageEnable{}).Call(p); err != nil {
		cancel()
		return nil, fmt.Errorf("nav: enable page: %w", err)
	}
	wait := p.EachEvent(
		func(e *proto.PageFrameNavigated) { t.FrameNavigated(e) },
		func(e *proto.PageNavigatedWithinDocument) { t.NavigatedWithinDocument(e) },
	)
	f := &Follower{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		wait()
	}()
	return f, nil
}

// Stop ends event delivery and waits for the listener to exit.
func (f *Follower) Stop() {
	f.cancel()
	<-f.done
}
