// Package recorder streams every mutation of a document as debounced,
// compressed mutation.Batches.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domsel/dom"
	"github.com/hazyhaar/domsel/domwatch/mutation"
	"github.com/hazyhaar/domsel/idgen"
)

// Options configures a Recorder.
type Options struct {
	PageID string
	// PageURL returns the page's current URL, which changes when the page
	// navigates.
	PageURL func() string
	// IDs generates batch IDs. Default: idgen.Default.
	IDs idgen.Generator
	// Window is the debounce time. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes as soon as this many records are buffered.
	// Default: 1000.
	MaxBuffer int
	// Emit receives each batch. Required.
	Emit func(ctx context.Context, b mutation.Batch) error
	// SnapshotRef returns the ID of the page's last snapshot.
	SnapshotRef func() string
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 250 * time.Millisecond
	}
	if o.MaxBuffer <= 0 {
		o.MaxBuffer = 1000
	}
	if o.PageURL == nil {
		o.PageURL = func() string { return "" }
	}
	if o.IDs == nil {
		o.IDs = idgen.Default
	}
	if o.SnapshotRef == nil {
		o.SnapshotRef = func() string { return "" }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Recorder observes a whole document. Records are converted on the
// document loop and batched on the recorder's own goroutine.
type Recorder struct {
	doc  *dom.Document
	opts Options
	feed *dom.MutationObserver

	mu    sync.Mutex
	queue []mutation.Record
	wake  chan struct{}

	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Recorder. Call Start to begin recording.
func New(doc *dom.Document, opts Options) *Recorder {
	opts.defaults()
	return &Recorder{
		doc:  doc,
		opts: opts,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start attaches to the document and runs the batching goroutine until
// ctx is done or Stop is called.
func (r *Recorder) Start(ctx context.Context) error {
	if r.opts.Emit == nil {
		return fmt.Errorf("recorder: %s: no emit function", r.opts.PageID)
	}
	var attachErr error
	err := r.doc.Do(ctx, func() {
		r.feed = r.doc.NewObserver(r.onRecords)
		attachErr = r.feed.Observe(r.doc.Root(), dom.ObserveOptions{
			ChildList:     true,
			Attributes:    true,
			CharacterData: true,
			Subtree:       true,
		})
	})
	if err == nil {
		err = attachErr
	}
	if err != nil {
		return fmt.Errorf("recorder: attach: %w", err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return nil
}

// Stop detaches from the document, flushes what is buffered and waits for
// the batching goroutine.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.feed.Disconnect()
	r.cancel()
	<-r.done
}

// onRecords runs on the document loop.
func (r *Recorder) onRecords(records []dom.Record) {
	converted := Convert(records)
	if len(converted) == 0 {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, converted...)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	emitCtx := context.WithoutCancel(ctx)
	deb := newDebouncer(r.opts.Window, r.opts.MaxBuffer, func(recs []mutation.Record) {
		r.emit(emitCtx, recs)
	})

	for {
		select {
		case <-ctx.Done():
			for _, rec := range r.drain() {
				deb.add(rec)
			}
			deb.flush()
			return
		case <-r.wake:
			for _, rec := range r.drain() {
				deb.add(rec)
			}
		case <-deb.timerC():
			deb.flush()
		}
	}
}

func (r *Recorder) drain() []mutation.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queue
	r.queue = nil
	return q
}

func (r *Recorder) emit(ctx context.Context, recs []mutation.Record) {
	r.seq++
	b := mutation.Batch{
		ID:          r.opts.IDs(),
		PageURL:     r.opts.PageURL(),
		PageID:      r.opts.PageID,
		Seq:         r.seq,
		Records:     recs,
		Timestamp:   time.Now().UnixMilli(),
		SnapshotRef: r.opts.SnapshotRef(),
	}
	if err := r.opts.Emit(ctx, b); err != nil {
		r.opts.Logger.Warn("recorder: emit batch failed",
			"page_id", r.opts.PageID, "seq", b.Seq, "error", err)
	}
}
