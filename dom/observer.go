package dom

import (
	"errors"
	"runtime/debug"
	"slices"
	"sync/atomic"

	"golang.org/x/net/html"
)

var (
	// ErrNoOptions is returned by Observe when no record type is requested.
	ErrNoOptions = errors.New("dom: observe needs childList, attributes or characterData")
	// ErrDisconnected is returned by Observe on a disconnected observer.
	ErrDisconnected = errors.New("dom: observer disconnected")
)

// RecordType is the kind of change a Record describes.
type RecordType int

const (
	RecordChildList RecordType = iota + 1
	RecordAttributes
	RecordCharacterData
)

func (t RecordType) String() string {
	switch t {
	case RecordChildList:
		return "childList"
	case RecordAttributes:
		return "attributes"
	case RecordCharacterData:
		return "characterData"
	}
	return "unknown"
}

// Record is one change to the tree. For childList records, Added holds the
// top-level inserted nodes only: their descendants came along with them.
type Record struct {
	Type     RecordType
	Target   *html.Node
	Added    []*html.Node
	Removed  []*html.Node
	AttrName string
	OldValue string
}

// ObserveOptions selects which changes an observer receives.
type ObserveOptions struct {
	ChildList     bool
	Attributes    bool
	CharacterData bool
	// Subtree extends the observation from the target to all its
	// descendants.
	Subtree bool
}

func (o ObserveOptions) wants(t RecordType) bool {
	switch t {
	case RecordChildList:
		return o.ChildList
	case RecordAttributes:
		return o.Attributes
	case RecordCharacterData:
		return o.CharacterData
	}
	return false
}

type observation struct {
	target *html.Node
	opts   ObserveOptions
}

// MutationObserver receives batches of Records for the nodes it observes.
type MutationObserver struct {
	doc      *Document
	callback func([]Record)

	targets    []observation
	records    []Record
	pending    bool
	registered bool

	disconnected atomic.Bool
}

// NewObserver creates an observer. It receives nothing until Observe is
// called.
func (d *Document) NewObserver(callback func([]Record)) *MutationObserver {
	return &MutationObserver{doc: d, callback: callback}
}

// Observe starts watching target. Observing the same target again replaces
// its options.
func (o *MutationObserver) Observe(target *html.Node, opts ObserveOptions) error {
	if target == nil {
		return ErrNilNode
	}
	if !opts.ChildList && !opts.Attributes && !opts.CharacterData {
		return ErrNoOptions
	}
	if o.disconnected.Load() {
		return ErrDisconnected
	}

	replaced := false
	for i := range o.targets {
		if o.targets[i].target == target {
			o.targets[i].opts = opts
			replaced = true
			break
		}
	}
	if !replaced {
		o.targets = append(o.targets, observation{target: target, opts: opts})
	}
	if !o.registered {
		o.registered = true
		o.doc.observers = append(o.doc.observers, o)
	}
	return nil
}

// Disconnect stops the observer. The callback is never invoked again, even
// for records already queued. Safe to call from any goroutine and more than
// once.
func (o *MutationObserver) Disconnect() {
	if o.disconnected.Swap(true) {
		return
	}
	o.doc.loop.Post(o.detach)
}

// Disconnected reports whether Disconnect was called.
func (o *MutationObserver) Disconnected() bool {
	return o.disconnected.Load()
}

// TakeRecords empties and returns the observer's queue.
func (o *MutationObserver) TakeRecords() []Record {
	recs := o.records
	o.records = nil
	return recs
}

func (o *MutationObserver) detach() {
	o.records = nil
	o.targets = nil
	if o.registered {
		o.registered = false
		o.doc.observers = slices.DeleteFunc(o.doc.observers, func(x *MutationObserver) bool {
			return x == o
		})
	}
}

func (o *MutationObserver) interested(rec Record) bool {
	for _, ob := range o.targets {
		if !ob.opts.wants(rec.Type) {
			continue
		}
		if rec.Target == ob.target {
			return true
		}
		if ob.opts.Subtree && isInclusiveAncestor(ob.target, rec.Target) {
			return true
		}
	}
	return false
}

func (o *MutationObserver) invoke(recs []Record) {
	defer func() {
		if r := recover(); r != nil {
			o.doc.logger.Error("dom: observer callback panic recovered",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	o.callback(recs)
}

// enqueue queues rec on every interested observer and schedules a dispatch
// after the current task.
func (d *Document) enqueue(rec Record) {
	for _, o := range d.observers {
		if o.disconnected.Load() || !o.interested(rec) {
			continue
		}
		o.records = append(o.records, rec)
		if !o.pending {
			o.pending = true
			d.pending = append(d.pending, o)
		}
	}
	if len(d.pending) > 0 && !d.scheduled {
		d.scheduled = true
		d.loop.Post(d.dispatch)
	}
}

// dispatch hands each pending observer its queued records as one batch.
// Records produced by the callbacks are dispatched by a later task.
func (d *Document) dispatch() {
	d.scheduled = false
	batch := d.pending
	d.pending = nil
	for _, o := range batch {
		o.pending = false
		recs := o.TakeRecords()
		if len(recs) == 0 || o.disconnected.Load() {
			continue
		}
		o.invoke(recs)
	}
}
