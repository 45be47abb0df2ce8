// Package dom is a live, mutable HTML document with a MutationObserver-style
// change feed. The tree is a golang.org/x/net/html node tree; every change
// made through the Document is recorded and delivered, coalesced, to the
// observers watching the changed region in a task that runs after the
// current one.
//
// A Document is confined to its Loop. Call its methods from tasks (Do,
// Post), from observer callbacks, or from handlers invoked by those.
package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNilNode is returned when a required node argument is nil.
	ErrNilNode = errors.New("dom: nil node")
	// ErrNotChild is returned when a reference node is not a child of the
	// given parent.
	ErrNotChild = errors.New("dom: node is not a child of parent")
	// ErrHierarchy is returned when inserting a node into its own subtree.
	ErrHierarchy = errors.New("dom: node is an ancestor of the insertion point")
	// ErrNoHead is returned by AddStyle when the document has no <head>.
	ErrNoHead = errors.New("dom: document has no head")
)

// Document is a live HTML document.
type Document struct {
	root    *html.Node
	loop    *Loop
	ownLoop bool
	logger  *slog.Logger

	observers []*MutationObserver
	pending   []*MutationObserver
	scheduled bool

	ready   bool
	onReady []func()
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) { d.logger = l }
}

// WithLoop runs the document on an existing loop instead of starting its
// own. Close will not stop a shared loop.
func WithLoop(l *Loop) Option {
	return func(d *Document) { d.loop = l }
}

// Loading creates the document in the loading state: OnReady callbacks are
// held until SetReady is called.
func Loading() Option {
	return func(d *Document) { d.ready = false }
}

// New creates an empty document (<html><head></head><body></body></html>).
func New(opts ...Option) *Document {
	root, err := html.Parse(strings.NewReader(""))
	if err != nil {
		// html.Parse only fails on reader errors.
		panic(fmt.Sprintf("dom: parse empty document: %v", err))
	}
	return newDocument(root, opts)
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return newDocument(root, opts), nil
}

// ParseString parses an HTML document from a string.
func ParseString(src string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(src), opts...)
}

func newDocument(root *html.Node, opts []Option) *Document {
	d := &Document{root: root, ready: true}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.loop == nil {
		d.loop = NewLoop(d.logger)
		d.ownLoop = true
	}
	return d
}

// Close stops the document's loop if the document owns it.
func (d *Document) Close() {
	if d.ownLoop {
		d.loop.Close()
	}
}

// Loop returns the loop the document is confined to.
func (d *Document) Loop() *Loop { return d.loop }

// Do runs fn on the document's loop and waits for it.
func (d *Document) Do(ctx context.Context, fn func()) error {
	return d.loop.Do(ctx, fn)
}

// Post queues fn on the document's loop.
func (d *Document) Post(fn func()) bool {
	return d.loop.Post(fn)
}

// Logger returns the document's logger.
func (d *Document) Logger() *slog.Logger { return d.logger }

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Head returns the <head> element, or nil.
func (d *Document) Head() *html.Node { return findElement(d.root, atom.Head) }

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node { return findElement(d.root, atom.Body) }

// Render serialises the whole document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// OuterHTML serialises a single node and its subtree.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// --- ready-state gating ---

// OnReady runs fn now if the document is ready, otherwise once SetReady is
// called.
func (d *Document) OnReady(fn func()) {
	if d.ready {
		fn()
		return
	}
	d.onReady = append(d.onReady, fn)
}

// SetReady marks the document ready and runs the held OnReady callbacks.
func (d *Document) SetReady() {
	if d.ready {
		return
	}
	d.ready = true
	fns := d.onReady
	d.onReady = nil
	for _, fn := range fns {
		fn()
	}
}

// Ready reports whether the document finished loading.
func (d *Document) Ready() bool { return d.ready }

// --- tree mutation ---

// AppendChild appends child to parent. An attached child is moved.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref (append when ref is
// nil). An attached child is detached from its current parent first, which
// is recorded as a removal.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if ref != nil && ref.Parent != parent {
		return ErrNotChild
	}
	if isInclusiveAncestor(child, parent) {
		return ErrHierarchy
	}
	if ref == child {
		ref = child.NextSibling
	}
	if child.Parent != nil {
		d.detach(child)
	}
	parent.InsertBefore(child, ref)
	d.enqueue(Record{Type: RecordChildList, Target: parent, Added: []*html.Node{child}})
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if child.Parent != parent {
		return ErrNotChild
	}
	d.detach(child)
	return nil
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes as a single insertion.
func (d *Document) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	if parent == nil {
		return nil, ErrNilNode
	}
	ctxNode := parent
	if parent.Type != html.ElementNode {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.enqueue(Record{Type: RecordChildList, Target: parent, Added: nodes})
	return nodes, nil
}

// ReplaceChildren removes every child of parent and inserts nodes in their
// place. The change is recorded as one childList record. A node listed more
// than once ends up at its last position.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) error {
	if parent == nil {
		return ErrNilNode
	}
	for _, n := range nodes {
		if n == nil {
			return ErrNilNode
		}
		if isInclusiveAncestor(n, parent) {
			return ErrHierarchy
		}
	}
	nodes = lastOccurrences(nodes)
	for _, n := range nodes {
		if n.Parent != nil && n.Parent != parent {
			d.detach(n)
		}
	}

	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(removed) == 0 && len(nodes) == 0 {
		return nil
	}
	d.enqueue(Record{Type: RecordChildList, Target: parent, Added: nodes, Removed: removed})
	return nil
}

// lastOccurrences drops every repeat of a node but its last one.
func lastOccurrences(nodes []*html.Node) []*html.Node {
	last := make(map[*html.Node]int, len(nodes))
	for i, n := range nodes {
		last[n] = i
	}
	if len(last) == len(nodes) {
		return nodes
	}
	out := make([]*html.Node, 0, len(last))
	for i, n := range nodes {
		if last[n] == i {
			out = append(out, n)
		}
	}
	return out
}

// ReplaceDocument swaps the whole content of the document for src.
func (d *Document) ReplaceDocument(src string) error {
	parsed, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("dom: replace document: %w", err)
	}
	var children []*html.Node
	for c := parsed.FirstChild; c != nil; {
		next := c.NextSibling
		parsed.RemoveChild(c)
		children = append(children, c)
		c = next
	}
	return d.ReplaceChildren(d.root, children...)
}

// AddStyle appends a <style> element holding css to the document head.
func (d *Document) AddStyle(css string) (*html.Node, error) {
	head := d.Head()
	if head == nil {
		return nil, ErrNoHead
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	if err := d.AppendChild(head, style); err != nil {
		return nil, err
	}
	return style, nil
}

// SetAttr sets an attribute on an element.
func (d *Document) SetAttr(n *html.Node, key, val string) error {
	if n == nil {
		return ErrNilNode
	}
	old := ""
	found := false
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old = n.Attr[i].Val
			n.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	d.enqueue(Record{Type: RecordAttributes, Target: n, AttrName: key, OldValue: old})
	return nil
}

// RemoveAttr deletes an attribute. Removing a missing attribute is a no-op.
func (d *Document) RemoveAttr(n *html.Node, key string) error {
	if n == nil {
		return ErrNilNode
	}
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old := n.Attr[i].Val
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.enqueue(Record{Type: RecordAttributes, Target: n, AttrName: key, OldValue: old})
			return nil
		}
	}
	return nil
}

// SetText replaces the data of a text or comment node.
func (d *Document) SetText(n *html.Node, data string) error {
	if n == nil {
		return ErrNilNode
	}
	if n.Type != html.TextNode && n.Type != html.CommentNode {
		return fmt.Errorf("dom: set text on node type %d", n.Type)
	}
	old := n.Data
	n.Data = data
	d.enqueue(Record{Type: RecordCharacterData, Target: n, OldValue: old})
	return nil
}

func (d *Document) detach(child *html.Node) {
	parent := child.Parent
	parent.RemoveChild(child)
	d.enqueue(Record{Type: RecordChildList, Target: parent, Removed: []*html.Node{child}})
}

// isInclusiveAncestor reports whether a is n or one of n's ancestors.
func isInclusiveAncestor(a, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}
