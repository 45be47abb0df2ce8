// Package mirror keeps a dom.Document in step with a live Chrome page by
// replaying CDP DOM events onto it, so selector subscriptions see what the
// browser renders, including content inserted by scripts.
package mirror

import (
	"log/slog"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domsel/dom"
)

// CDP node types.
const (
	cdpElement  = 1
	cdpText     = 3
	cdpComment  = 8
	cdpDocument = 9
	cdpDoctype  = 10
)

// Mirror maps CDP node IDs to document nodes. Every method runs on the
// document loop.
type Mirror struct {
	doc    *dom.Document
	logger *slog.Logger
	nodes  map[proto.DOMNodeID]*html.Node
	ids    map[*html.Node]proto.DOMNodeID
	misses int
	// onReset runs on the loop after Reset replaced the document.
	onReset func()
}

// New creates an empty mirror of doc.
func New(doc *dom.Document, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = doc.Logger()
	}
	return &Mirror{
		doc:    doc,
		logger: logger,
		nodes:  make(map[proto.DOMNodeID]*html.Node),
		ids:    make(map[*html.Node]proto.DOMNodeID),
	}
}

// OnReset sets the function called after every Reset. Nodes held from
// before the reset are detached by then.
func (m *Mirror) OnReset(fn func()) { m.onReset = fn }

// Misses counts events that referenced a node the mirror did not know.
func (m *Mirror) Misses() int { return m.misses }

// Load replaces the document content with the tree returned by
// DOM.getDocument and marks the document ready.
func (m *Mirror) Load(root *proto.DOMNode) error {
	clear(m.nodes)
	clear(m.ids)
	docRoot := m.doc.Root()
	if root != nil {
		m.bind(root.NodeID, docRoot)
	}
	var children []*html.Node
	if root != nil {
		for _, c := range root.Children {
			if n := m.build(c); n != nil {
				children = append(children, n)
			}
		}
	}
	if err := m.doc.ReplaceChildren(docRoot, children...); err != nil {
		return err
	}
	m.doc.SetReady()
	return nil
}

// Reset applies DOM.documentUpdated: the browser replaced the whole
// document, so the tree is loaded again and the reset hook runs.
func (m *Mirror) Reset(root *proto.DOMNode) error {
	if err := m.Load(root); err != nil {
		return err
	}
	m.logger.Info("mirror: document reset", "nodes", len(m.nodes))
	if m.onReset != nil {
		m.onReset()
	}
	return nil
}

// Inserted applies DOM.childNodeInserted.
func (m *Mirror) Inserted(e *proto.DOMChildNodeInserted) error {
	parent, ok := m.lookup(e.ParentNodeID)
	if !ok {
		return nil
	}
	n := m.build(e.Node)
	if n == nil {
		return nil
	}
	var ref *html.Node
	if e.PreviousNodeID == 0 {
		ref = parent.FirstChild
	} else if prev, ok := m.lookup(e.PreviousNodeID); ok && prev.Parent == parent {
		ref = prev.NextSibling
	}
	return m.doc.InsertBefore(parent, n, ref)
}

// Removed applies DOM.childNodeRemoved.
func (m *Mirror) Removed(e *proto.DOMChildNodeRemoved) error {
	n, ok := m.lookup(e.NodeID)
	if !ok || n.Parent == nil {
		return nil
	}
	if err := m.doc.RemoveChild(n.Parent, n); err != nil {
		return err
	}
	m.forget(n)
	return nil
}

// SetChildren applies DOM.setChildNodes, sent when CDP reveals children it
// had not reported yet.
func (m *Mirror) SetChildren(e *proto.DOMSetChildNodes) error {
	parent, ok := m.lookup(e.ParentID)
	if !ok {
		return nil
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		m.forget(c)
	}
	var children []*html.Node
	for _, c := range e.Nodes {
		if n := m.build(c); n != nil {
			children = append(children, n)
		}
	}
	return m.doc.ReplaceChildren(parent, children...)
}

// AttributeModified applies DOM.attributeModified.
func (m *Mirror) AttributeModified(e *proto.DOMAttributeModified) error {
	n, ok := m.lookup(e.NodeID)
	if !ok {
		return nil
	}
	return m.doc.SetAttr(n, e.Name, e.Value)
}

// AttributeRemoved applies DOM.attributeRemoved.
func (m *Mirror) AttributeRemoved(e *proto.DOMAttributeRemoved) error {
	n, ok := m.lookup(e.NodeID)
	if !ok {
		return nil
	}
	return m.doc.RemoveAttr(n, e.Name)
}

// CharacterDataModified applies DOM.characterDataModified.
func (m *Mirror) CharacterDataModified(e *proto.DOMCharacterDataModified) error {
	n, ok := m.lookup(e.NodeID)
	if !ok {
		return nil
	}
	return m.doc.SetText(n, e.CharacterData)
}

func (m *Mirror) lookup(id proto.DOMNodeID) (*html.Node, bool) {
	n, ok := m.nodes[id]
	if !ok {
		m.misses++
		m.logger.Debug("mirror: unknown node", "node_id", id)
	}
	return n, ok
}

func (m *Mirror) bind(id proto.DOMNodeID, n *html.Node) {
	m.nodes[id] = n
	m.ids[n] = id
}

func (m *Mirror) forget(n *html.Node) {
	if id, ok := m.ids[n]; ok {
		delete(m.nodes, id)
		delete(m.ids, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.forget(c)
	}
}

// build converts a CDP subtree. Shadow roots, template content and frame
// documents are not mirrored.
func (m *Mirror) build(src *proto.DOMNode) *html.Node {
	if src == nil {
		return nil
	}
	var n *html.Node
	switch src.NodeType {
	case cdpElement:
		name := src.LocalName
		if name == "" {
			name = strings.ToLower(src.NodeName)
		}
		n = &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
		for i := 0; i+1 < len(src.Attributes); i += 2 {
			n.Attr = append(n.Attr, html.Attribute{Key: src.Attributes[i], Val: src.Attributes[i+1]})
		}
	case cdpText:
		n = &html.Node{Type: html.TextNode, Data: src.NodeValue}
	case cdpComment:
		n = &html.Node{Type: html.CommentNode, Data: src.NodeValue}
	case cdpDoctype:
		n = &html.Node{Type: html.DoctypeNode, Data: strings.ToLower(src.NodeName)}
	case cdpDocument:
		return nil
	default:
		return nil
	}
	m.bind(src.NodeID, n)
	for _, c := range src.Children {
		if child := m.build(c); child != nil {
			n.AppendChild(child)
		}
	}
	return n
}
