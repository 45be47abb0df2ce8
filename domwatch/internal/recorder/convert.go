package recorder

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsel/dom"
	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// Convert maps document records to wire records. It reads the tree, so it
// must run on the document loop. Paths reflect the tree at conversion time.
func Convert(records []dom.Record) []mutation.Record {
	var out []mutation.Record
	for _, rec := range records {
		switch rec.Type {
		case dom.RecordChildList:
			if rec.Target != nil && rec.Target.Type == html.DocumentNode && len(rec.Removed) > 0 {
				out = append(out, mutation.Record{Op: mutation.OpDocReset, HTML: dom.OuterHTML(rec.Target)})
				continue
			}
			parent := dom.XPath(rec.Target)
			for _, n := range rec.Removed {
				out = append(out, mutation.Record{
					Op:       mutation.OpRemove,
					XPath:    parent + "/" + step(n),
					NodeType: nodeType(n),
					Tag:      tag(n),
				})
			}
			for _, n := range rec.Added {
				r := mutation.Record{
					Op:       mutation.OpInsert,
					XPath:    dom.XPath(n),
					NodeType: nodeType(n),
					Tag:      tag(n),
				}
				if n.Type == html.ElementNode {
					r.HTML = dom.OuterHTML(n)
				} else {
					r.Value = n.Data
				}
				out = append(out, r)
			}

		case dom.RecordAttributes:
			r := mutation.Record{
				Op:       mutation.OpAttr,
				XPath:    dom.XPath(rec.Target),
				NodeType: nodeType(rec.Target),
				Tag:      tag(rec.Target),
				Name:     rec.AttrName,
				OldValue: rec.OldValue,
			}
			if v, ok := attr(rec.Target, rec.AttrName); ok {
				r.Value = v
			} else {
				r.Op = mutation.OpAttrDel
			}
			out = append(out, r)

		case dom.RecordCharacterData:
			out = append(out, mutation.Record{
				Op:       mutation.OpText,
				XPath:    dom.XPath(rec.Target),
				NodeType: nodeType(rec.Target),
				Value:    rec.Target.Data,
				OldValue: rec.OldValue,
			})
		}
	}
	return out
}

// nodeType follows the DOM numbering used on the wire.
func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func tag(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

func step(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "text()"
	case html.CommentNode:
		return "comment()"
	}
	return tag(n)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
