package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns the positional XPath of n, e.g. /html/body/div[2]/span.
// The sibling index is only written when several siblings share the tag.
// Nodes outside a document get a path rooted at their detached ancestor.
func XPath(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.DocumentNode:
		return ""
	case html.DoctypeNode:
		return XPath(n.Parent)
	case html.TextNode:
		return XPath(n.Parent) + "/text()"
	case html.CommentNode:
		return XPath(n.Parent) + "/comment()"
	}

	name := strings.ToLower(n.Data)
	parentPath := XPath(n.Parent)
	if n.Parent == nil {
		return "/" + name
	}

	idx, total := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != name {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, name, idx)
	}
	return parentPath + "/" + name
}
