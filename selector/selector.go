// Package selector provides element predicates over golang.org/x/net/html
// trees: CSS selectors compiled with cascadia, plain functions, and the
// scans that enumerate matching descendants.
package selector

import (
	"fmt"
	"iter"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Matcher reports whether a node satisfies a predicate.
type Matcher interface {
	Match(n *html.Node) bool
}

// Func adapts a plain function to a Matcher.
type Func func(n *html.Node) bool

// Match calls f(n).
func (f Func) Match(n *html.Node) bool { return f(n) }

// CSS is a compiled CSS selector that remembers its source text.
type CSS struct {
	src string
	sel cascadia.Selector
}

// Compile parses a CSS selector (groups such as "a, b" allowed).
func Compile(src string) (*CSS, error) {
	sel, err := cascadia.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("selector: compile %q: %w", src, err)
	}
	return &CSS{src: src, sel: sel}, nil
}

// MustCompile is Compile that panics on error. For static selectors.
func MustCompile(src string) *CSS {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// Match reports whether n is an element matching the selector.
func (c *CSS) Match(n *html.Node) bool {
	return Element(n) && c.sel.Match(n)
}

// String returns the selector source.
func (c *CSS) String() string { return c.src }

// Element reports whether n is an element node.
func Element(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// All lazily yields the element descendants of root that match m, depth
// first in document order. root itself is not considered. The walk reads
// the live tree: callers that mutate it while iterating should use Query.
func All(root *html.Node, m Matcher) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		if root == nil {
			return
		}
		walk(root, m, yield)
	}
}

func walk(n *html.Node, m Matcher, yield func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Element(c) && m.Match(c) {
			if !yield(c) {
				return false
			}
		}
		if !walk(c, m, yield) {
			return false
		}
	}
	return true
}

// Query returns the matching descendants of root as a static list, the way
// querySelectorAll does.
func Query(root *html.Node, m Matcher) []*html.Node {
	var out []*html.Node
	for n := range All(root, m) {
		out = append(out, n)
	}
	return out
}

// First returns the first matching descendant of root, or nil.
func First(root *html.Node, m Matcher) *html.Node {
	for n := range All(root, m) {
		return n
	}
	return nil
}

// Isolate wraps m so that a panicking predicate counts as a non-match
// instead of unwinding the caller. onPanic, if set, receives the node and
// the recovered value.
func Isolate(m Matcher, onPanic func(n *html.Node, v any)) Matcher {
	return Func(func(n *html.Node) (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
				if onPanic != nil {
					onPanic(n, r)
				}
			}
		}()
		return m.Match(n)
	})
}
