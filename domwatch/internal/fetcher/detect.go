package fetcher

import (
	"bytes"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Thresholds for IsSufficient.
const (
	minBody      = 256
	minText      = 200
	minTextRatio = 0.10
)

// spaMounts are ids of the empty container client-side frameworks render into.
var spaMounts = map[string]bool{"root": true, "app": true, "__next": true, "__nuxt": true}

// IsSufficient reports whether a static HTML response carries enough visible
// text to be watched without a browser. Pages that look like a client-side
// application shell need one.
func IsSufficient(body []byte) bool {
	if len(body) < minBody {
		return false
	}
	st := scan(body)
	if st.shell {
		return false
	}
	total := st.text + st.markup
	if total == 0 || st.text < minText {
		return false
	}
	return float64(st.text)/float64(total) >= minTextRatio
}

type stats struct {
	text   int  // visible non-space bytes
	markup int  // tag, script and style bytes
	shell  bool // empty SPA mount point or a "enable javascript" notice
}

func scan(body []byte) stats {
	var st stats
	z := html.NewTokenizer(bytes.NewReader(body))
	var (
		raw       atom.Atom // inside script or style
		noscript  bool
		openMount bool // last start tag was an SPA mount
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				st.markup += len(z.Raw())
			}
			return st

		case html.StartTagToken, html.SelfClosingTagToken:
			st.markup += len(z.Raw())
			name, hasAttr := z.TagName()
			a := atom.Lookup(name)
			openMount = false
			switch a {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					raw = a
				}
			case atom.Noscript:
				noscript = true
			case atom.Div, atom.Main, atom.Section:
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = z.TagAttr()
					if string(k) == "id" && spaMounts[string(v)] {
						openMount = true
					}
				}
			}

		case html.EndTagToken:
			st.markup += len(z.Raw())
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if openMount {
				st.shell = true
			}
			openMount = false
			switch a {
			case atom.Script, atom.Style:
				raw = 0
			case atom.Noscript:
				noscript = false
			}

		case html.TextToken:
			data := z.Text()
			if raw != 0 {
				st.markup += len(data)
				continue
			}
			if noscript && strings.Contains(strings.ToLower(string(data)), "enable javascript") {
				st.shell = true
			}
			n := visible(data)
			if n > 0 {
				openMount = false
			}
			st.text += n

		default:
			st.markup += len(z.Raw())
		}
	}
}

func visible(b []byte) int {
	n := 0
	for _, r := range string(b) {
		if !unicode.IsSpace(r) {
			n += len(string(r))
		}
	}
	return n
}
