package selector

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func ids(nodes []*html.Node) []string {
	var out []string
	for _, n := range nodes {
		for _, a := range n.Attr {
			if a.Key == "id" {
				out = append(out, a.Val)
			}
		}
	}
	return out
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("div[["); err == nil {
		t.Fatal("expected error for invalid selector")
	}
}

func TestQuery_DocumentOrder(t *testing.T) {
	root := parse(t, `<div id="a" class="x"><span id="b" class="x"></span></div><p id="c" class="x"></p><p id="d"></p>`)

	got := ids(Query(root, MustCompile(".x")))
	want := []string{"a", "b", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Query: got %v, want %v", got, want)
	}
}

func TestQuery_ExcludesRoot(t *testing.T) {
	root := parse(t, `<div id="r" class="x"><span id="in" class="x"></span></div>`)
	r := First(root, MustCompile("#r"))
	if r == nil {
		t.Fatal("root not found")
	}
	got := ids(Query(r, MustCompile(".x")))
	if len(got) != 1 || got[0] != "in" {
		t.Errorf("Query: got %v, want [in]", got)
	}
}

func TestQuery_Group(t *testing.T) {
	root := parse(t, `<a id="1"></a><b id="2"></b><i id="3"></i>`)
	got := ids(Query(root, MustCompile("a, i")))
	if strings.Join(got, ",") != "1,3" {
		t.Errorf("Query: got %v", got)
	}
}

func TestAll_StopsEarly(t *testing.T) {
	root := parse(t, `<p></p><p></p><p></p>`)
	n := 0
	for range All(root, MustCompile("p")) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterations: got %d", n)
	}
}

func TestFunc(t *testing.T) {
	root := parse(t, `<div id="a" data-k="1"></div><div id="b"></div>`)
	m := Func(func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Key == "data-k" {
				return true
			}
		}
		return false
	})
	got := ids(Query(root, m))
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Query: got %v", got)
	}
}

func TestCSS_TextNodeNeverMatches(t *testing.T) {
	if MustCompile("*").Match(&html.Node{Type: html.TextNode, Data: "x"}) {
		t.Error("text node matched")
	}
}

func TestIsolate(t *testing.T) {
	root := parse(t, `<p id="bad"></p><p id="ok"></p>`)
	var panicked []string
	m := Isolate(Func(func(n *html.Node) bool {
		if ids([]*html.Node{n})[0] == "bad" {
			panic("predicate failure")
		}
		return true
	}), func(n *html.Node, v any) {
		panicked = append(panicked, ids([]*html.Node{n})...)
	})

	got := ids(Query(root, MustCompile("p")))
	if len(got) != 2 {
		t.Fatalf("setup: got %v", got)
	}
	got = ids(Query(root, Func(func(n *html.Node) bool {
		return n.Data == "p" && m.Match(n)
	})))
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("Isolate: got %v, want [ok]", got)
	}
	if len(panicked) != 1 || panicked[0] != "bad" {
		t.Errorf("onPanic: got %v", panicked)
	}
}
