package dynsel

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsel/dom"
	"github.com/hazyhaar/domsel/selector"
)

func do(t *testing.T, d *dom.Document, fn func()) {
	t.Helper()
	if err := d.Do(context.Background(), fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

// flush lets the change feed dispatch everything queued so far.
func flush(t *testing.T, d *dom.Document) {
	t.Helper()
	do(t, d, func() {})
}

func newDoc(t *testing.T, src string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(src)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func byID(d *dom.Document, id string) *html.Node {
	return selector.First(d.Root(), selector.MustCompile("#"+id))
}

func idOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

// recorder collects delivered elements. Only touched on the loop.
type recorder struct {
	got []*html.Node
}

func (r *recorder) handler(el *html.Node, _ CancelFunc) {
	r.got = append(r.got, el)
}

func (r *recorder) ids() []string {
	var out []string
	for _, n := range r.got {
		out = append(out, idOf(n))
	}
	return out
}

var dotX = selector.MustCompile(".x")

func TestObserve_InitialScanIsSynchronous(t *testing.T) {
	d := newDoc(t, `<div id="r"><span id="a" class="x"></span><p><i id="b" class="x"></i></p></div><span id="out" class="x"></span>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		if len(rec.got) != 2 {
			t.Errorf("deliveries before Observe returned: got %d, want 2", len(rec.got))
		}
	})

	ids := rec.ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("scan order: got %v, want [a b]", ids)
	}
}

func TestObserve_DirectInsertion(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	var span *html.Node
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
	})
	do(t, d, func() {
		nodes, _ := d.AppendHTML(byID(d, "r"), `<span class="x"></span>`)
		span = nodes[0]
		if len(rec.got) != 0 {
			t.Error("feed delivered synchronously")
		}
	})
	flush(t, d)

	if len(rec.got) != 1 || rec.got[0] != span {
		t.Fatalf("deliveries: got %d, want the appended span", len(rec.got))
	}
}

func TestObserve_BulkInsertionDeliversDescendant(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		d.AppendHTML(byID(d, "r"), `<div id="outer"><span id="inner" class="x"></span></div>`)
	})
	flush(t, d)

	ids := rec.ids()
	if len(ids) != 1 || ids[0] != "inner" {
		t.Fatalf("deliveries: got %v, want [inner]", ids)
	}
}

func TestObserve_AncestorAndDescendantInOneBatch(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}

		outer := &html.Node{Type: html.ElementNode, Data: "div",
			Attr: []html.Attribute{{Key: "id", Val: "outer"}, {Key: "class", Val: "x"}}}
		inner := &html.Node{Type: html.ElementNode, Data: "span",
			Attr: []html.Attribute{{Key: "id", Val: "inner"}, {Key: "class", Val: "x"}}}
		d.AppendChild(byID(d, "r"), outer)
		d.AppendChild(outer, inner)
	})
	flush(t, d)

	ids := rec.ids()
	if len(ids) != 2 {
		t.Fatalf("deliveries: got %v, want outer and inner once each", ids)
	}
	seen := map[string]int{}
	for _, id := range ids {
		seen[id]++
	}
	if seen["outer"] != 1 || seen["inner"] != 1 {
		t.Errorf("deliveries: got %v", ids)
	}
}

func TestObserve_LaterGrowthOfDeliveredNode(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		d.AppendHTML(byID(d, "r"), `<div id="box" class="x"></div>`)
	})
	flush(t, d)
	do(t, d, func() {
		d.AppendHTML(byID(d, "box"), `<b id="late" class="x"></b>`)
	})
	flush(t, d)

	ids := rec.ids()
	if len(ids) != 2 || ids[0] != "box" || ids[1] != "late" {
		t.Fatalf("deliveries: got %v, want [box late]", ids)
	}
}

func TestObserve_ReinsertedElementNotRedelivered(t *testing.T) {
	d := newDoc(t, `<div id="r"><span id="s" class="x"></span></div><div id="park"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		s := byID(d, "s")
		d.AppendChild(byID(d, "park"), s)
		d.AppendChild(byID(d, "r"), s)
	})
	flush(t, d)

	if len(rec.got) != 1 {
		t.Fatalf("deliveries: got %d, want 1", len(rec.got))
	}
}

func TestObserve_IgnoresOutsideRoot(t *testing.T) {
	d := newDoc(t, `<div id="r"></div><div id="other"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		d.AppendHTML(byID(d, "other"), `<span class="x"></span>`)
		d.AppendHTML(byID(d, "r"), `text only`)
	})
	flush(t, d)

	if len(rec.got) != 0 {
		t.Fatalf("deliveries: got %d, want 0", len(rec.got))
	}
}

func TestObserve_CancelInsideHandlerStopsBatch(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	n := 0
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, func(_ *html.Node, cancel CancelFunc) {
			n++
			cancel()
			cancel()
		}); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		d.AppendHTML(byID(d, "r"), `<i class="x"></i><i class="x"></i><i class="x"></i>`)
	})
	flush(t, d)
	do(t, d, func() {
		d.AppendHTML(byID(d, "r"), `<i class="x"></i>`)
	})
	flush(t, d)

	if n != 1 {
		t.Fatalf("handler calls: got %d, want 1", n)
	}
}

func TestObserve_CancelDuringScan(t *testing.T) {
	d := newDoc(t, `<div id="r"><i class="x"></i><i class="x"></i><i class="x"></i></div>`)

	n := 0
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), dotX, func(_ *html.Node, cancel CancelFunc) {
			n++
			if n == 2 {
				cancel()
			}
		}); err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
	})

	if n != 2 {
		t.Fatalf("handler calls: got %d, want 2", n)
	}
}

func TestObserve_CancelFromAnotherGoroutine(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	var cancel CancelFunc
	do(t, d, func() {
		var err error
		cancel, err = Observe(d, byID(d, "r"), dotX, rec.handler)
		if err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
	})
	if cancel == nil {
		t.FailNow()
	}

	cancel()
	cancel()

	do(t, d, func() {
		d.AppendHTML(byID(d, "r"), `<span class="x"></span>`)
	})
	flush(t, d)

	if len(rec.got) != 0 {
		t.Fatalf("deliveries after cancel: got %d", len(rec.got))
	}
}

func TestObserve_CancelBeforeQueuedBatch(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	rec := &recorder{}
	do(t, d, func() {
		cancel, err := Observe(d, byID(d, "r"), dotX, rec.handler)
		if err != nil {
			t.Errorf("Observe: %v", err)
			return
		}
		d.AppendHTML(byID(d, "r"), `<span class="x"></span>`)
		cancel()
	})
	flush(t, d)

	if len(rec.got) != 0 {
		t.Fatalf("deliveries: got %d, want 0", len(rec.got))
	}
}

func TestObserve_PredicatePanicIsolatedPerElement(t *testing.T) {
	d := newDoc(t, `<div id="r"><p id="a"></p><p id="bad"></p><p id="c"></p></div>`)

	m := selector.Func(func(n *html.Node) bool {
		if idOf(n) == "bad" {
			panic("broken predicate")
		}
		return n.Data == "p"
	})

	rec := &recorder{}
	do(t, d, func() {
		if _, err := Observe(d, byID(d, "r"), m, rec.handler); err != nil {
			t.Errorf("Observe: %v", err)
		}
	})

	ids := rec.ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("deliveries: got %v, want [a c]", ids)
	}
}

func TestObserve_Validation(t *testing.T) {
	d := newDoc(t, ``)
	h := func(*html.Node, CancelFunc) {}

	do(t, d, func() {
		if _, err := Observe(nil, d.Root(), dotX, h); !errors.Is(err, ErrNilDocument) {
			t.Errorf("nil doc: got %v", err)
		}
		if _, err := Observe(d, nil, dotX, h); !errors.Is(err, ErrNilRoot) {
			t.Errorf("nil root: got %v", err)
		}
		if _, err := Observe(d, d.Root(), nil, h); !errors.Is(err, ErrNilMatcher) {
			t.Errorf("nil matcher: got %v", err)
		}
		if _, err := Observe(d, d.Root(), dotX, nil); !errors.Is(err, ErrNilHandler) {
			t.Errorf("nil handler: got %v", err)
		}
		if _, err := ObserveOnce(d, d.Root(), dotX, nil); !errors.Is(err, ErrNilHandler) {
			t.Errorf("ObserveOnce nil handler: got %v", err)
		}
	})
}

func TestObserveOnce_FirstScannedElement(t *testing.T) {
	d := newDoc(t, `<div id="r"><i id="first" class="x"></i><i id="second" class="x"></i></div>`)

	var got []string
	do(t, d, func() {
		if _, err := ObserveOnce(d, byID(d, "r"), dotX, func(el *html.Node) {
			got = append(got, idOf(el))
		}); err != nil {
			t.Errorf("ObserveOnce: %v", err)
			return
		}
		d.AppendHTML(byID(d, "r"), `<i id="third" class="x"></i>`)
	})
	flush(t, d)

	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("deliveries: got %v, want [first]", got)
	}
}

func TestObserveOnce_FromFeed(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	var got []string
	do(t, d, func() {
		if _, err := ObserveOnce(d, byID(d, "r"), dotX, func(el *html.Node) {
			got = append(got, idOf(el))
		}); err != nil {
			t.Errorf("ObserveOnce: %v", err)
			return
		}
	})
	do(t, d, func() { d.AppendHTML(byID(d, "r"), `<i id="a" class="x"></i>`) })
	do(t, d, func() { d.AppendHTML(byID(d, "r"), `<i id="b" class="x"></i>`) })
	flush(t, d)

	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("deliveries: got %v, want [a]", got)
	}
}

func TestObserveOnce_ReentrantHandler(t *testing.T) {
	d := newDoc(t, `<div id="r"></div>`)

	calls := 0
	do(t, d, func() {
		r := byID(d, "r")
		if _, err := ObserveOnce(d, r, dotX, func(*html.Node) {
			calls++
			d.AppendHTML(r, `<i class="x"></i>`)
		}); err != nil {
			t.Errorf("ObserveOnce: %v", err)
			return
		}
		d.AppendHTML(r, `<i class="x"></i>`)
	})
	flush(t, d)
	flush(t, d)

	if calls != 1 {
		t.Fatalf("handler calls: got %d, want 1", calls)
	}
}

func TestRunOnce(t *testing.T) {
	calls := 0
	double := RunOnce(func(n int) int {
		calls++
		return n * 2
	})

	if got := double(21); got != 42 {
		t.Errorf("first call: got %d, want 42", got)
	}
	if got := double(5); got != 0 {
		t.Errorf("second call: got %d, want zero value", got)
	}
	if calls != 1 {
		t.Errorf("f ran %d times", calls)
	}
}

func TestRunOnceFunc(t *testing.T) {
	calls := 0
	f := RunOnceFunc(func() { calls++ })
	for range 3 {
		f()
	}
	if calls != 1 {
		t.Errorf("f ran %d times", calls)
	}
}
