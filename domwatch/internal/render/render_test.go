package render

import (
	"strings"
	"testing"
)

func TestRender_HTMLSanitized(t *testing.T) {
	r := New()
	out, err := r.Render(`<div onclick="x()"><b>hi</b><script>alert(1)</script></div>`, "html", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.HTML, "script") || strings.Contains(out.HTML, "onclick") {
		t.Errorf("unsafe markup kept: %q", out.HTML)
	}
	if !strings.Contains(out.HTML, "<b>hi</b>") {
		t.Errorf("content lost: %q", out.HTML)
	}
	if out.Markdown != "" {
		t.Errorf("markdown filled for html format")
	}
}

func TestRender_HTMLRaw(t *testing.T) {
	frag := `<p data-x="1">raw</p>`
	out, err := New().Render(frag, "html", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if out.HTML != frag {
		t.Errorf("got %q, want %q", out.HTML, frag)
	}
}

func TestRender_Markdown(t *testing.T) {
	out, err := New().Render(`<h2>Title</h2><p>See <a href="/docs">docs</a></p>`, "markdown", "https://example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Markdown, "## Title") {
		t.Errorf("heading missing: %q", out.Markdown)
	}
	if !strings.Contains(out.Markdown, "https://example.com/docs") {
		t.Errorf("relative link not resolved: %q", out.Markdown)
	}
}

func TestRender_NoneAndUnknown(t *testing.T) {
	r := New()
	out, err := r.Render("<p>x</p>", "none", "", false)
	if err != nil || out != (Output{}) {
		t.Errorf("none: got %+v, %v", out, err)
	}
	if _, err := r.Render("<p>x</p>", "pdf", "", false); err == nil {
		t.Error("expected error for unknown format")
	}
}
