package fetcher

import (
	"strings"
	"testing"
)

const article = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<main>
<article>
<h1>Article Title</h1>
<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur.</p>
</article>
</main>
</body>
</html>`

func TestIsSufficient_StaticPage(t *testing.T) {
	if !IsSufficient([]byte(article)) {
		t.Error("expected sufficient for static page with content")
	}
}

func TestIsSufficient_SPAShell(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>App</title></head>
<body>
<div id="root"></div>
<p>` + strings.Repeat("filler text ", 40) + `</p>
<script src="/static/js/main.chunk.js"></script>
</body>
</html>`
	if IsSufficient([]byte(html)) {
		t.Error("expected insufficient for SPA shell")
	}
}

func TestIsSufficient_NoscriptNotice(t *testing.T) {
	html := strings.Replace(article, "<main>", "<noscript>You need to Enable JavaScript to run this app.</noscript><main>", 1)
	if IsSufficient([]byte(html)) {
		t.Error("expected insufficient when the page asks for javascript")
	}
}

func TestIsSufficient_ScriptHeavy(t *testing.T) {
	html := `<html><body><p>` + strings.Repeat("word ", 50) + `</p><script>` +
		strings.Repeat("var x = 1;", 500) + `</script></body></html>`
	if IsSufficient([]byte(html)) {
		t.Error("expected insufficient when scripts dwarf the text")
	}
}

func TestIsSufficient_TooShort(t *testing.T) {
	if IsSufficient([]byte(`<html><body>hi</body></html>`)) {
		t.Error("expected insufficient for very short content")
	}
}

func TestScan_Counts(t *testing.T) {
	st := scan([]byte(`<div>Hello World</div><style>p{}</style>`))
	if st.text != len("HelloWorld") {
		t.Errorf("text: got %d, want %d", st.text, len("HelloWorld"))
	}
	if st.markup != len("<div></div><style>p{}</style>") {
		t.Errorf("markup: got %d", st.markup)
	}
	if st.shell {
		t.Error("plain div reported as shell")
	}
}
