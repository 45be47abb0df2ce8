package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domsel/dbopen"
)

const sample = `
browser:
  stealth: headful
pages:
  - id: news
    url: https://example.com/news
    root: "#feed"
    rules:
      - name: headlines
        selector: article h2
        format: markdown
      - selector: .cookie-banner
        once: true
        format: none
sinks:
  - type: webhook
    url: http://hooks.local/dom
http:
  addr: ":8090"
  mcp_quic_addr: ":8443"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domwatch.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Browser.Stealth != "headful" {
		t.Errorf("stealth: got %q", cfg.Browser.Stealth)
	}
	if cfg.Debounce.Window != 250*time.Millisecond {
		t.Errorf("debounce window default: got %v", cfg.Debounce.Window)
	}
	if cfg.HTTP.Addr != ":8090" || cfg.HTTP.MCPQuicAddr != ":8443" {
		t.Errorf("http: got %+v", cfg.HTTP)
	}
	if len(cfg.Pages) != 1 {
		t.Fatalf("pages: got %d", len(cfg.Pages))
	}
	p := cfg.Pages[0]
	if p.StealthLevel != "auto" {
		t.Errorf("stealth_level default: got %q", p.StealthLevel)
	}
	if len(p.Rules) != 2 {
		t.Fatalf("rules: got %d", len(p.Rules))
	}
	if p.Rules[1].Name != ".cookie-banner" {
		t.Errorf("rule name default: got %q", p.Rules[1].Name)
	}
	if !p.Rules[1].Once {
		t.Error("once not parsed")
	}
}

func TestParse_DefaultSink(t *testing.T) {
	cfg, err := Parse([]byte("pages: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks: got %+v", cfg.Sinks)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad selector": `
pages:
  - id: a
    url: http://x
    rules: [{selector: "div["}]
`,
		"duplicate id": `
pages:
  - {id: a, url: http://x, rules: [{selector: p}]}
  - {id: a, url: http://y, rules: [{selector: p}]}
`,
		"no rules": `
pages:
  - {id: a, url: http://x}
`,
		"bad format": `
pages:
  - {id: a, url: http://x, rules: [{selector: p, format: pdf}]}
`,
		"bad sink": `
sinks: [{type: nats}]
`,
		"cert without key": `
http: {mcp_quic_addr: ":8443", tls_cert: /etc/domwatch/cert.pem}
`,
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadPages_GroupsRules(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	page := PageConfig{ID: "shop", URL: "http://shop.local", StealthLevel: "0", SnapshotInterval: time.Minute}
	for _, r := range []RuleConfig{
		{Name: "price", Selector: ".price", Format: FormatHTML},
		{Name: "stock", Selector: ".stock", Once: true, Format: FormatMarkdown, Sanitize: true},
	} {
		if err := InsertRule(ctx, db, page, r); err != nil {
			t.Fatal(err)
		}
	}
	other := PageConfig{ID: "blog", URL: "http://blog.local", StealthLevel: "auto"}
	if err := InsertRule(ctx, db, other, RuleConfig{Selector: "article", Format: FormatHTML}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE watch_rules SET status = 'paused' WHERE page_id = 'blog'`); err != nil {
		t.Fatal(err)
	}

	pages, err := LoadPages(ctx, db)
	if err != nil {
		t.Fatalf("LoadPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages: got %d, want 1 (paused rule excluded)", len(pages))
	}
	p := pages[0]
	if p.ID != "shop" || p.SnapshotInterval != time.Minute {
		t.Errorf("page: got %+v", p)
	}
	if len(p.Rules) != 2 || !p.Rules[1].Once || !p.Rules[1].Sanitize {
		t.Errorf("rules: got %+v", p.Rules)
	}
}

func TestLoadPages_InvalidRow(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	_, err := db.Exec(`INSERT INTO watch_rules (page_id, url, selector, updated_at) VALUES ('x', 'http://x', 'p[', 1)`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = LoadPages(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "page x") {
		t.Fatalf("expected validation error for page x, got %v", err)
	}
}
