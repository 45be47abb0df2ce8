// Package config loads domwatch configuration from a YAML file or from the
// watch_rules SQLite table.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domsel/selector"
)

// Rule output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatNone     = "none"
)

// Config is the top-level domwatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Debounce DebounceConfig `yaml:"debounce"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	HTTP     HTTPConfig     `yaml:"http"`
	// RulesDB, when set, is an SQLite file whose watch_rules table adds
	// pages on top of Pages and is hot-reloaded.
	RulesDB string `yaml:"rules_db"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig is one page and the rules watched on it.
type PageConfig struct {
	ID           string `yaml:"id" json:"id"`
	URL          string `yaml:"url" json:"url"`
	StealthLevel string `yaml:"stealth_level" json:"stealth_level"` // 0 | 1 | 2 | auto
	// Root is a CSS selector for the observed subtree. Empty means body.
	Root             string        `yaml:"root" json:"root,omitempty"`
	Rules            []RuleConfig  `yaml:"rules" json:"rules"`
	Record           bool          `yaml:"record" json:"record,omitempty"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" json:"snapshot_interval,omitempty"`
}

// RuleConfig is one selector subscription on a page.
type RuleConfig struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
	// Once delivers only the first matching element.
	Once     bool   `yaml:"once" json:"once,omitempty"`
	Format   string `yaml:"format" json:"format,omitempty"` // html | markdown | none
	Sanitize bool   `yaml:"sanitize" json:"sanitize,omitempty"`
}

// DebounceConfig controls mutation batching for recorded pages.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // webhook
	Path string `yaml:"path"` // sqlite
}

// HTTPConfig enables the management API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// MCPQuicAddr serves the MCP tools over QUIC on a UDP address. Without
	// a key pair a self-signed localhost certificate is generated.
	MCPQuicAddr string `yaml:"mcp_quic_addr"`
	TLSCert     string `yaml:"tls_cert"`
	TLSKey      string `yaml:"tls_key"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Pages {
		c.Pages[i].ApplyDefaults()
	}
}

// ApplyDefaults fills the optional fields of a page and its rules.
func (p *PageConfig) ApplyDefaults() {
	if p.StealthLevel == "" {
		p.StealthLevel = "auto"
	}
	if p.SnapshotInterval <= 0 {
		p.SnapshotInterval = 4 * time.Hour
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.Format == "" {
			r.Format = FormatHTML
		}
		if r.Name == "" {
			r.Name = r.Selector
		}
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for i := range c.Pages {
		p := &c.Pages[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		return errors.New("config: http.tls_cert and http.tls_key go together")
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return errors.New("config: webhook sink needs url")
			}
		case "sqlite":
			if s.Path == "" {
				return errors.New("config: sqlite sink needs path")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}

// Validate checks one page. Selectors are compiled so that a typo fails
// at load time rather than when the page is opened.
func (p *PageConfig) Validate() error {
	if p.ID == "" {
		return errors.New("config: page without id")
	}
	if p.URL == "" {
		return fmt.Errorf("config: page %s: empty url", p.ID)
	}
	switch p.StealthLevel {
	case "0", "1", "2", "auto":
	default:
		return fmt.Errorf("config: page %s: bad stealth_level %q", p.ID, p.StealthLevel)
	}
	if p.Root != "" {
		if _, err := selector.Compile(p.Root); err != nil {
			return fmt.Errorf("config: page %s: root: %w", p.ID, err)
		}
	}
	if len(p.Rules) == 0 && !p.Record {
		return fmt.Errorf("config: page %s: no rules and record disabled", p.ID)
	}
	for _, r := range p.Rules {
		if _, err := selector.Compile(r.Selector); err != nil {
			return fmt.Errorf("config: page %s: rule %s: %w", p.ID, r.Name, err)
		}
		switch r.Format {
		case FormatHTML, FormatMarkdown, FormatNone:
		default:
			return fmt.Errorf("config: page %s: rule %s: bad format %q", p.ID, r.Name, r.Format)
		}
	}
	return nil
}
