package domwatch

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/domsel/domwatch/internal/config"
)

// Configuration types, re-exported from internal/config.
type (
	Config         = config.Config
	BrowserConfig  = config.BrowserConfig
	PageConfig     = config.PageConfig
	RuleConfig     = config.RuleConfig
	DebounceConfig = config.DebounceConfig
	SinkConfig     = config.SinkConfig
	HTTPConfig     = config.HTTPConfig
)

// Rule output formats.
const (
	FormatHTML     = config.FormatHTML
	FormatMarkdown = config.FormatMarkdown
	FormatNone     = config.FormatNone
)

// RulesSchema creates the watch_rules table.
const RulesSchema = config.Schema

// LoadConfigFile reads and validates a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig reads and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// LoadRules reads the active pages of the watch_rules table.
func LoadRules(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	return config.LoadPages(ctx, db)
}

// AddRule inserts one rule row for page.
func AddRule(ctx context.Context, db *sql.DB, page PageConfig, rule RuleConfig) error {
	return config.InsertRule(ctx, db, page, rule)
}

// WatchRules runs until ctx is done, calling w.Reload with the file pages
// plus the watch_rules pages whenever the table changes.
func WatchRules(ctx context.Context, db *sql.DB, w *Watcher, filePages []PageConfig, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	config.WatchRules(db, logger).Run(ctx, func(ctx context.Context) error {
		pages, err := config.LoadPages(ctx, db)
		if err != nil {
			return err
		}
		return w.Reload(ctx, mergePages(filePages, pages))
	})
}

// mergePages appends db pages to file pages; a file page wins on ID clash.
func mergePages(file, db []PageConfig) []PageConfig {
	out := append([]PageConfig(nil), file...)
	seen := make(map[string]bool, len(file))
	for _, p := range file {
		seen[p.ID] = true
	}
	for _, p := range db {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
