package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domsel/watch"
)

// Schema for the watch_rules table. One row per rule; page columns repeat
// and the first row of a page wins.
const Schema = `
CREATE TABLE IF NOT EXISTS watch_rules (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id              TEXT NOT NULL,
	url                  TEXT NOT NULL,
	stealth_level        TEXT NOT NULL DEFAULT 'auto',
	root                 TEXT NOT NULL DEFAULT '',
	name                 TEXT NOT NULL DEFAULT '',
	selector             TEXT NOT NULL,
	once                 INTEGER NOT NULL DEFAULT 0,
	format               TEXT NOT NULL DEFAULT 'html',
	sanitize             INTEGER NOT NULL DEFAULT 0,
	snapshot_interval_ms INTEGER NOT NULL DEFAULT 14400000,
	status               TEXT NOT NULL DEFAULT 'active',
	updated_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watch_rules_page ON watch_rules(page_id);
`

// LoadPages reads active rules and groups them into pages, in first-seen
// order. Every page is defaulted and validated.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT page_id, url, stealth_level, root, name, selector,
		       once, format, sanitize, snapshot_interval_ms
		FROM watch_rules
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load rules: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	index := make(map[string]int)
	for rows.Next() {
		var (
			p              PageConfig
			r              RuleConfig
			once, sanitize int
			snapMs         int64
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.StealthLevel, &p.Root,
			&r.Name, &r.Selector, &once, &r.Format, &sanitize, &snapMs); err != nil {
			return nil, fmt.Errorf("config: scan rule: %w", err)
		}
		r.Once = once != 0
		r.Sanitize = sanitize != 0

		i, ok := index[p.ID]
		if !ok {
			p.SnapshotInterval = time.Duration(snapMs) * time.Millisecond
			pages = append(pages, p)
			i = len(pages) - 1
			index[p.ID] = i
		}
		pages[i].Rules = append(pages[i].Rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: load rules: %w", err)
	}

	for i := range pages {
		pages[i].ApplyDefaults()
		if err := pages[i].Validate(); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

// InsertRule adds one active rule row for page.
func InsertRule(ctx context.Context, db *sql.DB, page PageConfig, r RuleConfig) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO watch_rules (page_id, url, stealth_level, root, name, selector,
		                         once, format, sanitize, snapshot_interval_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		page.ID, page.URL, page.StealthLevel, page.Root, r.Name, r.Selector,
		boolInt(r.Once), r.Format, boolInt(r.Sanitize),
		page.SnapshotInterval.Milliseconds(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: insert rule: %w", err)
	}
	return nil
}

// WatchRules returns a watcher that fires when watch_rules changes, either
// from this process or another one.
func WatchRules(db *sql.DB, logger *slog.Logger) *watch.Watcher {
	return watch.New(db, watch.Options{
		Interval: 200 * time.Millisecond,
		Debounce: 500 * time.Millisecond,
		Detector: watch.TableVersion("watch_rules", "updated_at"),
		Logger:   logger,
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
