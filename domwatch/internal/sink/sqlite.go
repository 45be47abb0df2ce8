package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// LedgerSchema holds every match, batch and snapshot written by SQLite.
const LedgerSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id              TEXT PRIMARY KEY,
	subscription_id TEXT NOT NULL,
	page_id         TEXT NOT NULL,
	page_url        TEXT NOT NULL,
	rule            TEXT NOT NULL,
	selector        TEXT NOT NULL,
	xpath           TEXT NOT NULL,
	tag             TEXT NOT NULL,
	html            TEXT,
	markdown        TEXT,
	source          TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	ts              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_page ON matches(page_id, ts);

CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	page_id      TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	payload      BLOB NOT NULL,
	snapshot_ref TEXT,
	ts           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id        TEXT PRIMARY KEY,
	page_id   TEXT NOT NULL,
	page_url  TEXT NOT NULL,
	html      BLOB NOT NULL,
	html_hash TEXT NOT NULL,
	ts        INTEGER NOT NULL
);
`

// SQLite is a ledger sink. The database must already carry LedgerSchema
// (dbopen.WithSchema). Redelivered IDs are ignored.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps db. Close does not close db; its owner does.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) SendMatch(ctx context.Context, m mutation.Match) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO matches (id, subscription_id, page_id, page_url, rule, selector,
		                               xpath, tag, html, markdown, source, seq, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SubscriptionID, m.PageID, m.PageURL, m.Rule, m.Selector,
		m.XPath, m.Tag, m.HTML, m.Markdown, string(m.Source), m.Seq, m.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert match: %w", err)
	}
	return nil
}

func (s *SQLite) Send(ctx context.Context, b mutation.Batch) error {
	payload, err := mutation.MarshalBatch(&b)
	if err != nil {
		return fmt.Errorf("sqlite sink: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO batches (id, page_id, seq, payload, snapshot_ref, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.PageID, b.Seq, payload, b.SnapshotRef, b.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert batch: %w", err)
	}
	return nil
}

func (s *SQLite) SendSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshots (id, page_id, page_url, html, html_hash, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PageID, snap.PageURL, snap.HTML, snap.HTMLHash, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return nil }

// Matches lists the recorded matches of a page, oldest first.
func (s *SQLite) Matches(ctx context.Context, pageID string) ([]mutation.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, page_id, page_url, rule, selector,
		       xpath, tag, COALESCE(html, ''), COALESCE(markdown, ''), source, seq, ts
		FROM matches WHERE page_id = ? ORDER BY ts, seq`, pageID)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query matches: %w", err)
	}
	defer rows.Close()

	var out []mutation.Match
	for rows.Next() {
		var m mutation.Match
		var src string
		if err := rows.Scan(&m.ID, &m.SubscriptionID, &m.PageID, &m.PageURL, &m.Rule, &m.Selector,
			&m.XPath, &m.Tag, &m.HTML, &m.Markdown, &src, &m.Seq, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan match: %w", err)
		}
		m.Source = mutation.Source(src)
		out = append(out, m)
	}
	return out, rows.Err()
}
