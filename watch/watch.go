// Package watch polls a SQLite database for a version token and runs a
// reload action when it moves. domwatch uses it to hot-reload the
// watch_rules table without restarting the browser.
//
//	w := watch.New(db, watch.Options{Detector: watch.TableVersion("watch_rules", "updated_at")})
//	go w.Run(ctx, func(ctx context.Context) error { return watcher.Reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Detector reads a version token. Two different tokens mean the watched
// data changed.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the polling loop.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes inside the window restart it. 0 fires immediately.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector Detector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs one polling loop.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64
	reloads atomic.Int64
	errors  atomic.Int64
}

// New creates a Watcher. Call Run to start polling.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Version returns the last version the action succeeded for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Reloads returns how many times the action succeeded.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Errors returns how many detector or action calls failed.
func (w *Watcher) Errors() int64 { return w.errors.Load() }

// Run blocks until ctx is done. The first token is taken as the baseline
// and does not fire the action. When action fails the version is kept, so
// the next poll retries it.
func (w *Watcher) Run(ctx context.Context, action func(ctx context.Context) error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		w.errors.Add(1)
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int64
		waiting bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug("watch: stopped")
			return

		case <-ticker.C:
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || (waiting && cur == pending) {
				continue
			}
			pending, waiting = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				waiting = false
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.opts.Debounce)
			timerC = timer.C
			log.Debug("watch: change detected", "pending_version", cur)

		case <-timerC:
			timerC = nil
			if waiting {
				w.fire(ctx, action, pending)
				waiting = false
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, ver int64) {
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: reload failed", "version", ver, "error", err)
		return
	}
	w.reloads.Add(1)
	w.version.Store(ver)
	w.opts.Logger.Info("watch: reloaded", "version", ver, "duration", time.Since(start))
}

// PragmaDataVersion changes whenever another connection commits to the
// database file. Writes made on the polling connection itself are invisible.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// TableVersion combines MAX(column) and COUNT(*) of table, so both edits
// that bump column and deletions move the token. column must hold an
// integer such as a unix timestamp.
func TableVersion(table, column string) Detector {
	q := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0), COUNT(*) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var maxv, n int64
		if err := db.QueryRowContext(ctx, q).Scan(&maxv, &n); err != nil {
			return 0, err
		}
		return maxv*1_000_003 + n, nil
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
