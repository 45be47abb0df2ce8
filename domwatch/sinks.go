package domwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/domsel/dbopen"
	"github.com/hazyhaar/domsel/domwatch/internal/sink"
	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// Sink is the output interface for matches, batches and snapshots.
type Sink = sink.Sink

// LedgerSchema creates the tables of the SQLite ledger sink.
const LedgerSchema = sink.LedgerSchema

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink POSTs JSON envelopes to url with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewSQLiteSink records into db, which must carry LedgerSchema.
func NewSQLiteSink(db *sql.DB) *Ledger {
	return &Ledger{SQLite: sink.NewSQLite(db)}
}

// Ledger is the SQLite sink plus read access to what it recorded.
type Ledger struct {
	*sink.SQLite
	owned *sql.DB
}

// Close closes the database when the ledger opened it itself.
func (l *Ledger) Close() error {
	if l.owned != nil {
		return l.owned.Close()
	}
	return nil
}

// NewCallbackSink delivers to Go functions in the same process. Any
// function may be nil.
func NewCallbackSink(
	onMatch func(ctx context.Context, m mutation.Match) error,
	onBatch func(ctx context.Context, b mutation.Batch) error,
	onSnapshot func(ctx context.Context, s mutation.Snapshot) error,
) Sink {
	return &sink.Callback{OnMatch: onMatch, OnBatch: onBatch, OnSnapshot: onSnapshot}
}

// BuildSinks creates the sinks named by the configuration. SQLite sinks
// open (and later close) their own database file.
func BuildSinks(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	closeAll := func() {
		for _, s := range out {
			s.Close()
		}
	}
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, NewStdoutSink(nil))
		case "webhook":
			out = append(out, NewWebhookSink(c.URL, logger))
		case "sqlite":
			db, err := dbopen.Open(c.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(sink.LedgerSchema))
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("domwatch: sqlite sink: %w", err)
			}
			out = append(out, &Ledger{SQLite: sink.NewSQLite(db), owned: db})
		default:
			closeAll()
			return nil, errors.New("domwatch: unknown sink type " + c.Type)
		}
	}
	return out, nil
}
