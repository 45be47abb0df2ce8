// Package sink defines output backends for domwatch matches, mutation
// batches and snapshots.
package sink

import (
	"context"

	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// Sink is the output interface. Implementations deliver to stdout, a
// webhook, an SQLite ledger or an in-process callback.
type Sink interface {
	Send(ctx context.Context, batch mutation.Batch) error
	SendMatch(ctx context.Context, m mutation.Match) error
	SendSnapshot(ctx context.Context, snap mutation.Snapshot) error
	Close() error
}

// envelope tags JSON payloads for stdout and webhook consumers.
type envelope struct {
	Type string `json:"type"` // batch | match | snapshot
	Data any    `json:"data"`
}
