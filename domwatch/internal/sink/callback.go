package sink

import (
	"context"

	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// Callback delivers to Go functions in the same process, without
// serialisation. Any field may be nil.
type Callback struct {
	OnBatch    func(ctx context.Context, b mutation.Batch) error
	OnMatch    func(ctx context.Context, m mutation.Match) error
	OnSnapshot func(ctx context.Context, s mutation.Snapshot) error
}

func (c *Callback) Send(ctx context.Context, b mutation.Batch) error {
	if c.OnBatch == nil {
		return nil
	}
	return c.OnBatch(ctx, b)
}

func (c *Callback) SendMatch(ctx context.Context, m mutation.Match) error {
	if c.OnMatch == nil {
		return nil
	}
	return c.OnMatch(ctx, m)
}

func (c *Callback) SendSnapshot(ctx context.Context, s mutation.Snapshot) error {
	if c.OnSnapshot == nil {
		return nil
	}
	return c.OnSnapshot(ctx, s)
}

func (c *Callback) Close() error { return nil }
