package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/domsel/domwatch/mutation"
)

// Router fans out to every sink. A failing sink does not stop delivery
// to the others; all errors are logged and joined.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, b mutation.Batch) error {
	return r.each("batch", func(s Sink) error { return s.Send(ctx, b) })
}

func (r *Router) SendMatch(ctx context.Context, m mutation.Match) error {
	return r.each("match", func(s Sink) error { return s.SendMatch(ctx, m) })
}

func (r *Router) SendSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	return r.each("snapshot", func(s Sink) error { return s.SendSnapshot(ctx, snap) })
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) each(kind string, fn func(Sink) error) error {
	var errs []error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: send failed", "kind", kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
