package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/evidence/capture/artifact"
)

// Router fans out to all configured sinks. One sink error does not block
// the others: errors are logged and the first encountered is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len reports how many sinks the router delivers to.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) StartRun(ctx context.Context, run artifact.Report) error {
	return r.each("start run", func(s Sink) error { return s.StartRun(ctx, run) })
}

func (r *Router) SendOutcome(ctx context.Context, o artifact.Outcome) error {
	return r.each("send outcome", func(s Sink) error { return s.SendOutcome(ctx, o) })
}

func (r *Router) SendDrop(ctx context.Context, d artifact.Drop) error {
	return r.each("send drop", func(s Sink) error { return s.SendDrop(ctx, d) })
}

func (r *Router) FinishRun(ctx context.Context, run artifact.Report) error {
	return r.each("finish run", func(s Sink) error { return s.FinishRun(ctx, run) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) each(op string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: "+op+" failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
