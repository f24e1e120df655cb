package sink

import (
	"context"

	"github.com/hazyhaar/evidence/capture/artifact"
)

// OutcomeFunc is called for each finished target.
type OutcomeFunc func(ctx context.Context, o artifact.Outcome) error

// DropFunc is called for each dropped network record.
type DropFunc func(ctx context.Context, d artifact.Drop) error

// ReportFunc is called when a run finishes.
type ReportFunc func(ctx context.Context, run artifact.Report) error

// Callback delivers the run lifecycle as Go function calls, for callers
// embedding the capture service in the same binary.
type Callback struct {
	onOutcome OutcomeFunc
	onDrop    DropFunc
	onFinish  ReportFunc
}

// NewCallback creates a Callback sink. Any handler may be nil.
func NewCallback(onOutcome OutcomeFunc, onDrop DropFunc, onFinish ReportFunc) *Callback {
	return &Callback{onOutcome: onOutcome, onDrop: onDrop, onFinish: onFinish}
}

func (c *Callback) StartRun(context.Context, artifact.Report) error { return nil }

func (c *Callback) SendOutcome(ctx context.Context, o artifact.Outcome) error {
	if c.onOutcome != nil {
		return c.onOutcome(ctx, o)
	}
	return nil
}

func (c *Callback) SendDrop(ctx context.Context, d artifact.Drop) error {
	if c.onDrop != nil {
		return c.onDrop(ctx, d)
	}
	return nil
}

func (c *Callback) FinishRun(ctx context.Context, run artifact.Report) error {
	if c.onFinish != nil {
		return c.onFinish(ctx, run)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
