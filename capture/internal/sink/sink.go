// Package sink defines report outputs for capture runs.
package sink

import (
	"context"

	"github.com/hazyhaar/evidence/capture/artifact"
)

// Sink receives the run lifecycle. StartRun gets the report before any
// outcome is known; FinishRun gets it complete. Implementations deliver to
// different backends (stdout, webhook, ledger, in-process callback).
type Sink interface {
	StartRun(ctx context.Context, run artifact.Report) error
	SendOutcome(ctx context.Context, o artifact.Outcome) error
	SendDrop(ctx context.Context, d artifact.Drop) error
	FinishRun(ctx context.Context, run artifact.Report) error
	Close() error
}
