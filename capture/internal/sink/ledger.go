package sink

import (
	"context"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/observability"
)

// Ledger writes the run lifecycle to the SQLite run ledger.
type Ledger struct {
	l *observability.Ledger
}

// NewLedger wraps an observability ledger.
func NewLedger(l *observability.Ledger) *Ledger {
	return &Ledger{l: l}
}

func (s *Ledger) StartRun(ctx context.Context, run artifact.Report) error {
	return s.l.StartRun(ctx, observability.RunEntry{
		RunID:       run.RunID,
		Policy:      string(run.Policy),
		Manifest:    run.Manifest,
		TargetCount: run.Targets,
		StartedAt:   run.StartedAt,
	})
}

func (s *Ledger) SendOutcome(ctx context.Context, o artifact.Outcome) error {
	return s.l.RecordTarget(ctx, observability.TargetEntry{
		RunID:       o.RunID,
		Seq:         o.Seq,
		URL:         o.URL,
		MentionID:   o.MentionID,
		Status:      string(o.Status),
		Step:        string(o.Step),
		Error:       o.Error,
		Title:       o.Title,
		Screenshots: o.Screenshots,
		Requests:    o.Requests,
		Responses:   o.Responses,
		Dropped:     o.Dropped,
		StartedAt:   o.StartedAt,
		FinishedAt:  o.FinishedAt,
	})
}

func (s *Ledger) SendDrop(ctx context.Context, d artifact.Drop) error {
	s.l.RecordDrop(ctx, observability.DropEntry{
		RunID:     d.RunID,
		TargetURL: d.TargetURL,
		Kind:      d.Kind,
		URL:       d.URL,
		Reason:    d.Reason,
		CreatedAt: d.At,
	})
	return nil
}

func (s *Ledger) FinishRun(ctx context.Context, run artifact.Report) error {
	return s.l.FinishRun(ctx, run.RunID, run.FinishedAt, run.Aborted)
}

func (s *Ledger) Close() error { return nil }
