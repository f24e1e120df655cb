package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/capture/internal/sink"
	"github.com/hazyhaar/evidence/idgen"
	"github.com/hazyhaar/evidence/kit"
)

// ErrAborted wraps the error of the target that stopped an abort-policy
// batch.
var ErrAborted = errors.New("capture: batch aborted")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Sequencer *Sequencer
	Store     *Store
	Sink      Sink // nil = no sinks
	Policy    artifact.Policy
	Manifest  string // reported only
	NewRunID  idgen.Generator
	Logger    *slog.Logger
}

// Runner captures targets one after another in manifest order.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a Runner. The default policy is abort.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Policy == "" {
		cfg.Policy = artifact.PolicyAbort
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.NewRouter(cfg.Logger)
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = idgen.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}
}

// Run creates the output directories, then captures each target. Under
// the abort policy the first failure stops the batch and the partial
// report is returned with an error wrapping ErrAborted. Under continue
// every target is attempted and the error is nil; failures are in the
// report.
func (r *Runner) Run(ctx context.Context, targets []Target) (*artifact.Report, error) {
	report := &artifact.Report{
		RunID:     r.cfg.NewRunID(),
		Manifest:  r.cfg.Manifest,
		Policy:    r.cfg.Policy,
		Targets:   len(targets),
		StartedAt: time.Now(),
		Outcomes:  []artifact.Outcome{},
	}
	ctx = kit.WithRunID(ctx, report.RunID)
	log := r.cfg.Logger.With("run_id", report.RunID)

	if err := r.cfg.Store.Prepare(); err != nil {
		return report, err
	}
	if err := r.cfg.Sink.StartRun(ctx, *report); err != nil {
		log.Warn("capture: sink start run failed", "error", err)
	}
	log.Info("capture: run started", "targets", len(targets), "policy", r.cfg.Policy)

	var runErr error
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			runErr = fmt.Errorf("%w: %w", ErrAborted, err)
			break
		}

		outcome, err := r.cfg.Sequencer.Capture(ctx, report.RunID, i, t)
		report.Outcomes = append(report.Outcomes, outcome)
		if serr := r.cfg.Sink.SendOutcome(ctx, outcome); serr != nil {
			log.Warn("capture: sink send outcome failed", "error", serr)
		}

		if err != nil {
			log.Error("capture: target failed", "url", t.URL, "step", outcome.Step, "error", err)
			if r.cfg.Policy == artifact.PolicyAbort {
				report.Aborted = true
				runErr = fmt.Errorf("%w: %w", ErrAborted, err)
				break
			}
			continue
		}
		log.Info("capture: target done", "url", t.URL,
			"requests", outcome.Requests, "responses", outcome.Responses, "dropped", outcome.Dropped)
	}

	report.FinishedAt = time.Now()
	// The run is stamped even when ctx was cancelled.
	if err := r.cfg.Sink.FinishRun(context.WithoutCancel(ctx), *report); err != nil {
		log.Warn("capture: sink finish run failed", "error", err)
	}
	log.Info("capture: run finished", "outcomes", len(report.Outcomes),
		"failed", report.Failed(), "aborted", report.Aborted)
	return report, runErr
}
