// Package observability keeps the SQLite run ledger: one row per capture
// run, one per target outcome and one per network record the recorder had
// to drop. The ledger is an audit trail of what happened during a run; the
// evidence itself stays in the artifact files.
//
// Writes are fire-and-forget from the caller's point of view where noted:
// a failing ledger never stops a capture.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/evidence/dbopen"
	"github.com/hazyhaar/evidence/idgen"
)

// RunEntry is a capture_runs row.
type RunEntry struct {
	RunID       string
	Policy      string
	Manifest    string
	TargetCount int
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the run is in progress
	Aborted     bool
}

// TargetEntry is a capture_targets row.
type TargetEntry struct {
	EntryID     string
	RunID       string
	Seq         int
	URL         string
	MentionID   string
	Status      string // "ok" | "failed"
	Step        string // last state reached
	Error       string
	Title       string
	Screenshots []string
	Requests    int
	Responses   int
	Dropped     int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// DropEntry is a dropped_records row.
type DropEntry struct {
	DropID    string
	RunID     string
	TargetURL string
	Kind      string // "request" | "response"
	URL       string
	Reason    string
	CreatedAt time.Time
}

// Ledger persists run, target and drop rows.
type Ledger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithIDGenerator sets the generator for target and drop row IDs.
func WithIDGenerator(gen idgen.Generator) LedgerOption {
	return func(l *Ledger) { l.newID = gen }
}

// WithLogger sets the logger used for fire-and-forget failures.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger wraps an initialised database (see Init).
func NewLedger(db *sql.DB, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		db:     db,
		newID:  idgen.Default,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// StartRun inserts the run row.
func (l *Ledger) StartRun(ctx context.Context, run RunEntry) error {
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO capture_runs (run_id, policy, manifest, target_count, started_at)
		VALUES (?,?,?,?,?)`,
		run.RunID, run.Policy, run.Manifest, run.TargetCount, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger: start run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end and abort flag.
func (l *Ledger) FinishRun(ctx context.Context, runID string, finishedAt time.Time, aborted bool) error {
	_, err := dbopen.Exec(ctx, l.db, `
		UPDATE capture_runs SET finished_at = ?, aborted = ? WHERE run_id = ?`,
		finishedAt.UnixMilli(), aborted, runID)
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// RecordTarget inserts one target outcome.
func (l *Ledger) RecordTarget(ctx context.Context, e TargetEntry) error {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	shots, err := json.Marshal(e.Screenshots)
	if err != nil {
		return fmt.Errorf("ledger: marshal screenshots: %w", err)
	}
	if e.Screenshots == nil {
		shots = []byte("[]")
	}
	_, err = dbopen.Exec(ctx, l.db, `
		INSERT INTO capture_targets (
			entry_id, run_id, seq, url, mention_id, status, step, error, title,
			screenshots, requests, responses, dropped, started_at, finished_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.RunID, e.Seq, e.URL, e.MentionID, e.Status, e.Step, e.Error, e.Title,
		string(shots), e.Requests, e.Responses, e.Dropped,
		e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger: record target: %w", err)
	}
	return nil
}

// RecordDrop inserts a dropped-record row. Errors are logged, not returned:
// it is called from recorder handlers that must never fail.
func (l *Ledger) RecordDrop(ctx context.Context, e DropEntry) {
	if e.DropID == "" {
		e.DropID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO dropped_records (drop_id, run_id, target_url, kind, url, reason, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.DropID, e.RunID, e.TargetURL, e.Kind, e.URL, e.Reason, e.CreatedAt.UnixMilli())
	if err != nil {
		l.logger.Error("ledger: record drop failed", "error", err, "url", e.URL)
	}
}

// Run returns the run row, or nil when absent.
func (l *Ledger) Run(ctx context.Context, runID string) (*RunEntry, error) {
	var (
		r        RunEntry
		started  int64
		finished sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT run_id, policy, manifest, target_count, started_at, finished_at, aborted
		FROM capture_runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.Policy, &r.Manifest, &r.TargetCount, &started, &finished, &r.Aborted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &r, nil
}

// Targets lists a run's target outcomes in manifest order.
func (l *Ledger) Targets(ctx context.Context, runID string) ([]TargetEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, run_id, seq, url, mention_id, status, step, error, title,
		       screenshots, requests, responses, dropped, started_at, finished_at
		FROM capture_targets WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list targets: %w", err)
	}
	defer rows.Close()

	var out []TargetEntry
	for rows.Next() {
		var (
			e                 TargetEntry
			shots             string
			started, finished int64
		)
		if err := rows.Scan(&e.EntryID, &e.RunID, &e.Seq, &e.URL, &e.MentionID, &e.Status,
			&e.Step, &e.Error, &e.Title, &shots, &e.Requests, &e.Responses, &e.Dropped,
			&started, &finished); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(shots), &e.Screenshots)
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Drops lists a run's dropped records, oldest first.
func (l *Ledger) Drops(ctx context.Context, runID string) ([]DropEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT drop_id, run_id, target_url, kind, url, reason, created_at
		FROM dropped_records WHERE run_id = ? ORDER BY created_at, drop_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list drops: %w", err)
	}
	defer rows.Close()

	var out []DropEntry
	for rows.Next() {
		var (
			e  DropEntry
			ts int64
		)
		if err := rows.Scan(&e.DropID, &e.RunID, &e.TargetURL, &e.Kind, &e.URL, &e.Reason, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
