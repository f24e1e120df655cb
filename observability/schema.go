package observability

import "database/sql"

// Schema is the DDL for the run ledger. Init applies it; dbopen.WithSchema
// accepts it as well.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_runs (
    run_id       TEXT PRIMARY KEY,
    policy       TEXT NOT NULL,
    manifest     TEXT NOT NULL DEFAULT '',
    target_count INTEGER NOT NULL,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER,
    aborted      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS capture_targets (
    entry_id     TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    url          TEXT NOT NULL,
    mention_id   TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    step         TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    screenshots  TEXT NOT NULL DEFAULT '[]',
    requests     INTEGER NOT NULL DEFAULT 0,
    responses    INTEGER NOT NULL DEFAULT 0,
    dropped      INTEGER NOT NULL DEFAULT 0,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_targets_run
    ON capture_targets(run_id, seq);

CREATE TABLE IF NOT EXISTS dropped_records (
    drop_id     TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    target_url  TEXT NOT NULL,
    kind        TEXT NOT NULL,
    url         TEXT NOT NULL,
    reason      TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dropped_records_run
    ON dropped_records(run_id, created_at);
`

// Init creates the ledger tables if they do not exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
