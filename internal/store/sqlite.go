package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"taxitrend/internal/util"
)

// Ledger writes are retried briefly: the batch tool and the server may share
// one database file.
const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// Compile-time interface check.
var _ RunLog = (*SQLiteStore)(nil)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS fetches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	period      TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	status_code INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	fetched_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS fetches_period ON fetches(period);
CREATE TABLE IF NOT EXISTS stages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL DEFAULT '',
	stage       TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT ''
);
`

// SQLiteStore implements RunLog backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// ledger tables, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return util.Retry(ctx, writeAttempts, writeBackoff, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// ---------------------------------------------------------------------------
// Fetches
// ---------------------------------------------------------------------------

// RecordFetch inserts the outcome of a period download.
func (s *SQLiteStore) RecordFetch(ctx context.Context, rec FetchRecord) error {
	return s.exec(ctx,
		`INSERT INTO fetches (period, url, status_code, attempts, error, fetched_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Period, rec.URL, rec.StatusCode, rec.Attempts, rec.Err, rec.FetchedAt.UnixMilli(),
	)
}

// ListFetches returns every recorded download of a period, oldest first.
func (s *SQLiteStore) ListFetches(ctx context.Context, period string) ([]FetchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, url, status_code, attempts, error, fetched_at FROM fetches WHERE period = ? ORDER BY id`,
		period,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FetchRecord
	for rows.Next() {
		var (
			rec FetchRecord
			ms  int64
		)
		if err := rows.Scan(&rec.Period, &rec.URL, &rec.StatusCode, &rec.Attempts, &rec.Err, &ms); err != nil {
			return nil, err
		}
		rec.FetchedAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

// RecordStage inserts the outcome of a pipeline stage.
func (s *SQLiteStore) RecordStage(ctx context.Context, rec StageRecord) error {
	return s.exec(ctx,
		`INSERT INTO stages (run_id, stage, started_at, finished_at, error) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.Stage, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.Err,
	)
}

// ListStages returns the most recent stage runs, newest first, up to limit.
func (s *SQLiteStore) ListStages(ctx context.Context, limit int) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, started_at, finished_at, error FROM stages ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var (
			rec             StageRecord
			started, finish int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Stage, &started, &finish, &rec.Err); err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finish).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
