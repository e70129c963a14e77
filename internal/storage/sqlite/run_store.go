// Package sqlite provides a single-file run store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/jobcore/internal/jobs"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS job_runs (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    family       TEXT NOT NULL DEFAULT '',
    operation    TEXT NOT NULL,
    status       TEXT NOT NULL,
    submitted_at DATETIME NOT NULL,
    started_at   DATETIME,
    finished_at  DATETIME,
    error_text   TEXT NOT NULL DEFAULT '',
    partials     INTEGER NOT NULL DEFAULT 0,
    worked       INTEGER NOT NULL DEFAULT 0,
    total        INTEGER NOT NULL DEFAULT -1
)`

const runColumns = `id, name, family, operation, status, submitted_at, started_at, finished_at,
	error_text, partials, worked, total`

var _ jobs.RunStore = (*RunStore)(nil)
var _ jobs.ProgressWriter = (*RunStore)(nil)

// RunStore implements jobs.RunStore using SQLite.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and creates the schema.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000", createRunsTable} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
	}
	return &RunStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a pending run.
func (s *RunStore) CreateRun(ctx context.Context, run jobs.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, name, family, operation, status, submitted_at, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Family, run.Operation, string(run.Status), run.SubmittedAt.UTC(), run.Total,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus moves a run to status and stamps start and finish times.
func (s *RunStore) UpdateRunStatus(
	ctx context.Context,
	jobID string,
	status jobs.Status,
	errText string,
	partials int,
) error {
	now := s.now()
	var started, finished sql.NullTime
	if status == jobs.StatusRunning {
		started = sql.NullTime{Time: now, Valid: true}
	}
	if status.IsTerminal() {
		finished = sql.NullTime{Time: now, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs
		SET status = ?, error_text = ?, partials = ?,
			started_at = COALESCE(started_at, ?),
			finished_at = COALESCE(?, finished_at)
		WHERE id = ?`,
		string(status), errText, partials, started, finished, jobID,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	return nil
}

// RecordProgress stores the latest counters of a run.
func (s *RunStore) RecordProgress(ctx context.Context, jobID string, worked, total int64, _ time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET worked = ?, total = ? WHERE id = ?`, worked, total, jobID); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// GetRun retrieves a run by job ID.
func (s *RunStore) GetRun(ctx context.Context, jobID string) (jobs.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM job_runs WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Run{}, fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	if err != nil {
		return jobs.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *jobs.Status, limit, offset int) ([]jobs.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	var filter sql.NullString
	if status != nil {
		filter = sql.NullString{String: string(*status), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM job_runs
		WHERE (? IS NULL OR status = ?)
		ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`,
		filter, filter, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	runs := []jobs.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (jobs.Run, error) {
	var (
		run               jobs.Run
		status            string
		started, finished sql.NullTime
	)
	if err := row.Scan(
		&run.ID, &run.Name, &run.Family, &run.Operation, &status, &run.SubmittedAt,
		&started, &finished, &run.ErrorText, &run.Partials, &run.Worked, &run.Total,
	); err != nil {
		return jobs.Run{}, err
	}
	run.Status = jobs.Status(status)
	if started.Valid {
		t := started.Time
		run.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
