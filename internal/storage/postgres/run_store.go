// Package postgres provides the Postgres-backed run store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for job runs.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore persists job runs in Postgres. It implements jobs.RunStore and
// jobs.ProgressWriter.
type RunStore struct {
	pool  Pool
	table string
	now   func() time.Time
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "job_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	family       TEXT NOT NULL DEFAULT '',
	operation    TEXT NOT NULL,
	status       TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	error_text   TEXT NOT NULL DEFAULT '',
	partials     INTEGER NOT NULL DEFAULT 0,
	worked       BIGINT NOT NULL DEFAULT 0,
	total        BIGINT NOT NULL DEFAULT -1
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// CreateRun inserts a pending run.
func (s *RunStore) CreateRun(ctx context.Context, run jobs.Run) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, family, operation, status, submitted_at, total)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Name, run.Family, run.Operation, string(run.Status), run.SubmittedAt, run.Total)
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
	var started, finished *time.Time
	if status == jobs.StatusRunning {
		started = &now
	}
	if status.IsTerminal() {
		finished = &now
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1,
	error_text = $2,
	partials = $3,
	started_at = COALESCE(started_at, $4),
	finished_at = COALESCE($5, finished_at)
WHERE id = $6`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(status), errText, partials, started, finished, jobID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	return nil
}

// RecordProgress stores the latest counters of a run.
func (s *RunStore) RecordProgress(ctx context.Context, jobID string, worked, total int64, _ time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET worked = $1, total = $2 WHERE id = $3`, s.table)
	if _, err := s.pool.Exec(ctx, query, worked, total, jobID); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

const runColumns = `id, name, family, operation, status, submitted_at, started_at, finished_at,
	error_text, partials, worked, total`

// GetRun retrieves a single run by job ID.
func (s *RunStore) GetRun(ctx context.Context, jobID string) (jobs.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Run{}, fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
		}
		return jobs.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *jobs.Status, limit, offset int) ([]jobs.Run, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY submitted_at DESC, id DESC
LIMIT $2 OFFSET $3`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []jobs.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (jobs.Run, error) {
	var (
		run    jobs.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.Family,
		&run.Operation,
		&status,
		&run.SubmittedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&run.ErrorText,
		&run.Partials,
		&run.Worked,
		&run.Total,
	)
	run.Status = jobs.Status(status)
	return run, err
}
