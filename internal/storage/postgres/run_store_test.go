package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

var columns = []string{
	"id", "name", "family", "operation", "status", "submitted_at", "started_at", "finished_at",
	"error_text", "partials", "worked", "total",
}

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewRunStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	submitted := time.Unix(1_700_000_000, 0).UTC()
	run := jobs.Run{
		ID:          "0190b6f0-0000-7000-8000-000000000001",
		Name:        "math.sum",
		Family:      "math",
		Operation:   "math.sum",
		Status:      jobs.StatusPending,
		SubmittedAt: submitted,
		Total:       -1,
	}

	mock.ExpectExec("INSERT INTO job_runs").
		WithArgs(run.ID, run.Name, run.Family, run.Operation, "pending", submitted, int64(-1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatusUnknownRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE job_runs").
		WithArgs("failed", "boom", 2, pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRunStatus(context.Background(), "missing", jobs.StatusFailed, "boom", 2)
	require.ErrorIs(t, err, jobs.ErrUnknownJob)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatusStampsTimes(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1_700_000_100, 0).UTC()
	store.now = func() time.Time { return now }

	mock.ExpectExec("UPDATE job_runs").
		WithArgs("running", "", 0, &now, (*time.Time)(nil), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE job_runs").
		WithArgs("succeeded", "", 3, (*time.Time)(nil), &now, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.UpdateRunStatus(ctx, "job-1", jobs.StatusRunning, "", 0))
	require.NoError(t, store.UpdateRunStatus(ctx, "job-1", jobs.StatusSucceeded, "", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProgress(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE job_runs SET worked").
		WithArgs(int64(4), int64(10), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordProgress(context.Background(), "job-1", 4, 10, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	submitted := time.Unix(1_700_000_000, 0).UTC()
	rows := pgxmock.NewRows(columns).
		AddRow("job-1", "count", "demo", "demo.count", "running", submitted, nil, nil, "", 0, int64(2), int64(5))
	mock.ExpectQuery("SELECT (.+) FROM job_runs WHERE id").WithArgs("job-1").WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, jobs.StatusRunning, run.Status)
	require.Equal(t, "demo.count", run.Operation)
	require.Equal(t, int64(2), run.Worked)
	require.Nil(t, run.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM job_runs WHERE id").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, jobs.ErrUnknownJob)
}

func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	submitted := time.Unix(1_700_000_000, 0).UTC()
	failed := jobs.StatusFailed
	status := "failed"
	rows := pgxmock.NewRows(columns).
		AddRow("job-2", "div", "", "math.div", "failed", submitted, nil, nil, "division by zero", 0, int64(0), int64(-1))
	mock.ExpectQuery("SELECT (.+) FROM job_runs").WithArgs(&status, 100, 0).WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), &failed, 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "division by zero", runs[0].ErrorText)
	require.NoError(t, mock.ExpectationsWereMet())
}
