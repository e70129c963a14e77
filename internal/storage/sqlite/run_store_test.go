package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

func openStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	run := jobs.Run{
		ID:          "job-1",
		Name:        "lines",
		Family:      "text",
		Operation:   "text.lines",
		Status:      jobs.StatusPending,
		SubmittedAt: now.Add(-time.Minute),
		Total:       -1,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run))

	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, jobs.StatusRunning, "", 0))
	require.NoError(t, store.RecordProgress(ctx, run.ID, 2, 4, now))
	now = now.Add(time.Second)
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, jobs.StatusSucceeded, "", 4))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusSucceeded, got.Status)
	require.Equal(t, "text", got.Family)
	require.Equal(t, 4, got.Partials)
	require.Equal(t, int64(2), got.Worked)
	require.Equal(t, int64(4), got.Total)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	require.True(t, got.StartedAt.Before(*got.FinishedAt))
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, jobs.ErrUnknownJob)
	err = store.UpdateRunStatus(context.Background(), "missing", jobs.StatusCancelled, "", 0)
	require.ErrorIs(t, err, jobs.ErrUnknownJob)
}

func TestRunStoreList(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateRun(ctx, jobs.Run{
			ID: id, Name: id, Operation: "math.sum", Status: jobs.StatusPending,
			SubmittedAt: base.Add(time.Duration(i) * time.Hour), Total: -1,
		}))
	}
	require.NoError(t, store.UpdateRunStatus(ctx, "b", jobs.StatusFailed, "boom", 0))

	all, err := store.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].ID)

	failed := jobs.StatusFailed
	only, err := store.ListRuns(ctx, &failed, 10, 0)
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Equal(t, "boom", only[0].ErrorText)
}
