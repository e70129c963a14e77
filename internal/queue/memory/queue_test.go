package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

func testJob(t *testing.T, id string) *jobs.Job {
	t.Helper()
	op := jobs.Func{Desc: jobs.Descriptor{Manager: "demo", Method: "noop"}}
	b, err := jobs.Bind(op.Desc, nil)
	require.NoError(t, err)
	return jobs.NewJob(id, time.Unix(1, 0), jobs.Request{Operation: op}, b)
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan *jobs.Job, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	require.NoError(t, q.Enqueue(context.Background(), testJob(t, "job-1")))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "job-1", got.ID())
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), testJob(t, "primed")))
	require.Equal(t, 1, full.Len())
	err = full.Enqueue(ctx, testJob(t, "overflow"))
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), testJob(t, "queued")))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), testJob(t, "late")), ErrClosed)
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "queued", got.ID())
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
