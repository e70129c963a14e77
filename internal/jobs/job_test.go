package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/result"
)

func sumOp() Operation {
	return Func{
		Desc: sumDescriptor(),
		Fn: func(_ context.Context, in *Input) (any, error) {
			a, err := ArgAs[int](in, 0)
			if err != nil {
				return nil, err
			}
			b, err := ArgAs[int](in, 1)
			if err != nil {
				return nil, err
			}
			return a + b, nil
		},
	}
}

func newTestJob(t *testing.T, req Request) *Job {
	t.Helper()
	b, err := Bind(req.Operation.Descriptor(), req.Args)
	require.NoError(t, err)
	return NewJob("job-1", time.Unix(100, 0), req, b)
}

func TestJob_DefaultsFromRequest(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	require.Equal(t, "math.sum", job.Name())
	require.Equal(t, StatusPending, job.State())
	require.NotNil(t, job.Progress())
	require.Nil(t, job.Hook())
	require.Nil(t, job.UI())
}

func TestJob_ResultBeforeTerminalIsStateError(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	_, err := job.Result()
	require.ErrorIs(t, err, ErrNotTerminal)

	require.True(t, job.MarkRunning(time.Unix(101, 0)))
	_, err = job.Result()
	require.ErrorIs(t, err, ErrNotTerminal)

	require.True(t, job.Finish(Success(5), time.Unix(102, 0)))
	for i := 0; i < 3; i++ {
		v, err := job.Result()
		require.NoError(t, err)
		require.Equal(t, 5, v)
	}
	require.Equal(t, StatusSucceeded, job.State())
}

func TestJob_FinishOnlyOnce(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	require.True(t, job.MarkRunning(time.Unix(101, 0)))
	require.False(t, job.MarkRunning(time.Unix(101, 0)))
	require.False(t, job.Finish(Outcome{}, time.Unix(102, 0)))
	require.True(t, job.Finish(Failed(errors.New("boom")), time.Unix(102, 0)))
	require.False(t, job.Finish(Success(1), time.Unix(103, 0)))

	_, err := job.Result()
	require.EqualError(t, err, "boom")
	require.Equal(t, StatusFailed, job.State())
	require.Equal(t, time.Unix(102, 0), job.Finished())
}

func TestJob_CancelPendingNeverRuns(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	require.True(t, job.Cancel(time.Unix(101, 0)))

	require.Equal(t, StatusCancelled, job.State())
	require.False(t, job.MarkRunning(time.Unix(102, 0)))
	require.True(t, job.Started().IsZero())
	require.True(t, job.Progress().IsCancelled())
	require.True(t, job.Progress().IsDone())

	_, err := job.Join(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	require.False(t, job.Cancel(time.Unix(103, 0)))
}

func TestJob_CancelPendingTokenDoneBeforeTerminal(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	var updates []progress.Update
	var states []Status
	job.Progress().AddListener(func(u progress.Update) {
		updates = append(updates, u)
		states = append(states, job.State())
	})

	require.True(t, job.Cancel(time.Unix(101, 0)))
	require.Len(t, updates, 2)
	for i, u := range updates {
		if !u.Done {
			require.False(t, states[i].IsTerminal(), "job read as %s before its token was done", states[i])
		}
	}
	require.False(t, job.MarkRunning(time.Unix(102, 0)))
	require.Equal(t, StatusCancelled, job.State())
	out, terminal := job.Outcome()
	require.True(t, terminal)
	require.Equal(t, OutcomeCancelled, out.Kind)
}

func TestJob_CancelRunningTripsToken(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	require.True(t, job.MarkRunning(time.Unix(101, 0)))
	require.True(t, job.Cancel(time.Unix(102, 0)))

	require.Equal(t, StatusRunning, job.State())
	require.ErrorIs(t, job.Progress().Checkpoint(), ErrCancelled)
}

func TestJob_JoinHonoursContext(t *testing.T) {
	t.Parallel()

	job := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(2), Value(3)}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := job.Join(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJob_RequestSinkFillsSlotOrBecomesHook(t *testing.T) {
	t.Parallel()

	caller := result.NewCollector()
	lines := Func{Desc: linesDescriptor()}
	withSlot := newTestJob(t, Request{Operation: lines, Args: []Arg{Path("a.txt")}, Sink: caller})
	require.Same(t, caller, withSlot.Binding().Args[1].Sink())
	require.Nil(t, withSlot.Hook())

	direct := newTestJob(t, Request{Operation: sumOp(), Args: []Arg{Value(1), Value(2)}, Sink: caller})
	require.NotNil(t, direct.Hook())
	direct.Hook().OnComplete(3)
	v, ok := caller.Final()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestCancelledBy(t *testing.T) {
	t.Parallel()

	idle := progress.NewToken(context.Background())
	cancelled := progress.NewToken(context.Background())
	cancelled.Cancel()

	tests := []struct {
		name string
		err  error
		tok  *progress.Token
		want bool
	}{
		{name: "checkpoint error", err: fmt.Errorf("stop: %w", ErrCancelled), tok: idle, want: true},
		{name: "context canceled after token cancel", err: context.Canceled, tok: cancelled, want: true},
		{name: "own context canceled", err: fmt.Errorf("inner: %w", context.Canceled), tok: idle, want: false},
		{name: "no token", err: context.Canceled, tok: nil, want: false},
		{name: "plain failure", err: errors.New("boom"), tok: cancelled, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, CancelledBy(tt.err, tt.tok))
		})
	}
}
