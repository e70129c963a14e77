package catalog

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/progress"
)

// Builtin returns the demonstration operations served by the daemon.
func Builtin() []jobs.Operation {
	return []jobs.Operation{Sum(), Div(), Lines(), Count()}
}

// Sum adds two numbers.
func Sum() jobs.Operation {
	return jobs.Func{
		Desc: jobs.Descriptor{Manager: "math", Method: "sum", Params: []jobs.ParamKind{jobs.ParamValue, jobs.ParamValue}},
		Fn: func(_ context.Context, in *jobs.Input) (any, error) {
			a, b, err := twoFloats(in)
			if err != nil {
				return nil, err
			}
			return a + b, nil
		},
	}
}

// Div divides two numbers; dividing by zero is a domain error.
func Div() jobs.Operation {
	return jobs.Func{
		Desc: jobs.Descriptor{Manager: "math", Method: "div", Params: []jobs.ParamKind{jobs.ParamValue, jobs.ParamValue}},
		Fn: func(_ context.Context, in *jobs.Input) (any, error) {
			a, b, err := twoFloats(in)
			if err != nil {
				return nil, err
			}
			if b == 0 {
				return nil, jobs.NewDomainError("division by zero", nil)
			}
			return a / b, nil
		},
	}
}

func twoFloats(in *jobs.Input) (float64, float64, error) {
	a, err := jobs.ArgAs[float64](in, 0)
	if err != nil {
		return 0, 0, err
	}
	b, err := jobs.ArgAs[float64](in, 1)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// Lines streams the lines of a file as partial results. Its result is the
// list of lines. Long files are delivered on demand.
func Lines() jobs.Operation {
	return jobs.Func{
		Desc: jobs.Descriptor{
			Manager:       "text",
			Method:        "lines",
			Params:        []jobs.ParamKind{jobs.ParamFile, jobs.ParamSink},
			WantsProgress: true,
			Meta:          jobs.Metadata{SilentAfter: 5 * time.Second, Message: "Show lines"},
		},
		Fn: func(ctx context.Context, in *jobs.Input) (any, error) {
			f, err := jobs.ArgAs[jobs.File](in, 0)
			if err != nil {
				return nil, err
			}
			rc, err := f.Open(ctx)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", f.Name(), err)
			}
			defer rc.Close() //nolint:errcheck // read-only

			in.Progress.Begin("reading "+f.Name(), progress.Unknown)
			scanner := bufio.NewScanner(rc)
			for scanner.Scan() {
				if err := in.Progress.Checkpoint(); err != nil {
					return nil, err
				}
				in.Sink.Partial(scanner.Text())
				in.Progress.Worked(1)
			}
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name(), err)
			}
			return nil, nil
		},
	}
}

// Count counts to n, one step per interval, checking for cancellation
// between steps.
func Count() jobs.Operation {
	return jobs.Func{
		Desc: jobs.Descriptor{
			Manager:       "demo",
			Method:        "count",
			Params:        []jobs.ParamKind{jobs.ParamValue, jobs.ParamValue},
			WantsProgress: true,
			Meta:          jobs.Metadata{SilentAfter: 10 * time.Second, Message: "Show count"},
		},
		Fn: func(ctx context.Context, in *jobs.Input) (any, error) {
			n, err := jobs.ArgAs[int](in, 0)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, jobs.NewDomainError(fmt.Sprintf("cannot count to %d", n), nil)
			}
			ms, err := jobs.ArgAs[int](in, 1)
			if err != nil {
				return nil, err
			}
			step := time.Duration(ms) * time.Millisecond

			in.Progress.Begin("counting", n)
			timer := time.NewTimer(step)
			defer timer.Stop()
			for i := 1; i <= n; i++ {
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("count stopped at %d: %w", i-1, ctx.Err())
				case <-timer.C:
				}
				in.Progress.SubTask(fmt.Sprintf("%d of %d", i, n))
				in.Progress.Worked(1)
				timer.Reset(step)
			}
			return n, nil
		},
	}
}
