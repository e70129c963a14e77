package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/result"
)

// Continuation runs on the UI context with the job's fully resolved outcome.
type Continuation func(Outcome)

// Operation is a unit of work with a fixed parameter shape.
type Operation interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, in *Input) (any, error)
}

// Func adapts a function to Operation.
type Func struct {
	Desc Descriptor
	Fn   func(ctx context.Context, in *Input) (any, error)
}

// Descriptor returns f.Desc.
func (f Func) Descriptor() Descriptor { return f.Desc }

// Invoke calls f.Fn.
func (f Func) Invoke(ctx context.Context, in *Input) (any, error) {
	return f.Fn(ctx, in)
}

// Request describes a submission. Progress, Sink, Hook and UI are optional.
// Sink fills the operation's sink slot when Args leave it empty; for an
// operation without a sink slot it receives the return value as Complete.
type Request struct {
	Name      string
	Family    string
	Operation Operation
	Args      []Arg
	Progress  *progress.Token
	Sink      result.Sink
	Hook      result.Hook
	UI        Continuation
}

// Job is the scheduling unit and the caller's handle to it.
type Job struct {
	id        string
	name      string
	family    string
	submitted time.Time
	op        Operation
	binding   Binding
	token     *progress.Token
	hook      result.Hook
	ui        Continuation

	mu       sync.Mutex
	state    Status
	claimed  bool
	started  time.Time
	finished time.Time
	outcome  Outcome
	done     chan struct{}
}

// NewJob builds a pending job. The binding must come from Bind for req's operation.
func NewJob(id string, submitted time.Time, req Request, b Binding) *Job {
	name := req.Name
	if name == "" {
		name = req.Operation.Descriptor().Name()
	}
	ui := req.UI
	if ui == nil {
		ui = b.UI
	}
	token := req.Progress
	if token == nil {
		token = progress.NewToken(context.Background())
	}
	hook := req.Hook
	if req.Sink != nil {
		if b.SinkSlot >= 0 {
			if b.Args[b.SinkSlot].sink == nil {
				b.Args[b.SinkSlot] = SinkArg(req.Sink)
			}
		} else {
			hook = result.Compose(hook, result.SinkHook(req.Sink))
		}
	}
	return &Job{
		id:        id,
		name:      name,
		family:    req.Family,
		submitted: submitted,
		op:        req.Operation,
		binding:   b,
		token:     token,
		hook:      hook,
		ui:        ui,
		state:     StatusPending,
		done:      make(chan struct{}),
	}
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// Name returns the display name.
func (j *Job) Name() string { return j.name }

// Family returns the job family used for bulk cancellation.
func (j *Job) Family() string { return j.family }

// Submitted returns the submission time.
func (j *Job) Submitted() time.Time { return j.submitted }

// Operation returns the operation to run.
func (j *Job) Operation() Operation { return j.op }

// Binding returns the validated arguments.
func (j *Job) Binding() Binding { return j.binding }

// Progress returns the job's token.
func (j *Job) Progress() *progress.Token { return j.token }

// Hook returns the completion hook, possibly nil.
func (j *Job) Hook() result.Hook { return j.hook }

// UI returns the UI continuation, possibly nil.
func (j *Job) UI() Continuation { return j.ui }

// State returns the current status.
func (j *Job) State() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Started returns when the job began running; zero if it never ran.
func (j *Job) Started() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// Finished returns when the job reached a terminal state; zero before that.
func (j *Job) Finished() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// Done is closed once the job is terminal.
func (j *Job) Done() <-chan struct{} { return j.done }

// MarkRunning moves a pending job to running. It returns false when the job
// was cancelled or already picked up.
func (j *Job) MarkRunning(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatusPending || j.claimed {
		return false
	}
	j.state = StatusRunning
	j.started = now
	return true
}

// Finish stores the terminal outcome. Only the first call has an effect.
func (j *Job) Finish(out Outcome, now time.Time) bool {
	if !out.IsSet() {
		return false
	}
	j.mu.Lock()
	if j.state.IsTerminal() || j.claimed {
		j.mu.Unlock()
		return false
	}
	j.state = out.Status()
	j.outcome = out
	j.finished = now
	j.mu.Unlock()
	close(j.done)
	return true
}

// Cancel requests cancellation. A pending job becomes Cancelled immediately;
// a running job has its token cancelled and stops at its next checkpoint.
// It returns false for jobs that are already terminal or being cancelled.
func (j *Job) Cancel(now time.Time) bool {
	j.mu.Lock()
	switch {
	case j.claimed:
		j.mu.Unlock()
		return false
	case j.state == StatusPending:
		// The token is done before the job reads as terminal.
		j.claimed = true
		j.mu.Unlock()
		j.token.Cancel()
		j.token.Done()
		j.mu.Lock()
		j.state = StatusCancelled
		j.outcome = Cancelled()
		j.finished = now
		j.mu.Unlock()
		close(j.done)
		return true
	case j.state == StatusRunning:
		j.mu.Unlock()
		j.token.Cancel()
		return true
	default:
		j.mu.Unlock()
		return false
	}
}

// Outcome returns the terminal outcome and whether the job finished.
func (j *Job) Outcome() (Outcome, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome, j.state.IsTerminal()
}

// Result returns the stored value or failure. Before the job is terminal it
// returns ErrNotTerminal; afterwards every call returns the same result.
func (j *Job) Result() (any, error) {
	out, terminal := j.Outcome()
	if !terminal {
		return nil, fmt.Errorf("job %s is %s: %w", j.id, j.State(), ErrNotTerminal)
	}
	return outcomeResult(out)
}

// Join blocks until the job is terminal or ctx ends.
func (j *Job) Join(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return nil, fmt.Errorf("join job %s: %w", j.id, ctx.Err())
	}
}

func outcomeResult(out Outcome) (any, error) {
	switch out.Kind {
	case OutcomeSuccess:
		return out.Value, nil
	case OutcomeCancelled:
		return nil, ErrCancelled
	default:
		return nil, out.Err
	}
}
