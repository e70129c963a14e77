// Package worker runs jobs taken from the queue: it prepares arguments,
// invokes the operation, classifies the outcome and delivers it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/metrics"
	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/result"
	"github.com/JakeFAU/jobcore/internal/telemetry"
	"github.com/JakeFAU/jobcore/internal/uiecho"
)

// DefaultNamespace is the failure-log namespace used when Config leaves it empty.
const DefaultNamespace = "jobcore.managers"

// Config controls Worker behavior.
type Config struct {
	// Namespace names the logger failures are reported on.
	Namespace string
}

// Deliverer hands a finished job's outcome to the UI context.
type Deliverer interface {
	Deliver(job *jobs.Job, elapsed time.Duration, cont jobs.Continuation, out jobs.Outcome) uiecho.Mode
}

// Worker consumes jobs from the queue and executes them one at a time.
type Worker struct {
	queue    jobs.Queue
	recorder *Recorder
	resolver jobs.PathResolver
	failures jobs.FailureLogger
	echo     Deliverer
	clock    jobs.Clock
	tracer   trace.Tracer
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. resolver, failures and echo may be nil; a nil
// recorder reports nothing.
func New(
	queue jobs.Queue,
	recorder *Recorder,
	resolver jobs.PathResolver,
	failures jobs.FailureLogger,
	echo Deliverer,
	clock jobs.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if recorder == nil {
		recorder = NewRecorder(nil, nil, nil, "", logger)
	}
	return &Worker{
		queue:    queue,
		recorder: recorder,
		resolver: resolver,
		failures: failures,
		echo:     echo,
		clock:    clock,
		tracer:   otel.Tracer(telemetry.TracerName),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", job.ID()))
		w.Execute(ctx, job)
	}
}

// execution is what one run of an operation produced.
type execution struct {
	outcome  jobs.Outcome
	partials int
	// deliver is false for failures that happened before invocation.
	deliver bool
	// logged carries the failure with call context for the failure log.
	logged error
}

// Execute runs job to completion on the calling goroutine. Jobs that are no
// longer pending (cancelled while queued) are skipped. Cancelling ctx
// cancels the job's token.
func (w *Worker) Execute(ctx context.Context, job *jobs.Job) {
	started := w.clock.Now()
	if !job.MarkRunning(started) {
		w.logger.Debug("skipping job that is no longer pending",
			zap.String("job_id", job.ID()), zap.String("state", string(job.State())))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	op := job.Operation().Descriptor()
	metrics.ObserveQueueWait(op.Name(), started.Sub(job.Submitted()))

	ctx, span := w.tracer.Start(ctx, "job "+op.Name(), trace.WithAttributes(
		attribute.String("job.id", job.ID()),
		attribute.String("job.operation", op.Name()),
		attribute.String("job.family", job.Family()),
	))
	defer span.End()

	tok := job.Progress()
	stop := context.AfterFunc(ctx, tok.Cancel)
	defer stop()

	w.recorder.Started(ctx, job, started)

	exec := w.invoke(trace.ContextWithSpan(tok.Context(), span), job)

	tok.Done()

	if exec.outcome.Kind == jobs.OutcomeFailed {
		w.logFailure(exec.logged)
	}
	if cont := job.UI(); cont != nil && w.echo != nil && exec.deliver {
		w.echo.Deliver(job, w.clock.Now().Sub(job.Submitted()), cont, exec.outcome)
	}

	finished := w.clock.Now()
	job.Finish(exec.outcome, finished)
	w.recorder.Finished(ctx, job, exec.outcome, exec.partials, finished, finished.Sub(started))

	span.SetAttributes(
		attribute.String("job.status", string(exec.outcome.Status())),
		attribute.Int("job.partials", exec.partials),
	)
	if exec.outcome.Kind == jobs.OutcomeFailed {
		span.SetStatus(codes.Error, exec.outcome.Err.Error())
	}
}

func (w *Worker) invoke(ctx context.Context, job *jobs.Job) execution {
	op := job.Operation()
	d := op.Descriptor()
	b := job.Binding()
	tok := job.Progress()
	hook := job.Hook()

	collector := result.NewCollector()
	var sink result.Sink
	if b.SinkSlot >= 0 {
		partialEvents := result.HookSink(&result.HookFuncs{
			Partial: func(any) { w.recorder.Emit(job, progress.StageJobPartial, w.clock.Now(), "") },
		})
		sink = result.Fanout(b.Args[b.SinkSlot].Sink(), collector, result.HookSink(hook), partialEvents)
	}

	in, err := jobs.Prepare(ctx, d, b, w.resolver, tok, sink)
	if err != nil {
		if jobs.CancelledBy(err, tok) {
			return execution{outcome: jobs.Cancelled()}
		}
		return execution{
			outcome: jobs.Failed(err),
			logged:  fmt.Errorf("prepare %s: %w", d.Signature(), err),
		}
	}
	if !d.WantsProgress {
		tok.Begin("", progress.Unknown)
	}

	v, err := call(ctx, op, in)
	if err != nil {
		if jobs.CancelledBy(err, tok) {
			return execution{outcome: jobs.Cancelled(), partials: collector.Len()}
		}
		cause := jobs.RootCause(err)
		return execution{
			outcome:  jobs.Failed(cause),
			partials: collector.Len(),
			deliver:  true,
			logged:   fmt.Errorf("%s called with %s: %w", d.Signature(), jobs.FormatArgs(b.Args), cause),
		}
	}

	value := v
	if b.SinkSlot >= 0 {
		value = collector.Value()
	} else if hook != nil {
		w.completeHook(job, hook, v)
	}
	return execution{outcome: jobs.Success(value), partials: collector.Len(), deliver: true}
}

func (w *Worker) completeHook(job *jobs.Job, hook result.Hook, v any) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("completion hook panicked", zap.String("job_id", job.ID()), zap.Any("panic", r))
		}
	}()
	hook.OnComplete(v)
}

// call invokes op, turning returned errors and panics into InvocationErrors.
func call(ctx context.Context, op jobs.Operation, in *jobs.Input) (v any, err error) {
	name := op.Descriptor().Name()
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &jobs.InvocationError{Op: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err = op.Invoke(ctx, in)
	if err != nil {
		return nil, &jobs.InvocationError{Op: name, Err: err}
	}
	return v, nil
}

func (w *Worker) logFailure(err error) {
	if w.failures == nil || err == nil {
		return
	}
	kind := "unexpected"
	if jobs.IsDomain(err) {
		kind = "domain"
	}
	w.failures.LogFailure(err, w.cfg.Namespace)
	metrics.ObserveFailureLogged(kind)
}

