package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/metrics"
	"github.com/JakeFAU/jobcore/internal/progress"
)

// Recorder reports job state changes to the run store, the event hub, the
// metrics and the completion topic. Workers use it for jobs they ran; the
// scheduler uses it for jobs cancelled before a worker picked them up.
type Recorder struct {
	store     jobs.RunStore
	publisher jobs.Publisher
	events    progress.Emitter
	topic     string
	logger    *zap.Logger
}

// NewRecorder builds a Recorder. Every dependency may be nil; an empty topic
// disables publishing.
func NewRecorder(store jobs.RunStore, publisher jobs.Publisher, events progress.Emitter, topic string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = progress.NopEmitter{}
	}
	return &Recorder{store: store, publisher: publisher, events: events, topic: topic, logger: logger}
}

// Events returns the emitter job events go to.
func (r *Recorder) Events() progress.Emitter { return r.events }

// Started records the Pending to Running transition.
func (r *Recorder) Started(ctx context.Context, job *jobs.Job, at time.Time) {
	r.updateStatus(ctx, job, jobs.StatusRunning, "", 0)
	r.Emit(job, progress.StageJobStart, at, "")
}

// Finished records a terminal outcome. run is the time spent running; zero
// for jobs that never ran.
func (r *Recorder) Finished(ctx context.Context, job *jobs.Job, out jobs.Outcome, partials int, at time.Time, run time.Duration) {
	status := out.Status()
	errText := ""
	if out.Kind == jobs.OutcomeFailed && out.Err != nil {
		errText = out.Err.Error()
	}
	op := job.Operation().Descriptor().Name()

	// Bookkeeping must survive the job's own cancellation.
	ctx = context.WithoutCancel(ctx)
	r.updateStatus(ctx, job, status, errText, partials)
	r.Emit(job, TerminalStage(status), at, errText)
	metrics.ObserveFinish(op, string(status), run)
	r.publish(ctx, job, status, errText, partials, at)

	r.logger.Info("job finished",
		zap.String("job_id", job.ID()),
		zap.String("operation", op),
		zap.String("status", string(status)),
		zap.Int("partials", partials),
		zap.Duration("run", run),
	)
}

func (r *Recorder) updateStatus(ctx context.Context, job *jobs.Job, status jobs.Status, errText string, partials int) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateRunStatus(ctx, job.ID(), status, errText, partials); err != nil {
		r.logger.Error("update run status failed",
			zap.String("job_id", job.ID()), zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *Recorder) publish(
	ctx context.Context,
	job *jobs.Job,
	status jobs.Status,
	errText string,
	partials int,
	finished time.Time,
) {
	if r.topic == "" || r.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":      job.ID(),
		"name":        job.Name(),
		"family":      job.Family(),
		"operation":   job.Operation().Descriptor().Name(),
		"status":      string(status),
		"error":       errText,
		"partials":    partials,
		"finished_at": finished.Format(time.RFC3339Nano),
	}
	msgID, err := r.publisher.Publish(ctx, r.topic, payload)
	if err != nil {
		r.logger.Error("publish completion failed", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}
	r.logger.Debug("completion published", zap.String("job_id", job.ID()), zap.String("message_id", msgID))
}

// Emit publishes a job event carrying the token's current counters. Jobs
// whose IDs are not UUIDs are not reported.
func (r *Recorder) Emit(job *jobs.Job, stage progress.Stage, at time.Time, note string) {
	id, err := progress.ParseJobID(job.ID())
	if err != nil {
		return
	}
	var dur time.Duration
	if stage.IsTerminal() {
		dur = at.Sub(job.Submitted())
	}
	snap := job.Progress().Snapshot()
	r.events.Emit(progress.Event{
		JobID:     id,
		TS:        at,
		Stage:     stage,
		Operation: job.Operation().Descriptor().Name(),
		Family:    job.Family(),
		Worked:    int64(snap.Worked),
		Total:     int64(snap.Total),
		Dur:       dur,
		Note:      note,
	})
}

// TerminalStage maps a terminal status to its event stage.
func TerminalStage(status jobs.Status) progress.Stage {
	switch status {
	case jobs.StatusCancelled:
		return progress.StageJobCancelled
	case jobs.StatusFailed:
		return progress.StageJobError
	default:
		return progress.StageJobDone
	}
}
