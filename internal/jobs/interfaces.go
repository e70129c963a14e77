package jobs

import (
	"context"
	"io"
	"time"
)

// File is a concrete handle produced by resolving a textual path.
type File interface {
	// Name returns the canonical location, e.g. an absolute path or gs:// URI.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// PathResolver maps textual path arguments to files.
type PathResolver interface {
	Resolve(ctx context.Context, path string) (File, error)
}

// FailureLogger is the structured logging boundary for job failures.
// Implementations must not panic.
type FailureLogger interface {
	LogFailure(err error, namespace string)
}

// MetadataLookup supplies delivery metadata per operation.
type MetadataLookup interface {
	Lookup(manager, method string) (Metadata, bool)
}

// UIDispatcher runs continuations on the UI-owned execution context.
// RunOnUI must not block the caller.
type UIDispatcher interface {
	RunOnUI(fn func())
}

// Action is a named user-facing affordance attached to a kept job.
type Action struct {
	Label string
	Run   func()
}

// JobList is the presentation of finished jobs to the user.
type JobList interface {
	Keep(jobID string)
	SetAction(jobID string, action Action)
	SetStatus(jobID string, message string)
}

// Queue provides enqueue/dequeue semantics for pending jobs.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Job, error)
}

// RunStore persists job runs.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, jobID string, status Status, errText string, partials int) error
	GetRun(ctx context.Context, jobID string) (Run, error)
	ListRuns(ctx context.Context, status *Status, limit, offset int) ([]Run, error)
}

// ProgressWriter stores the latest worked/total counters of a running job.
type ProgressWriter interface {
	RecordProgress(ctx context.Context, jobID string, worked, total int64, at time.Time) error
}

// Publisher pushes completion notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
