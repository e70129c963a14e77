// Package jobs defines the job model, argument slots and ports shared by the
// scheduler, workers and delivery subsystems.
package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

// Job status values. Succeeded, Cancelled and Failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeUnset OutcomeKind = iota
	OutcomeSuccess
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unset"
	}
}

// Outcome is the terminal result of a job: a value, a cancellation or a failure.
type Outcome struct {
	Kind  OutcomeKind
	Value any
	Err   error
}

// Success wraps a successful value.
func Success(v any) Outcome { return Outcome{Kind: OutcomeSuccess, Value: v} }

// Cancelled is the outcome of a cancelled job.
func Cancelled() Outcome { return Outcome{Kind: OutcomeCancelled, Err: ErrCancelled} }

// Failed wraps the stored failure cause.
func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

// IsSet reports whether the outcome left the Unset state.
func (o Outcome) IsSet() bool { return o.Kind != OutcomeUnset }

// Status maps the outcome to the matching terminal status.
func (o Outcome) Status() Status {
	switch o.Kind {
	case OutcomeSuccess:
		return StatusSucceeded
	case OutcomeCancelled:
		return StatusCancelled
	case OutcomeFailed:
		return StatusFailed
	default:
		return ""
	}
}

// ParamKind describes what an operation parameter slot accepts.
type ParamKind int

// Parameter kinds.
const (
	ParamValue ParamKind = iota
	ParamFile
	ParamSink
)

func (k ParamKind) String() string {
	switch k {
	case ParamFile:
		return "file"
	case ParamSink:
		return "sink"
	default:
		return "value"
	}
}

// Metadata is per-operation delivery metadata.
//   - SilentAfter: results of runs longer than this are delivered on demand
//     instead of immediately. Zero means always deliver immediately.
//   - Message: label for the deferred-delivery action and status line.
type Metadata struct {
	SilentAfter time.Duration `mapstructure:"silent_after" json:"silent_after"`
	Message     string        `mapstructure:"message" json:"message"`
}

// HasThreshold reports whether deferred delivery can ever apply.
func (m Metadata) HasThreshold() bool {
	return m.SilentAfter > 0
}

// Descriptor identifies an operation and fixes its parameter shape.
type Descriptor struct {
	Manager       string
	Method        string
	Params        []ParamKind
	WantsProgress bool
	Meta          Metadata
}

// Name returns "manager.method".
func (d Descriptor) Name() string {
	if d.Manager == "" {
		return d.Method
	}
	return d.Manager + "." + d.Method
}

// Signature renders the name with its parameter kinds, e.g. "math.sum(value, value)".
func (d Descriptor) Signature() string {
	kinds := make([]string, 0, len(d.Params)+1)
	for _, p := range d.Params {
		kinds = append(kinds, p.String())
	}
	if d.WantsProgress {
		kinds = append(kinds, "progress")
	}
	return fmt.Sprintf("%s(%s)", d.Name(), strings.Join(kinds, ", "))
}

// SinkSlot returns the index of the sink parameter, or -1.
func (d Descriptor) SinkSlot() int {
	for i, p := range d.Params {
		if p == ParamSink {
			return i
		}
	}
	return -1
}

// Run is the persisted view of a job.
type Run struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Family      string     `json:"family,omitempty"`
	Operation   string     `json:"operation"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ErrorText   string     `json:"error_text,omitempty"`
	Partials    int        `json:"partials"`
	Worked      int64      `json:"worked"`
	Total       int64      `json:"total"`
}
