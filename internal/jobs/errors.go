package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/jobcore/internal/progress"
)

// ErrCancelled signals cooperative cancellation. It never counts as a failure.
var ErrCancelled = progress.ErrCancelled

// ErrNotTerminal is returned when a result is requested before the job finished.
var ErrNotTerminal = errors.New("job has no result yet")

// ErrArity is returned by Submit when the arguments do not fit the descriptor.
var ErrArity = errors.New("argument count does not match operation")

// ErrUnknownJob is returned for lookups of job IDs the scheduler never saw.
var ErrUnknownJob = errors.New("job not found")

// ErrQueueClosed is returned by queues that no longer hand out jobs.
var ErrQueueClosed = errors.New("queue closed")

// ResolutionError reports a textual path argument that could not be mapped to a file.
type ResolutionError struct {
	Arg  int
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve argument %d (%q): %v", e.Arg, e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// InvocationError wraps an error returned (or panicked) by an operation.
type InvocationError struct {
	Op  string
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// DomainError is an error an operation raises on purpose, e.g. bad input.
// It is logged on the less severe channel.
type DomainError struct {
	Msg string
	Err error
}

// NewDomainError builds a DomainError with an optional cause.
func NewDomainError(msg string, cause error) *DomainError {
	return &DomainError{Msg: msg, Err: cause}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error { return e.Err }

// IsCancellation reports whether any error in the chain represents cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// CancelledBy reports whether err stems from tok's cancellation. ErrCancelled
// always counts; a bare context.Canceled counts only once tok was cancelled,
// so an operation's own cancelled context is a failure.
func CancelledBy(err error, tok *progress.Token) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	return tok != nil && tok.IsCancelled() && errors.Is(err, context.Canceled)
}

// IsDomain reports whether the chain contains a DomainError.
func IsDomain(err error) bool {
	var d *DomainError
	return errors.As(err, &d)
}

// RootCause removes exactly one level of invocation wrapping.
func RootCause(err error) error {
	var inv *InvocationError
	if errors.As(err, &inv) && inv.Err != nil {
		return inv.Err
	}
	return err
}
