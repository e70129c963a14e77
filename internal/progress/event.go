package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobProgress  Stage = "JOB_PROGRESS"
	StageJobPartial   Stage = "JOB_PARTIAL"
	StageJobDone      Stage = "JOB_DONE"
	StageJobCancelled Stage = "JOB_CANCELLED"
	StageJobError     Stage = "JOB_ERROR"
)

// IsTerminal reports whether the stage closes a job's event stream.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageJobDone, StageJobCancelled, StageJobError:
		return true
	default:
		return false
	}
}

// Event captures a single component of job progress.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Operation is the "manager.method" name of the job's operation.
	Operation string
	// Family optionally groups jobs for bulk cancellation.
	Family string
	// Worked and Total mirror the progress token; Total is Unknown when not known.
	Worked int64
	Total  int64
	// Dur captures elapsed time since submission for terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (task name, error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobPartial, StageJobDone, StageJobCancelled, StageJobError:
	case StageJobProgress:
		if e.Worked < 0 {
			return errors.New("progress requires worked >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseJobID decodes a textual job ID into the Event form.
func ParseJobID(id string) ([16]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse job id: %w", err)
	}
	return UUIDToBytes(parsed), nil
}
