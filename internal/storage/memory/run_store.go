// Package memory provides an in-process run store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/jobcore/internal/clock/system"
	"github.com/JakeFAU/jobcore/internal/jobs"
)

// RunStore keeps runs in a map. It implements jobs.RunStore and
// jobs.ProgressWriter.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]jobs.Run
	clock jobs.Clock
}

// NewRunStore constructs a RunStore. A nil clock uses the wall clock.
func NewRunStore(clock jobs.Clock) *RunStore {
	if clock == nil {
		clock = system.New()
	}
	return &RunStore{runs: make(map[string]jobs.Run), clock: clock}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run jobs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus moves a run to status and stamps start and finish times.
func (s *RunStore) UpdateRunStatus(
	_ context.Context,
	jobID string,
	status jobs.Status,
	errText string,
	partials int,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		return fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	now := s.clock.Now()
	run.Status = status
	run.ErrorText = errText
	run.Partials = partials
	if status == jobs.StatusRunning && run.StartedAt == nil {
		run.StartedAt = pointerTime(now)
	}
	if status.IsTerminal() {
		run.FinishedAt = pointerTime(now)
	}
	s.runs[jobID] = run
	return nil
}

// RecordProgress stores the latest counters of a run.
func (s *RunStore) RecordProgress(_ context.Context, jobID string, worked, total int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		return fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	run.Worked = worked
	run.Total = total
	s.runs[jobID] = run
	return nil
}

// GetRun fetches a run by job ID.
func (s *RunStore) GetRun(_ context.Context, jobID string) (jobs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[jobID]
	if !ok {
		return jobs.Run{}, fmt.Errorf("run %s: %w", jobID, jobs.ErrUnknownJob)
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *jobs.Status, limit, offset int) ([]jobs.Run, error) {
	s.mu.RLock()
	out := make([]jobs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if offset > 0 {
		if offset >= len(out) {
			return []jobs.Run{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
