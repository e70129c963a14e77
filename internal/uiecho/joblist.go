package uiecho

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// KeptJob is a finished job waiting for the user to collect its result.
type KeptJob struct {
	JobID    string `json:"job_id"`
	Label    string `json:"label,omitempty"`
	Status   string `json:"status,omitempty"`
	Invoked  bool   `json:"invoked"`
	position int
}

// MemoryJobList is an in-process jobs.JobList.
type MemoryJobList struct {
	mu      sync.Mutex
	entries map[string]*keptEntry
	seq     int
}

type keptEntry struct {
	view   KeptJob
	action jobs.Action
}

// NewMemoryJobList returns an empty list.
func NewMemoryJobList() *MemoryJobList {
	return &MemoryJobList{entries: make(map[string]*keptEntry)}
}

func (l *MemoryJobList) entry(jobID string) *keptEntry {
	e, ok := l.entries[jobID]
	if !ok {
		l.seq++
		e = &keptEntry{view: KeptJob{JobID: jobID, position: l.seq}}
		l.entries[jobID] = e
	}
	return e
}

// Keep implements jobs.JobList.
func (l *MemoryJobList) Keep(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(jobID)
}

// SetAction implements jobs.JobList.
func (l *MemoryJobList) SetAction(jobID string, action jobs.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(jobID)
	e.action = action
	e.view.Label = action.Label
}

// SetStatus implements jobs.JobList.
func (l *MemoryJobList) SetStatus(jobID string, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(jobID).view.Status = message
}

// Kept lists kept jobs in the order they were kept.
func (l *MemoryJobList) Kept() []KeptJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]KeptJob, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })
	return out
}

// Get returns the kept entry for jobID.
func (l *MemoryJobList) Get(jobID string) (KeptJob, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[jobID]
	if !ok {
		return KeptJob{}, false
	}
	return e.view, true
}

// Invoke runs the job's action, as a user clicking it would.
func (l *MemoryJobList) Invoke(jobID string) error {
	l.mu.Lock()
	e, ok := l.entries[jobID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("kept job %s: %w", jobID, jobs.ErrUnknownJob)
	}
	run := e.action.Run
	e.view.Invoked = true
	l.mu.Unlock()
	if run == nil {
		return fmt.Errorf("kept job %s has no action", jobID)
	}
	run()
	return nil
}
