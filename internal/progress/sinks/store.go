package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/progress"
)

// StoreSink persists the latest worked/total counters per job. Within a
// batch only the newest progress event of each job is written.
type StoreSink struct {
	writer jobs.ProgressWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink writing through w.
func NewStoreSink(w jobs.ProgressWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{writer: w, logger: logger}
}

type progressDelta struct {
	worked int64
	total  int64
	at     time.Time
}

// Consume collapses progress events per job and forwards them to the writer.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	latest := make(map[[16]byte]progressDelta)
	order := make([][16]byte, 0, len(batch))
	for _, evt := range batch {
		if evt.Stage != progress.StageJobProgress {
			continue
		}
		prev, seen := latest[evt.JobID]
		if !seen {
			order = append(order, evt.JobID)
		}
		if !seen || !evt.TS.Before(prev.at) {
			latest[evt.JobID] = progressDelta{worked: evt.Worked, total: evt.Total, at: evt.TS}
		}
	}
	for _, id := range order {
		d := latest[id]
		jobID := progress.Event{JobID: id}.JobUUID().String()
		if err := s.writer.RecordProgress(ctx, jobID, d.worked, d.total, d.at); err != nil {
			return fmt.Errorf("record progress for %s: %w", jobID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
