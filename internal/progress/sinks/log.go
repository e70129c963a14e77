package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/jobcore/internal/progress"
)

// LogSink writes every event as a structured log line. Progress ticks are
// logged at Debug, lifecycle milestones at Info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		if evt.Stage == progress.StageJobProgress || evt.Stage == progress.StageJobPartial {
			level = zapcore.DebugLevel
		}
		if ce := s.logger.Check(level, "job event"); ce != nil {
			ce.Write(
				zap.String("job_id", evt.JobUUID().String()),
				zap.String("stage", string(evt.Stage)),
				zap.String("operation", evt.Operation),
				zap.String("family", evt.Family),
				zap.Int64("worked", evt.Worked),
				zap.Int64("total", evt.Total),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
