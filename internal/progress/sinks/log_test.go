package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/jobcore/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	id := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: progress.UUIDToBytes(id), TS: time.Now(), Stage: progress.StageJobProgress, Worked: 1},
		{JobID: progress.UUIDToBytes(id), TS: time.Now(), Stage: progress.StageJobDone, Operation: "math.sum"},
	}))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, id.String(), fields["job_id"])
	require.Equal(t, "JOB_DONE", fields["stage"])
	require.Equal(t, "math.sum", fields["operation"])
}
