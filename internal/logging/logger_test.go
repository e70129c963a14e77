package logging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true, "")
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(false, "loud")
	require.Error(t, err)
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false, "warn")
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestFailureReporter_DomainErrorsAreWarnings(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	r := NewFailureReporter(zap.New(core))

	r.LogFailure(fmt.Errorf("wrapped: %w", jobs.NewDomainError("bad molecule", nil)), "jobcore.managers")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "expected domain error", entries[0].Message)
	require.Equal(t, "jobcore.managers", entries[0].LoggerName)
	require.Equal(t, "bad molecule", entries[0].ContextMap()["reason"])
}

func TestFailureReporter_UnexpectedErrors(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	r := NewFailureReporter(zap.New(core))

	r.LogFailure(errors.New("disk on fire"), "")
	r.LogFailure(&jobs.ResolutionError{Arg: 0, Path: "foo.txt", Err: errors.New("missing")}, "jobcore.managers")
	r.LogFailure(nil, "ignored")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "unexpected error", entries[0].Message)
	require.Equal(t, "foo.txt", entries[1].ContextMap()["path"])
}

func TestFailureReporter_NilSafe(t *testing.T) {
	t.Parallel()

	var r *FailureReporter
	require.NotPanics(t, func() { r.LogFailure(errors.New("x"), "ns") })
	require.NotPanics(t, func() { NewFailureReporter(nil).LogFailure(errors.New("x"), "ns") })
}
