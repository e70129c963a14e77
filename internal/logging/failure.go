package logging

import (
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// FailureReporter logs job failures on a logger named after the namespace.
// Domain errors go to Warn as expected failures; everything else is an
// unexpected error at Error level.
type FailureReporter struct {
	logger *zap.Logger
}

// NewFailureReporter wraps logger; a nil logger discards everything.
func NewFailureReporter(logger *zap.Logger) *FailureReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureReporter{logger: logger}
}

// LogFailure implements jobs.FailureLogger. It never panics.
func (r *FailureReporter) LogFailure(err error, namespace string) {
	if r == nil || err == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	logger := r.logger
	if namespace != "" {
		logger = logger.Named(namespace)
	}
	var domain *jobs.DomainError
	if errors.As(err, &domain) {
		logger.Warn("expected domain error", zap.String("reason", domain.Msg), zap.Error(err))
		return
	}
	var resolution *jobs.ResolutionError
	if errors.As(err, &resolution) {
		logger.Error("unexpected error",
			zap.Int("arg", resolution.Arg),
			zap.String("path", resolution.Path),
			zap.Error(err))
		return
	}
	logger.Error("unexpected error", zap.Error(err))
}
