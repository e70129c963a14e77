package uiecho

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/metrics"
)

// Mode says how a result reached the UI.
type Mode string

// Delivery modes.
const (
	ModeImmediate Mode = "immediate"
	ModeDeferred  Mode = "deferred"
	ModeAction    Mode = "action"
)

const defaultMessage = "Show result"

// Config holds fallbacks for operations without their own metadata.
type Config struct {
	// DefaultSilentAfter applies when neither the descriptor nor the lookup
	// set a threshold. Zero means always immediate.
	DefaultSilentAfter time.Duration
	// DefaultMessage labels the deferred-delivery action.
	DefaultMessage string
}

// Echo decides between immediate and deferred delivery of job results.
type Echo struct {
	ui     jobs.UIDispatcher
	list   jobs.JobList
	meta   jobs.MetadataLookup
	cfg    Config
	logger *zap.Logger
}

// New wires an Echo. list and meta may be nil; without a list every result
// is delivered immediately.
func New(ui jobs.UIDispatcher, list jobs.JobList, meta jobs.MetadataLookup, cfg Config, logger *zap.Logger) *Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMessage == "" {
		cfg.DefaultMessage = defaultMessage
	}
	return &Echo{ui: ui, list: list, meta: meta, cfg: cfg, logger: logger}
}

// MetadataFor resolves the delivery metadata for d: the descriptor's own
// values first, then the lookup, then the configured defaults.
func (e *Echo) MetadataFor(d jobs.Descriptor) jobs.Metadata {
	m := d.Meta
	if !m.HasThreshold() && e.meta != nil {
		if looked, ok := e.meta.Lookup(d.Manager, d.Method); ok {
			if looked.HasThreshold() {
				m.SilentAfter = looked.SilentAfter
			}
			if m.Message == "" {
				m.Message = looked.Message
			}
		}
	}
	if !m.HasThreshold() {
		m.SilentAfter = e.cfg.DefaultSilentAfter
	}
	if m.Message == "" {
		m.Message = e.cfg.DefaultMessage
	}
	return m
}

// Deliver hands out to cont on the UI context. Runs that took longer than
// the silent threshold are kept instead: the job list gets an action that
// performs the same delivery when the user asks for it.
func (e *Echo) Deliver(job *jobs.Job, elapsed time.Duration, cont jobs.Continuation, out jobs.Outcome) Mode {
	if cont == nil || e.ui == nil {
		return ""
	}
	deliver := func() {
		e.ui.RunOnUI(func() { cont(out) })
	}
	meta := e.MetadataFor(job.Operation().Descriptor())
	if !meta.HasThreshold() || elapsed <= meta.SilentAfter || e.list == nil {
		deliver()
		metrics.ObserveUIDelivery(string(ModeImmediate))
		return ModeImmediate
	}

	var once sync.Once
	id := job.ID()
	e.list.Keep(id)
	e.list.SetAction(id, jobs.Action{
		Label: meta.Message,
		Run: func() {
			once.Do(func() {
				deliver()
				metrics.ObserveUIDelivery(string(ModeAction))
			})
		},
	})
	e.list.SetStatus(id, meta.Message)
	metrics.ObserveUIDelivery(string(ModeDeferred))
	e.logger.Debug("result kept for later delivery",
		zap.String("job_id", id),
		zap.Duration("elapsed", elapsed),
		zap.Duration("silent_after", meta.SilentAfter))
	return ModeDeferred
}
