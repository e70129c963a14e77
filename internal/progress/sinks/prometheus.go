package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/jobcore/internal/progress"
)

// PrometheusSink derives job lifecycle metrics from the event stream.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	workUnits     *prometheus.CounterVec
	partials      *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcore_events_jobs_started_total",
			Help: "Jobs that started running, by operation.",
		}, []string{"operation"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcore_events_jobs_completed_total",
			Help: "Jobs that reached a terminal stage, by operation and result.",
		}, []string{"operation", "result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobcore_events_jobs_running",
			Help: "Jobs started but not yet terminal.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobcore_events_job_runtime_seconds",
			Help:    "Time from submission to terminal stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"operation", "result"}),
		workUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcore_events_work_units_total",
			Help: "Work units reported through progress tokens.",
		}, []string{"operation"}),
		partials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcore_events_partials_total",
			Help: "Partial results emitted by operations.",
		}, []string{"operation"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.workUnits,
		s.partials,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register job event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	op := evt.Operation
	if op == "" {
		op = "unknown"
	}
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.WithLabelValues(op).Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobProgress:
		if delta := s.tracker.advance(evt.JobID, evt.Worked); delta > 0 {
			s.workUnits.WithLabelValues(op).Add(float64(delta))
		}
	case progress.StageJobPartial:
		s.partials.WithLabelValues(op).Inc()
	case progress.StageJobDone:
		s.complete(evt, op, "success")
	case progress.StageJobCancelled:
		s.complete(evt, op, "cancelled")
	case progress.StageJobError:
		s.complete(evt, op, "error")
	}
}

func (s *PrometheusSink) complete(evt progress.Event, op, label string) {
	s.jobsCompleted.WithLabelValues(op, label).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(op, label).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// jobTracker remembers running jobs and their last reported worked count so
// cumulative progress can be exported as a counter.
type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]int64
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]int64)}
}

func (t *jobTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = 0
	return true
}

func (t *jobTracker) advance(id [16]byte, worked int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.running[id]
	if !ok || worked <= last {
		return 0
	}
	t.running[id] = worked
	return worked - last
}

func (t *jobTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
