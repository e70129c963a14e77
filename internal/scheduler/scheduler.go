// Package scheduler accepts jobs, tracks them by ID and family, and runs them
// on a bounded pool of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/metrics"
	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/queue/memory"
	"github.com/JakeFAU/jobcore/internal/result"
	"github.com/JakeFAU/jobcore/internal/worker"
)

// ErrNoOperation is returned by Submit for requests without an operation.
var ErrNoOperation = errors.New("request has no operation")

// Config sizes the pool.
type Config struct {
	Workers    int
	QueueDepth int
	// ProgressInterval throttles progress notifications of tokens the
	// scheduler creates. Zero disables throttling.
	ProgressInterval time.Duration
	// Namespace is the failure-log namespace handed to workers.
	Namespace string
	// Retain caps how many terminal jobs stay in the table; RetainFor evicts
	// terminal jobs older than it. Zero disables either bound. Evicted jobs
	// keep their run record in the store.
	Retain    int
	RetainFor time.Duration
}

const maxPruneInterval = time.Minute

// Deps are the collaborators shared by the scheduler and its workers. Only
// Clock and IDs are required.
type Deps struct {
	Store    jobs.RunStore
	Recorder *worker.Recorder
	Resolver jobs.PathResolver
	Failures jobs.FailureLogger
	Echo     worker.Deliverer
	Clock    jobs.Clock
	IDs      jobs.IDGenerator
}

// Scheduler owns the job table and the worker pool.
type Scheduler struct {
	cfg      Config
	queue    *memory.Queue
	workers  []*worker.Worker
	store    jobs.RunStore
	recorder *worker.Recorder
	clock    jobs.Clock
	ids      jobs.IDGenerator
	logger   *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*jobs.Job
}

// New builds a scheduler and its workers. Workers start with Run.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Scheduler, error) {
	if deps.Clock == nil || deps.IDs == nil {
		return nil, errors.New("scheduler requires a clock and an id generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = 0
	}
	if deps.Recorder == nil {
		deps.Recorder = worker.NewRecorder(deps.Store, nil, nil, "", logger)
	}

	queue := memory.NewQueue(cfg.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			deps.Recorder,
			deps.Resolver,
			deps.Failures,
			deps.Echo,
			deps.Clock,
			worker.Config{Namespace: cfg.Namespace},
			logger.With(zap.Int("worker", i)),
		))
	}
	return &Scheduler{
		cfg:      cfg,
		queue:    queue,
		workers:  workers,
		store:    deps.Store,
		recorder: deps.Recorder,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   logger,
		jobs:     make(map[string]*jobs.Job),
	}, nil
}

// Submit validates req, registers the job and queues it. Arity violations
// return jobs.ErrArity and nothing is queued. Submit blocks while the queue
// is full.
func (s *Scheduler) Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error) {
	if req.Operation == nil {
		return nil, ErrNoOperation
	}
	d := req.Operation.Descriptor()
	b, err := jobs.Bind(d, req.Args)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", d.Name(), err)
	}
	if req.Progress == nil {
		req.Progress = progress.NewToken(context.Background(), progress.WithMinUpdateInterval(s.cfg.ProgressInterval))
	}
	submitted := s.clock.Now()
	req.Hook = result.Compose(s.timingHook(id, d.Name(), submitted), req.Hook)

	job := jobs.NewJob(id, submitted, req, b)
	req.Progress.AddListener(s.progressListener(job))

	if s.store != nil {
		run := jobs.Run{
			ID:          id,
			Name:        job.Name(),
			Family:      job.Family(),
			Operation:   d.Name(),
			Status:      jobs.StatusPending,
			SubmittedAt: submitted,
			Total:       progress.Unknown,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("create run %s: %w", id, err)
		}
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	s.Prune()

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.cancelPending(ctx, job)
		return nil, fmt.Errorf("enqueue %s: %w", id, err)
	}
	metrics.ObserveSubmit(d.Name())
	s.logger.Debug("job submitted",
		zap.String("job_id", id),
		zap.String("operation", d.Name()),
		zap.String("family", job.Family()),
	)
	return job, nil
}

// timingHook logs how long after submission the job produced its result.
func (s *Scheduler) timingHook(id, op string, submitted time.Time) result.Hook {
	return &result.HookFuncs{
		Complete: func(any) {
			s.logger.Debug("job result ready",
				zap.String("job_id", id),
				zap.String("operation", op),
				zap.Duration("since_submit", s.clock.Now().Sub(submitted)),
			)
		},
	}
}

// progressListener turns token updates of a running job into progress events.
func (s *Scheduler) progressListener(job *jobs.Job) progress.Listener {
	return func(u progress.Update) {
		if u.Done || u.Cancelled || job.State() != jobs.StatusRunning {
			return
		}
		s.recorder.Emit(job, progress.StageJobProgress, s.clock.Now(), u.SubTask)
	}
}

// Get returns the job with the given ID.
func (s *Scheduler) Get(id string) (*jobs.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, jobs.ErrUnknownJob)
	}
	return job, nil
}

// List returns every known job in submission order.
func (s *Scheduler) List() []*jobs.Job {
	s.mu.RLock()
	out := make([]*jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Submitted().Equal(out[j].Submitted()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].Submitted().Before(out[j].Submitted())
	})
	return out
}

// Join blocks until the job is terminal and returns its value or failure.
func (s *Scheduler) Join(ctx context.Context, id string) (any, error) {
	job, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return job.Join(ctx)
}

// Cancel cancels one job. Pending jobs become Cancelled at once; running jobs
// are asked to stop at their next checkpoint. It reports false when the job
// was already terminal.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return s.cancel(ctx, job), nil
}

// CancelFamily cancels every non-terminal job of family and returns how many
// were affected.
func (s *Scheduler) CancelFamily(ctx context.Context, family string) int {
	if family == "" {
		return 0
	}
	n := 0
	for _, job := range s.List() {
		if job.Family() == family && s.cancel(ctx, job) {
			n++
		}
	}
	s.logger.Info("family cancelled", zap.String("family", family), zap.Int("jobs", n))
	return n
}

func (s *Scheduler) cancel(ctx context.Context, job *jobs.Job) bool {
	now := s.clock.Now()
	if !job.Cancel(now) {
		return false
	}
	// A cancelled job that never started was still pending; no worker will
	// report it.
	if job.Started().IsZero() {
		s.recorder.Finished(ctx, job, jobs.Cancelled(), 0, now, 0)
	}
	return true
}

func (s *Scheduler) cancelPending(ctx context.Context, job *jobs.Job) {
	if job.State() == jobs.StatusPending {
		s.cancel(ctx, job)
	}
}

// Prune evicts terminal jobs finished more than RetainFor ago, then the oldest
// terminal jobs beyond Retain. It returns how many were evicted.
func (s *Scheduler) Prune() int {
	if s.cfg.Retain <= 0 && s.cfg.RetainFor <= 0 {
		return 0
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	var kept []*jobs.Job
	for id, job := range s.jobs {
		finished := job.Finished()
		if finished.IsZero() {
			continue
		}
		if s.cfg.RetainFor > 0 && now.Sub(finished) > s.cfg.RetainFor {
			delete(s.jobs, id)
			evicted++
			continue
		}
		kept = append(kept, job)
	}
	if s.cfg.Retain > 0 && len(kept) > s.cfg.Retain {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].Finished().Before(kept[j].Finished())
		})
		for _, job := range kept[:len(kept)-s.cfg.Retain] {
			delete(s.jobs, job.ID())
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("jobs evicted", zap.Int("evicted", evicted), zap.Int("remaining", len(s.jobs)))
	}
	return evicted
}

// Pending reports how many jobs wait in the queue.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// Run starts the workers and blocks until ctx is done. Running jobs are
// cancelled through their tokens; jobs still queued are cancelled once the
// workers have stopped.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	s.logger.Info("scheduler started", zap.Int("workers", len(s.workers)), zap.Int("queue_depth", s.cfg.QueueDepth))

	var tick <-chan time.Time
	if s.cfg.RetainFor > 0 {
		ticker := time.NewTicker(min(s.cfg.RetainFor, maxPruneInterval))
		defer ticker.Stop()
		tick = ticker.C
	}
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick:
			s.Prune()
		}
	}
	wg.Wait()

	s.queue.Close()
	bg := context.WithoutCancel(ctx)
	for {
		job, err := s.queue.Dequeue(bg)
		if err != nil {
			break
		}
		s.cancelPending(bg, job)
	}
	s.logger.Info("scheduler stopped")
}
