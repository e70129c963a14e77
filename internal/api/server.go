package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobcore/internal/catalog"
	"github.com/JakeFAU/jobcore/internal/config"
	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/metrics"
	"github.com/JakeFAU/jobcore/internal/policy/ratelimit"
	"github.com/JakeFAU/jobcore/internal/progress"
	"github.com/JakeFAU/jobcore/internal/scheduler"
	"github.com/JakeFAU/jobcore/internal/uiecho"
)

const (
	requestTimeout = 60 * time.Second
	enqueueTimeout = 5 * time.Second
	defaultJoin    = 30 * time.Second
)

// Deps are the components the server reads and drives. Kept, Inbox and Runs
// are optional; their routes answer 404 when unset. A nil Limiter admits
// every submission.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Catalog   *catalog.Catalog
	Kept      *uiecho.MemoryJobList
	Inbox     *Inbox
	Runs      jobs.RunStore
	Limiter   *ratelimit.Limiter
	Logger    *zap.Logger
}

// Server wires HTTP handlers to the scheduler and catalog.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/operations", s.listOperations)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
				r.Get("/join", s.joinJob)
				r.Post("/cancel", s.cancelJob)
			})
		})
		r.Post("/families/{family}/cancel", s.cancelFamily)
		r.Get("/kept", s.listKept)
		r.Post("/kept/{job_id}/invoke", s.invokeKept)
		r.Get("/inbox", s.listInbox)
		runs := NewRunsHandler(deps.Runs)
		r.Get("/runs", runs.ListRuns)
		r.Get("/runs/{job_id}", runs.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scheduler == nil || s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "pending": s.deps.Scheduler.Pending()})
}

type operationDTO struct {
	Name          string        `json:"name"`
	Signature     string        `json:"signature"`
	Params        []string      `json:"params"`
	WantsProgress bool          `json:"wants_progress"`
	Meta          jobs.Metadata `json:"meta"`
}

func (s *Server) listOperations(w http.ResponseWriter, _ *http.Request) {
	descs := s.deps.Catalog.Descriptors()
	out := make([]operationDTO, 0, len(descs))
	for _, d := range descs {
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			params = append(params, p.String())
		}
		meta, _ := s.deps.Catalog.Lookup(d.Manager, d.Method)
		out = append(out, operationDTO{
			Name:          d.Name(),
			Signature:     d.Signature(),
			Params:        params,
			WantsProgress: d.WantsProgress,
			Meta:          meta,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type argRequest struct {
	Value any     `json:"value,omitempty"`
	Path  *string `json:"path,omitempty"`
}

type submitRequest struct {
	Operation string       `json:"operation"`
	Name      string       `json:"name,omitempty"`
	Family    string       `json:"family,omitempty"`
	Args      []argRequest `json:"args"`
	Deliver   bool         `json:"deliver,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Operation == "" {
		writeError(w, http.StatusBadRequest, "missing operation")
		return
	}
	op, err := s.deps.Catalog.Get(req.Operation)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(req.Family) {
		writeError(w, http.StatusTooManyRequests, "submission rate exceeded")
		return
	}
	args := make([]jobs.Arg, 0, len(req.Args))
	for _, a := range req.Args {
		if a.Path != nil {
			args = append(args, jobs.Path(*a.Path))
			continue
		}
		args = append(args, jobs.Value(a.Value))
	}

	jr := jobs.Request{Name: req.Name, Family: req.Family, Operation: op, Args: args}
	var ticket *Ticket
	if req.Deliver && s.deps.Inbox != nil {
		ticket = s.deps.Inbox.Ticket()
		jr.UI = ticket.Continuation()
	}

	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	job, err := s.deps.Scheduler.Submit(ctx, jr)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, jobs.ErrArity):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	if ticket != nil {
		ticket.Bind(job.ID())
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID()})
}

type progressDTO struct {
	Task    string `json:"task,omitempty"`
	SubTask string `json:"subtask,omitempty"`
	Worked  int    `json:"worked"`
	Total   int    `json:"total"`
}

type jobDTO struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Family    string       `json:"family,omitempty"`
	Operation string       `json:"operation"`
	Status    jobs.Status  `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	Progress  *progressDTO `json:"progress,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func toJobDTO(job *jobs.Job) jobDTO {
	dto := jobDTO{
		ID:        job.ID(),
		Name:      job.Name(),
		Family:    job.Family(),
		Operation: job.Operation().Descriptor().Name(),
		Status:    job.State(),
		Submitted: job.Submitted(),
		Started:   timePtr(job.Started()),
		Finished:  timePtr(job.Finished()),
	}
	if tok := job.Progress(); tok != nil {
		u := tok.Snapshot()
		if u.Task != "" || u.Worked > 0 || u.Total != progress.Unknown {
			dto.Progress = &progressDTO{Task: u.Task, SubTask: u.SubTask, Worked: u.Worked, Total: u.Total}
		}
	}
	if out, ok := job.Outcome(); ok && out.Kind == jobs.OutcomeFailed {
		dto.Error = out.Err.Error()
	}
	return dto
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	family := r.URL.Query().Get("family")
	all := s.deps.Scheduler.List()
	out := make([]jobDTO, 0, len(all))
	for _, job := range all {
		if family != "" && job.Family() != family {
			continue
		}
		out = append(out, toJobDTO(job))
	}
	writeJSON(w, http.StatusOK, out)
}

func runToJobDTO(run jobs.Run) jobDTO {
	dto := jobDTO{
		ID:        run.ID,
		Name:      run.Name,
		Family:    run.Family,
		Operation: run.Operation,
		Status:    run.Status,
		Submitted: run.SubmittedAt,
		Started:   run.StartedAt,
		Finished:  run.FinishedAt,
		Error:     run.ErrorText,
	}
	if run.Worked > 0 || run.Total != progress.Unknown {
		dto.Progress = &progressDTO{Worked: int(run.Worked), Total: int(run.Total)}
	}
	return dto
}

// lookupJob finds a job in the scheduler. For jobs the scheduler has evicted
// it answers from the run store: 410 when the run is known, 404 otherwise.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := chi.URLParam(r, "job_id")
	job, err := s.deps.Scheduler.Get(id)
	if err == nil {
		return job, true
	}
	if _, ok := s.storedRun(r.Context(), id); ok {
		writeError(w, http.StatusGone, "job no longer retained")
		return nil, false
	}
	writeError(w, http.StatusNotFound, "job not found")
	return nil, false
}

func (s *Server) storedRun(ctx context.Context, id string) (jobs.Run, bool) {
	if s.deps.Runs == nil {
		return jobs.Run{}, false
	}
	run, err := s.deps.Runs.GetRun(ctx, id)
	if err != nil {
		if !errors.Is(err, jobs.ErrUnknownJob) {
			s.logger.Warn("run lookup failed", zap.String("job_id", id), zap.Error(err))
		}
		return jobs.Run{}, false
	}
	return run, true
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, err := s.deps.Scheduler.Get(id)
	if err == nil {
		writeJSON(w, http.StatusOK, toJobDTO(job))
		return
	}
	if run, ok := s.storedRun(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, runToJobDTO(run))
		return
	}
	writeError(w, http.StatusNotFound, "job not found")
}

type resultDTO struct {
	ID     string      `json:"id"`
	Status jobs.Status `json:"status"`
	Value  any         `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	out, terminal := job.Outcome()
	if !terminal {
		writeError(w, http.StatusConflict, "job not finished")
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(job.ID(), out))
}

func toResultDTO(id string, out jobs.Outcome) resultDTO {
	dto := resultDTO{ID: id, Status: out.Status()}
	if out.Kind == jobs.OutcomeSuccess {
		dto.Value = out.Value
	} else if out.Err != nil {
		dto.Error = out.Err.Error()
	}
	return dto
}

func (s *Server) joinJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	timeout := defaultJoin
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if _, err := job.Join(ctx); err != nil && !job.State().IsTerminal() {
		writeError(w, http.StatusRequestTimeout, "job still running")
		return
	}
	out, _ := job.Outcome()
	writeJSON(w, http.StatusOK, toResultDTO(job.ID(), out))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	cancelled, err := s.deps.Scheduler.Cancel(r.Context(), id)
	if err != nil {
		if run, ok := s.storedRun(r.Context(), id); ok && run.Status.IsTerminal() {
			writeError(w, http.StatusConflict, "job already finished")
			return
		}
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) cancelFamily(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	n := s.deps.Scheduler.CancelFamily(r.Context(), family)
	writeJSON(w, http.StatusAccepted, map[string]any{"family": family, "cancelled": n})
}

func (s *Server) listKept(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Kept == nil {
		writeError(w, http.StatusNotFound, "no job list configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Kept.Kept())
}

func (s *Server) invokeKept(w http.ResponseWriter, r *http.Request) {
	if s.deps.Kept == nil {
		writeError(w, http.StatusNotFound, "no job list configured")
		return
	}
	id := chi.URLParam(r, "job_id")
	if err := s.deps.Kept.Invoke(id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, jobs.ErrUnknownJob) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "invoked"})
}

func (s *Server) listInbox(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Inbox == nil {
		writeError(w, http.StatusNotFound, "no inbox configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Inbox.Items())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
