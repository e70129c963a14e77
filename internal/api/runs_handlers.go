package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// RunsHandler serves persisted job runs.
type RunsHandler struct {
	store jobs.RunStore
}

// NewRunsHandler returns a handler over store. A nil store answers 404.
func NewRunsHandler(store jobs.RunStore) *RunsHandler {
	return &RunsHandler{store: store}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := h.store.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []jobs.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetRun handles GET /v1/runs/{job_id}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	limit := defaultRunsLimit
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(v, maxRunsLimit)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}

func parseStatus(raw string) (*jobs.Status, error) {
	if raw == "" {
		return nil, nil
	}
	s := jobs.Status(raw)
	switch s {
	case jobs.StatusPending, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusCancelled:
		return &s, nil
	default:
		return nil, errors.New("invalid status")
	}
}
