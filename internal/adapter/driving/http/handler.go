// Package httphandler serves the JSON API for job ingestion, audit and manual cycles.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/autorevert/internal/application"
	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxIngestBytes   = 8 << 20
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	jobStore    driven.JobStore
	actionStore driven.ActionStore
	runStore    driven.RunStore
	service     *application.AutorevertService
	db          Pinger
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. service and
// db may be nil; cycle and pattern endpoints then answer 503 and health
// skips the store check.
func NewHandler(
	jobStore driven.JobStore,
	actionStore driven.ActionStore,
	runStore driven.RunStore,
	service *application.AutorevertService,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		jobStore:    jobStore,
		actionStore: actionStore,
		runStore:    runStore,
		service:     service,
		db:          db,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/jobs", h.IngestJobs)
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("POST /api/v1/cycles", h.TriggerCycle)
	mux.HandleFunc("GET /api/v1/workflows/{workflow}/patterns", h.ListPatterns)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports service liveness and, when configured, database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// IngestJobs stores job results pushed by a CI webhook relay. The batch is
// accepted or rejected as a whole.
func (h *Handler) IngestJobs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)

	var req []JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobs := make([]model.JobResult, 0, len(req))
	for _, j := range req {
		jobs = append(jobs, j.toModel())
	}

	if err := h.jobStore.UpsertJobs(r.Context(), jobs); err != nil {
		if errors.Is(err, driven.ErrInvalidJob) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to store jobs", "count", len(jobs), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{Accepted: len(jobs)})
}

// ListEvents returns the most recent recorded actions.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := h.actionStore.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRuns returns the most recent cycle summaries.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.runStore.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerCycle runs an analysis cycle immediately and returns its summary.
// A cycle that ran but hit errors still answers 200; the summary carries
// the error text.
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis service not running")
		return
	}

	summary, err := h.service.TriggerCycle(r.Context())
	if err != nil {
		h.logger.Error("manual cycle failed", "run_id", summary.RunID, "error", err)
		if summary.RunID == "" {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if summary.Error == "" {
			summary.Error = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, toRunResponse(summary))
}

// ListPatterns runs the pattern checker on a tracked workflow without
// taking any action.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis service not running")
		return
	}

	workflow := r.PathValue("workflow")

	patterns, err := h.service.DetectPatterns(r.Context(), workflow)
	if err != nil {
		if errors.Is(err, application.ErrWorkflowNotLoaded) {
			writeError(w, http.StatusNotFound, "workflow not tracked")
			return
		}
		h.logger.Error("failed to detect patterns", "workflow", workflow, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]PatternResponse, 0, len(patterns))
	for _, p := range patterns {
		resp = append(resp, toPatternResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads the optional limit query parameter. It writes a 400 and
// returns false on invalid input.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}

	return min(limit, maxListLimit), true
}
