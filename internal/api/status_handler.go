package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/asyncapp/internal/api/shared"
	"github.com/phrazzld/asyncapp/internal/app"
	"github.com/phrazzld/asyncapp/internal/probe"
	"github.com/phrazzld/asyncapp/internal/task"
)

// Runtime is the part of the application the status handlers read from.
type Runtime interface {
	Name() string
	KeepRunning() bool
	Exit(reason string)
	Snapshot() task.Snapshot
	Periodicals() []task.PeriodicalReport
	Results() ([]task.Record, error)
}

// ResourceSampler samples process and host resource usage.
type ResourceSampler interface {
	Process(ctx context.Context) probe.ProcessStats
	System(ctx context.Context) probe.SystemStats
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app"`
	Running bool   `json:"running"`
}

// PeriodicalsResponse is returned by GET /api/status/periodicals.
type PeriodicalsResponse struct {
	Periodicals []task.PeriodicalReport `json:"periodicals"`
}

// ResourcesResponse is returned by GET /api/status/process.
type ResourcesResponse struct {
	Process probe.ProcessStats `json:"process"`
	System  probe.SystemStats  `json:"system"`
}

// ResultsResponse is returned by GET /api/results.
type ResultsResponse struct {
	Records     []task.Record       `json:"records"`
	Results     map[string][]any    `json:"results"`
	Exceptions  map[string][]string `json:"exceptions"`
	Unqueryable []string            `json:"unqueryable"`
}

// ShutdownResponse is returned by POST /api/shutdown.
type ShutdownResponse struct {
	Status string `json:"status"`
}

// StatusHandler serves the read-only status endpoints and the shutdown
// endpoint.
type StatusHandler struct {
	runtime Runtime
	sampler ResourceSampler
	logger  *slog.Logger
}

// NewStatusHandler creates a handler over rt. sampler may be nil, in which
// case the resource endpoint reports 503.
func NewStatusHandler(rt Runtime, sampler ResourceSampler, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		runtime: rt,
		sampler: sampler,
		logger:  logger.With("component", "status_handler"),
	}
}

// Health reports whether the server is up and the run flag is still set.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "ok",
		App:     h.runtime.Name(),
		Running: h.runtime.KeepRunning(),
	})
}

// GetTasks returns the current task state snapshot.
func (h *StatusHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.runtime.Snapshot())
}

// GetPeriodicals returns the observed frequencies of monitored periodic tasks.
func (h *StatusHandler) GetPeriodicals(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, PeriodicalsResponse{
		Periodicals: h.runtime.Periodicals(),
	})
}

// GetResources samples process and host resource usage.
func (h *StatusHandler) GetResources(w http.ResponseWriter, r *http.Request) {
	if h.sampler == nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Resource sampling is unavailable")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ResourcesResponse{
		Process: h.sampler.Process(r.Context()),
		System:  h.sampler.System(r.Context()),
	})
}

// GetResults returns one record per task unit once the run has finished.
func (h *StatusHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	records, err := h.runtime.Results()
	if err != nil {
		if errors.Is(err, app.ErrRunNotFinished) {
			shared.RespondWithError(w, r, http.StatusConflict, "Run has not finished yet")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to get results", err)
		return
	}

	results, exceptions, unqueryable := task.Summarize(records)
	shared.RespondWithJSON(w, r, http.StatusOK, ResultsResponse{
		Records:     records,
		Results:     results,
		Exceptions:  exceptions,
		Unqueryable: unqueryable,
	})
}

// Shutdown clears the run flag. The response is sent before units return.
func (h *StatusHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	subject, ok := shared.GetSubject(r.Context())
	if !ok {
		subject = "anonymous"
	}

	if !h.runtime.KeepRunning() {
		shared.RespondWithJSON(w, r, http.StatusOK, ShutdownResponse{Status: "already stopping"})
		return
	}

	h.logger.Info("shutdown requested over HTTP", "subject", subject)
	h.runtime.Exit(fmt.Sprintf("shutdown requested by %s", subject))
	shared.RespondWithJSON(w, r, http.StatusAccepted, ShutdownResponse{Status: "stopping"})
}
