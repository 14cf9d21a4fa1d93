// Package handlers implements the control API: pipeline stages as
// separable operations plus coverage queries.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/internal/workflows"
	"github.com/qaengine/qaengine/pkg/httputil"
)

// RunHandler starts full pipeline runs and serves run results.
type RunHandler struct {
	service        *pipeline.Service
	temporalClient client.Client
	taskQueue      string
	logger         *zap.Logger
}

func NewRunHandler(service *pipeline.Service, temporalClient client.Client, taskQueue string, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		service:        service,
		temporalClient: temporalClient,
		taskQueue:      taskQueue,
		logger:         logger,
	}
}

// CreateRunRequest is the POST /runs body.
type CreateRunRequest struct {
	TargetURL string `json:"target_url"`
	SkipCrawl bool   `json:"skip_crawl"`
	SkipPlan  bool   `json:"skip_plan"`
}

// Create starts the QA run workflow and returns its id without
// waiting; progress is visible through Temporal and GET /runs/{id}
// once execution lands.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.temporalClient == nil {
		httputil.JSONError(w, http.StatusServiceUnavailable, "TEMPORAL_UNAVAILABLE",
			"workflow engine not configured; use the stage endpoints instead", nil)
		return
	}

	var req CreateRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}

	workflowID := "qa-run-" + uuid.New().String()
	run, err := h.temporalClient.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.QARunWorkflow, workflows.RunInput{
		TargetURL: req.TargetURL,
		SkipCrawl: req.SkipCrawl,
		SkipPlan:  req.SkipPlan,
	})
	if err != nil {
		h.logger.Error("starting run workflow failed", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to start run", nil)
		return
	}

	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": workflowID,
		"run_id":      run.GetRunID(),
	})
}

// Get serves a persisted run result by run id.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.service.LoadRun(runID)
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	if run == nil {
		httputil.JSONError(w, http.StatusNotFound, "NOT_FOUND", "run not found: "+runID, nil)
		return
	}
	httputil.JSON(w, http.StatusOK, run)
}

// List serves recent run summaries from the Postgres mirror.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	repos := h.service.Repos()
	if repos == nil {
		httputil.JSONError(w, http.StatusNotImplemented, "MIRROR_DISABLED",
			"run history requires the Postgres mirror (DB_ENABLED=true)", nil)
		return
	}

	target := r.URL.Query().Get("target_url")
	rows, err := repos.Runs.ListRecent(r.Context(), target, 20)
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// StageHandler exposes the pipeline stages individually.
type StageHandler struct {
	service *pipeline.Service
	logger  *zap.Logger
}

func NewStageHandler(service *pipeline.Service, logger *zap.Logger) *StageHandler {
	return &StageHandler{service: service, logger: logger}
}

// Crawl runs the crawl stage synchronously.
func (h *StageHandler) Crawl(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		httputil.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}

	site, err := h.service.Crawl(r.Context(), req.TargetURL)
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"pages_found":   len(site.Pages),
		"api_endpoints": len(site.APIEndpoints),
		"base_url":      site.BaseURL,
	})
}

// Plan runs the planning stage synchronously.
func (h *StageHandler) Plan(w http.ResponseWriter, r *http.Request) {
	testPlan, err := h.service.Plan(r.Context(), nil)
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, testPlan)
}

// Execute runs the stored latest plan synchronously and merges
// coverage afterwards.
func (h *StageHandler) Execute(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Execute(r.Context(), nil)
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	if _, err := h.service.MergeCoverage(run); err != nil {
		h.logger.Warn("coverage merge after execute failed", zap.Error(err))
	}
	httputil.JSON(w, http.StatusOK, run)
}
