package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/pipeline"
	"github.com/qaengine/qaengine/pkg/httputil"
)

// CoverageHandler serves the registry, the gap report, and reset.
type CoverageHandler struct {
	service *pipeline.Service
	logger  *zap.Logger
}

func NewCoverageHandler(service *pipeline.Service, logger *zap.Logger) *CoverageHandler {
	return &CoverageHandler{service: service, logger: logger}
}

// Show serves the full coverage registry.
func (h *CoverageHandler) Show(w http.ResponseWriter, r *http.Request) {
	reg, err := h.service.Store().LoadRegistry()
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	if reg == nil {
		httputil.JSONError(w, http.StatusNotFound, "NOT_FOUND", "no coverage registry yet; run the pipeline first", nil)
		return
	}
	httputil.JSON(w, http.StatusOK, reg)
}

// Gaps serves the analyzer's report for the next planning cycle.
func (h *CoverageHandler) Gaps(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Gaps()
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Reset deletes the registry (and its Postgres mirror when enabled).
func (h *CoverageHandler) Reset(w http.ResponseWriter, r *http.Request) {
	reg, err := h.service.Store().LoadRegistry()
	if err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}

	if err := h.service.Store().ResetCoverage(); err != nil {
		httputil.ErrorFromApp(w, err)
		return
	}
	if repos := h.service.Repos(); repos != nil && reg != nil {
		if err := repos.Coverage.Reset(r.Context(), reg.TargetURL); err != nil {
			h.logger.Warn("resetting coverage mirror failed", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
