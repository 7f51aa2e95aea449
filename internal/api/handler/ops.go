// Package handler provides HTTP handlers for the climate API.
package handler

import (
	"net/http"
	"time"

	"github.com/climabr/climabr/internal/api/models"
	"github.com/climabr/climabr/internal/api/response"
	"github.com/climabr/climabr/internal/dataset"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *dataset.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, registry *dataset.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service is
// ready once at least one dataset source has loaded; queries against sources
// that failed degrade per-request with 503 instead.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	loaded := 0
	for _, s := range h.registry.Status() {
		if s.Loaded {
			loaded++
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	status := http.StatusOK
	if loaded == 0 {
		health.Status = models.HealthStatusFail
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - per-dataset load state.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Status()

	overall := models.HealthStatusOK
	datasets := make([]models.DatasetStatus, 0, len(statuses))
	for _, s := range statuses {
		d := models.DatasetStatus{
			Category: s.Category,
			Source:   s.Source,
			Status:   models.HealthStatusOK,
		}
		if s.Loaded {
			d.TimeSteps = s.Times
			loadedAt := models.Timestamp(s.LoadedAt)
			d.LoadedAt = &loadedAt
		} else {
			d.Status = models.HealthStatusFail
			overall = models.HealthStatusDegraded
		}
		datasets = append(datasets, d)
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:   overall,
		Time:     models.Timestamp(time.Now()),
		Datasets: datasets,
	})
}
