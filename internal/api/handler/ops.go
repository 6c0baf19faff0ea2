// Package handler provides HTTP handlers for the trip API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// ProviderHealthSource reports the health of external providers.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// DependencyCheck probes a subsystem the service needs to serve traffic.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Version      string
	BuildTime    string
	Providers    ProviderHealthSource
	Dependencies []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	providers    ProviderHealthSource
	dependencies []DependencyCheck
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		providers:    cfg.Providers,
		dependencies: cfg.Dependencies,
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

// ReadinessCheck handles GET /v1/ops/ready - fails while any dependency is down.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkDependencies(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	status := http.StatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"failing": s.Name}
			status = http.StatusServiceUnavailable
			break
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.checkDependencies(r.Context()),
		Providers:  h.providerStatuses(),
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, p.Provider)
			if status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkDependencies(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.dependencies))
	for _, dep := range h.dependencies {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := dep.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: dep.Name, Status: models.HealthStatusOK}
		if err != nil {
			msg := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &msg
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.providers == nil {
		return []models.ProviderStatus{}
	}

	all := h.providers.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, p := range all {
		ps := models.ProviderStatus{
			Provider:      p.Name,
			Status:        models.HealthStatusOK,
			Circuit:       p.CircuitState.String(),
			Failures:      p.Counts.ConsecutiveFailures,
			LastSuccessAt: timestampPtr(p.LastSuccessAt),
			LastFailureAt: timestampPtr(p.LastFailureAt),
		}
		switch {
		case p.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case p.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
