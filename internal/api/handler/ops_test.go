package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

type staticHealth []*resilience.ProviderHealth

func (s staticHealth) GetAllHealth() []*resilience.ProviderHealth { return s }

func TestOpsHandler_SystemStatus_ProviderStates(t *testing.T) {
	h := NewOpsHandler(OpsConfig{
		Version: "test",
		Providers: staticHealth{
			{Name: "google_maps", CircuitState: gobreaker.StateClosed},
			{
				Name:         "openrouteservice",
				CircuitState: gobreaker.StateOpen,
				Counts:       gobreaker.Counts{ConsecutiveFailures: 5},
				LastError:    "server error: 503",
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	h.SystemStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Providers, 2)
	assert.Equal(t, "google_maps", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.Equal(t, "closed", status.Providers[0].Circuit)
	assert.Equal(t, models.HealthStatusFail, status.Providers[1].Status)
	assert.Equal(t, "open", status.Providers[1].Circuit)
	assert.Equal(t, uint32(5), status.Providers[1].Failures)
	require.NotNil(t, status.Providers[1].Message)
	assert.Equal(t, "server error: 503", *status.Providers[1].Message)
	assert.Equal(t, []string{"openrouteservice"}, status.ActiveDegradationFlags)
}

func TestOpsHandler_SystemStatus_RegistryClients(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("google_maps")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)
	registry.RecordSuccess("google_maps")

	h := NewOpsHandler(OpsConfig{Providers: registry})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	h.SystemStatus(w, req)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Providers, 1)
	assert.NotNil(t, status.Providers[0].LastSuccessAt)
}

func TestOpsHandler_SystemStatus_FailingDependency(t *testing.T) {
	h := NewOpsHandler(OpsConfig{
		Dependencies: []DependencyCheck{{Name: "postgres", Check: func(_ context.Context) error {
			return errors.New("dial tcp: connection refused")
		}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	h.SystemStatus(w, req)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Subsystems, 1)
	require.NotNil(t, status.Subsystems[0].Detail)
	assert.Contains(t, *status.Subsystems[0].Detail, "connection refused")
}
