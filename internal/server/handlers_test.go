package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/internal/drift"
	"github.com/inferloop/modelops/internal/lifecycle"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/internal/rollout"
	"github.com/inferloop/modelops/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	repos := memory.NewRepositories()
	m := metrics.New("modelops_test")

	reg := registry.New(repos, registry.DefaultConfig(), m, logger)
	ctrl := rollout.New(repos, rollout.DefaultConfig(), m, nil, logger)
	mon := drift.New(repos, drift.DefaultConfig(), m, nil, nil, logger)
	orch := lifecycle.New(lifecycle.DefaultConfig(), reg, ctrl, mon, nil, logger)

	handlers := NewHandlers(reg, ctrl, mon, orch, m, BuildInfo{Version: "test"}, logger)
	srv, err := NewServer(DefaultConfig(), handlers, logger)
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRegisterAndGetModel(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/models", map[string]interface{}{
		"name":       "support-bot",
		"base_model": "llama-3-8b",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/models/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "support-bot")
}

func TestGetModelNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/models/model_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "MODEL_NOT_FOUND")
}

func TestRegisterModelMissingName(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/models", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_FIELD")
}

func TestVersionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/models", map[string]interface{}{"name": "support-bot"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var model struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &model))

	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/models/%s/versions", model.ID), map[string]interface{}{
		"job_id":  "job_1",
		"metrics": map[string]float64{"accuracy": 0.9},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var version struct {
		ID      string `json:"id"`
		Ordinal int    `json:"ordinal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, 1, version.Ordinal)

	// Promote to an invalid stage is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/versions/"+version.ID+"/promote", map[string]interface{}{
		"stage": "galactic",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/versions/"+version.ID+"/promote", map[string]interface{}{
		"stage":    "staging",
		"approver": "alice",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "staging")

	// Archive, then a second promote conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/versions/"+version.ID+"/archive", map[string]interface{}{
		"reason": "cleanup",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/versions/"+version.ID+"/promote", map[string]interface{}{
		"stage": "production",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeploymentFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/endpoints", map[string]interface{}{
		"name":       "support-prod",
		"model_id":   "model_1",
		"version_id": "model_1_v1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var endpoint struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &endpoint))

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/endpoints/"+endpoint.ID+"/deploy", map[string]interface{}{
		"model_id":   "model_1",
		"version_id": "model_1_v2",
		"strategy":   "canary",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var deployment struct {
		ID         string `json:"id"`
		TrafficPct int    `json:"traffic_pct"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployment))
	assert.Equal(t, 10, deployment.TrafficPct)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/deployments/"+deployment.ID+"/promote", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Promoting a completed deployment conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/deployments/"+deployment.ID+"/promote", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDriftFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/monitors", map[string]interface{}{
		"model_id":    "model_1",
		"endpoint_id": "ep_1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var monitor struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monitor))

	// No baseline yet: drift check reports insufficient data, not an error.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/monitors/"+monitor.ID+"/drift", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		InsufficientData bool `json:"insufficient_data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.InsufficientData)

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/monitors/"+monitor.ID+"/baseline", map[string]interface{}{
		"metrics": map[string]float64{"accuracy": 0.9},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/monitors/"+monitor.ID+"/snapshot", map[string]interface{}{
		"metrics": map[string]float64{"accuracy": 0.6},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/monitors/"+monitor.ID+"/drift", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "performance_drift")
	assert.Contains(t, rec.Body.String(), "critical")
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registry")
	assert.Contains(t, rec.Body.String(), "rollout")
	assert.Contains(t, rec.Body.String(), "drift")
}

func TestNotFoundRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")
}
