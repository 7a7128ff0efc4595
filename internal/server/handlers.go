package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/drift"
	"github.com/inferloop/modelops/internal/lifecycle"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/internal/rollout"
	apperrors "github.com/inferloop/modelops/pkg/errors"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Handlers bundles the lifecycle components behind HTTP endpoints.
type Handlers struct {
	logger       *logrus.Logger
	registry     *registry.Registry
	rollout      *rollout.Controller
	drift        *drift.Monitor
	orchestrator *lifecycle.Orchestrator
	metrics      *metrics.Metrics
	build        BuildInfo
	startTime    time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(reg *registry.Registry, ctrl *rollout.Controller, mon *drift.Monitor, orch *lifecycle.Orchestrator, m *metrics.Metrics, build BuildInfo, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		logger:       logger,
		registry:     reg,
		rollout:      ctrl,
		drift:        mon,
		orchestrator: orch,
		metrics:      m,
		build:        build,
		startTime:    time.Now().UTC(),
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

// Version reports build information.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.build)
}

// Metrics returns the Prometheus scrape handler.
func (h *Handlers) Metrics() http.Handler {
	return h.metrics.Handler()
}

// NotFound is the catch-all handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]string{
			"code":    "ROUTE_NOT_FOUND",
			"message": "no such route: " + r.URL.Path,
		},
	})
}

// --- Models and versions ---

func (h *Handlers) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string   `json:"name"`
		BaseModel string   `json:"base_model"`
		Provider  string   `json:"provider"`
		Tags      []string `json:"tags"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	model, err := h.registry.RegisterModel(r.Context(), req.Name, req.BaseModel, req.Provider, req.Tags)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, model)
}

func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.registry.GetModel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, model)
}

func (h *Handlers) GetLineage(w http.ResponseWriter, r *http.Request) {
	lineage, err := h.registry.GetLineage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"lineage": lineage})
}

func (h *Handlers) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID           string                 `json:"job_id"`
		DatasetID       string                 `json:"dataset_id"`
		Metrics         map[string]float64     `json:"metrics"`
		Hyperparameters map[string]interface{} `json:"hyperparameters"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.registry.CreateVersion(r.Context(), mux.Vars(r)["id"], req.JobID, req.Metrics, req.Hyperparameters, req.DatasetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, version)
}

func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.registry.GetVersion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, version)
}

func (h *Handlers) PromoteVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage    string `json:"stage"`
		Approver string `json:"approver"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.registry.PromoteVersion(r.Context(), mux.Vars(r)["id"], req.Stage, req.Approver)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, version)
}

func (h *Handlers) ArchiveVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.registry.ArchiveVersion(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, version)
}

// AttachArtifact streams the request body into the artifact store. The
// filename comes from the query string, defaulting to "model.bin".
func (h *Handlers) AttachArtifact(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "model.bin"
	}
	defer r.Body.Close()

	version, err := h.registry.AttachArtifact(r.Context(), mux.Vars(r)["id"], filename, r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, version)
}

// --- Endpoints and deployments ---

func (h *Handlers) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		ModelID      string `json:"model_id"`
		VersionID    string `json:"version_id"`
		MinInstances int    `json:"min_instances"`
		MaxInstances int    `json:"max_instances"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	endpoint, err := h.rollout.CreateEndpoint(r.Context(), req.Name, req.ModelID, req.VersionID, req.MinInstances, req.MaxInstances)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, endpoint)
}

func (h *Handlers) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := h.rollout.GetEndpoint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, endpoint)
}

func (h *Handlers) Deploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelID   string `json:"model_id"`
		VersionID string `json:"version_id"`
		Strategy  string `json:"strategy"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	deployment, err := h.rollout.Deploy(r.Context(), mux.Vars(r)["id"], req.ModelID, req.VersionID, req.Strategy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, deployment)
}

func (h *Handlers) GetDeployment(w http.ResponseWriter, r *http.Request) {
	deployment, err := h.rollout.GetDeployment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deployment)
}

func (h *Handlers) PromoteDeployment(w http.ResponseWriter, r *http.Request) {
	deployment, err := h.rollout.Promote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deployment)
}

func (h *Handlers) RollbackDeployment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	deployment, err := h.rollout.Rollback(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deployment)
}

func (h *Handlers) RecordTraffic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests  int64   `json:"requests"`
		Errors    int64   `json:"errors"`
		LatencyMS float64 `json:"latency_ms"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	endpoint, err := h.rollout.RecordTraffic(r.Context(), mux.Vars(r)["id"], req.Requests, req.Errors, req.LatencyMS)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, endpoint)
}

func (h *Handlers) CheckHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.rollout.CheckHealth(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// --- Drift monitors ---

func (h *Handlers) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelID         string   `json:"model_id"`
		EndpointID      string   `json:"endpoint_id"`
		MetricNames     []string `json:"metric_names"`
		CheckIntervalMS int64    `json:"check_interval_ms"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	monitor, err := h.drift.CreateMonitor(r.Context(), req.ModelID, req.EndpointID, req.MetricNames,
		time.Duration(req.CheckIntervalMS)*time.Millisecond)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, monitor)
}

func (h *Handlers) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.drift.ListMonitors(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": monitors, "count": len(monitors)})
}

func (h *Handlers) GetMonitor(w http.ResponseWriter, r *http.Request) {
	monitor, err := h.drift.GetMonitor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, monitor)
}

func (h *Handlers) SetBaseline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	monitor, err := h.drift.SetBaseline(r.Context(), mux.Vars(r)["id"], req.Metrics)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, monitor)
}

func (h *Handlers) RecordSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metrics   map[string]float64 `json:"metrics"`
		DataStats map[string]float64 `json:"data_stats"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	snapshot, err := h.drift.RecordSnapshot(r.Context(), mux.Vars(r)["id"], req.Metrics, req.DataStats)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handlers) DetectDrift(w http.ResponseWriter, r *http.Request) {
	report, err := h.drift.DetectDrift(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetDriftHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.drift.GetDriftHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"history": history, "count": len(history)})
}

func (h *Handlers) ShouldRetrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	decision, err := h.drift.ShouldRetrain(r.Context(), mux.Vars(r)["id"], req.Threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, decision)
}

// --- Lifecycle ---

func (h *Handlers) EvaluateMonitor(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.EvaluateMonitor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// --- Helpers ---

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{
				"code":    "INVALID_BODY",
				"message": "invalid request body: " + err.Error(),
			},
		})
		return false
	}
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeJSON(w, appErr.HTTPStatus(), map[string]interface{}{"error": appErr})
		return
	}
	h.logger.WithError(err).Error("Unhandled error")
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]string{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
