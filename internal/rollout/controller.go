package rollout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/telemetry"
	"github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// latencyAlpha is the smoothing factor of the exponential moving average
// used for the endpoint latency estimate: each sample contributes 20%,
// the running estimate 80%.
const latencyAlpha = 0.2

// Config configures the rollout controller.
type Config struct {
	// CanaryPct is the traffic percentage a canary deployment starts at.
	CanaryPct int `json:"canary_pct" yaml:"canary_pct"`
	// RollingPct is the traffic percentage a rolling deployment starts at.
	RollingPct int `json:"rolling_pct" yaml:"rolling_pct"`
}

// DefaultConfig returns the default rollout configuration.
func DefaultConfig() *Config {
	return &Config{CanaryPct: 10, RollingPct: 50}
}

// Stats counts controller activity since start.
type Stats struct {
	EndpointsCreated int64 `json:"endpoints_created"`
	DeploymentsDone  int64 `json:"deployments_done"`
	RollbacksDone    int64 `json:"rollbacks_done"`
	HealthChecksDone int64 `json:"health_checks_done"`
}

// Controller owns Endpoint and Deployment records. It executes deployment
// strategies against a (model, version) pair, tracks traffic weight,
// promotes or rolls back, and aggregates health from traffic counters.
// Mutations are serialized behind a single mutex.
type Controller struct {
	logger      *logrus.Logger
	config      *Config
	endpoints   interfaces.EndpointRepository
	deployments interfaces.DeploymentRepository
	metrics     *metrics.Metrics
	sink        telemetry.Sink

	mu    sync.Mutex
	stats Stats
}

// New creates a rollout controller over the given repositories. A nil sink
// disables telemetry forwarding.
func New(repos *interfaces.Repositories, config *Config, m *metrics.Metrics, sink telemetry.Sink, logger *logrus.Logger) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		logger:      logger,
		config:      config,
		endpoints:   repos.Endpoints,
		deployments: repos.Deployments,
		metrics:     m,
		sink:        sink,
	}
}

// CreateEndpoint creates a serving endpoint bound to the given
// (model, version) pair, receiving 100% of traffic and starting healthy.
func (c *Controller) CreateEndpoint(ctx context.Context, name, modelID, versionID string, minInstances, maxInstances int) (*models.Endpoint, error) {
	if minInstances < 1 {
		minInstances = 1
	}
	if maxInstances < minInstances {
		maxInstances = minInstances
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	endpoint := &models.Endpoint{
		ID:               newID("ep"),
		Name:             name,
		ActiveModelID:    modelID,
		ActiveVersionID:  versionID,
		MinInstances:     minInstances,
		MaxInstances:     maxInstances,
		CurrentInstances: minInstances,
		Health:           models.HealthHealthy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.endpoints.Create(ctx, endpoint); err != nil {
		return nil, err
	}
	c.stats.EndpointsCreated++

	c.logger.WithFields(logrus.Fields{
		"endpoint_id": endpoint.ID,
		"name":        name,
		"model_id":    modelID,
		"version_id":  versionID,
	}).Info("Created endpoint")

	return endpoint, nil
}

// Deploy starts a rollout of (modelID, versionID) onto an endpoint.
// The endpoint's active version at call time is captured as
// PreviousVersionID before any state changes; rollback restores exactly
// that value. Only the immediate strategy switches the endpoint's active
// pair at deploy time; the others shift traffic and wait for Promote.
func (c *Controller) Deploy(ctx context.Context, endpointID, modelID, versionID, strategy string) (*models.Deployment, error) {
	strat, ok := models.ParseStrategy(strategy)
	if !ok {
		return nil, errors.NewInvalidArgumentError(errors.ErrInvalidStrategy, errors.CodeInvalidStrategy,
			fmt.Sprintf("unrecognized strategy %q", strategy))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	endpoint, err := c.endpoints.Get(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	deployment := &models.Deployment{
		ID:                newID("dep"),
		EndpointID:        endpointID,
		ModelID:           modelID,
		VersionID:         versionID,
		PreviousVersionID: endpoint.ActiveVersionID,
		Strategy:          strat,
		Status:            models.DeploymentCreated,
		CreatedAt:         now,
	}

	switch strat {
	case models.StrategyImmediate:
		deployment.Status = models.DeploymentCompleted
		deployment.TrafficPct = 100
		deployment.CompletedAt = &now
		endpoint.ActiveModelID = modelID
		endpoint.ActiveVersionID = versionID
		endpoint.UpdatedAt = now
		if err := c.endpoints.Update(ctx, endpoint); err != nil {
			return nil, err
		}
	case models.StrategyCanary:
		deployment.Status = models.DeploymentCanary
		deployment.TrafficPct = c.config.CanaryPct
	case models.StrategyBlueGreen:
		deployment.Status = models.DeploymentStaged
		deployment.TrafficPct = 0
	case models.StrategyRolling:
		deployment.Status = models.DeploymentRolling
		deployment.TrafficPct = c.config.RollingPct
	}

	if err := c.deployments.Create(ctx, deployment); err != nil {
		return nil, err
	}
	c.stats.DeploymentsDone++
	c.metrics.ObserveDeployment(strat)

	c.logger.WithFields(logrus.Fields{
		"deployment_id": deployment.ID,
		"endpoint_id":   endpointID,
		"version_id":    versionID,
		"strategy":      strat,
		"traffic_pct":   deployment.TrafficPct,
	}).Info("Started deployment")

	return deployment, nil
}

// Promote completes a deployment: the endpoint's active pair becomes the
// deployment's pair and traffic goes to 100%. Terminal deployments cannot
// be promoted again.
func (c *Controller) Promote(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deployment, err := c.deployments.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.Status.Terminal() {
		return nil, errors.NewInvalidStateError(errors.ErrTerminalDeployment, errors.CodeTerminalDeployment,
			fmt.Sprintf("deployment %s is %s", deploymentID, deployment.Status))
	}

	endpoint, err := c.endpoints.Get(ctx, deployment.EndpointID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	endpoint.ActiveModelID = deployment.ModelID
	endpoint.ActiveVersionID = deployment.VersionID
	endpoint.UpdatedAt = now
	if err := c.endpoints.Update(ctx, endpoint); err != nil {
		return nil, err
	}

	deployment.Status = models.DeploymentCompleted
	deployment.TrafficPct = 100
	deployment.CompletedAt = &now
	if err := c.deployments.Update(ctx, deployment); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"deployment_id": deploymentID,
		"endpoint_id":   endpoint.ID,
		"version_id":    deployment.VersionID,
	}).Info("Promoted deployment")

	return deployment, nil
}

// Rollback aborts a deployment and restores the endpoint's active version
// to the one captured at deploy time. Terminal deployments cannot be
// rolled back.
func (c *Controller) Rollback(ctx context.Context, deploymentID, reason string) (*models.Deployment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deployment, err := c.deployments.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.Status.Terminal() {
		return nil, errors.NewInvalidStateError(errors.ErrTerminalDeployment, errors.CodeTerminalDeployment,
			fmt.Sprintf("deployment %s is %s", deploymentID, deployment.Status))
	}

	now := time.Now().UTC()
	endpoint, err := c.endpoints.Get(ctx, deployment.EndpointID)
	if err == nil && deployment.PreviousVersionID != "" {
		endpoint.ActiveVersionID = deployment.PreviousVersionID
		endpoint.UpdatedAt = now
		if err := c.endpoints.Update(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	deployment.Status = models.DeploymentRolledBack
	deployment.RollbackReason = reason
	deployment.RolledBackAt = &now
	if err := c.deployments.Update(ctx, deployment); err != nil {
		return nil, err
	}
	c.stats.RollbacksDone++
	c.metrics.ObserveRollback()

	c.logger.WithFields(logrus.Fields{
		"deployment_id":    deploymentID,
		"previous_version": deployment.PreviousVersionID,
		"reason":           reason,
	}).Warn("Rolled back deployment")

	return deployment, nil
}

// RecordTraffic accumulates request and error totals and folds the latency
// sample into the exponential moving average. A latency sample of 0 leaves
// the estimate untouched.
func (c *Controller) RecordTraffic(ctx context.Context, endpointID string, requests, errorCount int64, latencyMS float64) (*models.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoint, err := c.endpoints.Get(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	endpoint.RequestsTotal += requests
	endpoint.ErrorsTotal += errorCount
	if latencyMS > 0 {
		if endpoint.LatencyMS == 0 {
			endpoint.LatencyMS = latencyMS
		} else {
			endpoint.LatencyMS = latencyAlpha*latencyMS + (1-latencyAlpha)*endpoint.LatencyMS
		}
	}
	endpoint.UpdatedAt = time.Now().UTC()
	if err := c.endpoints.Update(ctx, endpoint); err != nil {
		return nil, err
	}

	c.metrics.ObserveTraffic(requests, errorCount)
	c.metrics.SetEndpointLatency(endpointID, endpoint.LatencyMS)
	c.sink.RecordTrafficSample(ctx, endpointID, requests, errorCount, latencyMS)

	return endpoint, nil
}

// CheckHealth classifies an endpoint from its cumulative error rate:
// 10% and above is unhealthy, 5% and above degraded, otherwise healthy.
func (c *Controller) CheckHealth(ctx context.Context, endpointID string) (*HealthReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoint, err := c.endpoints.Get(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	var errorRate float64
	if endpoint.RequestsTotal > 0 {
		errorRate = float64(endpoint.ErrorsTotal) / float64(endpoint.RequestsTotal)
	}

	health := models.HealthHealthy
	switch {
	case errorRate >= 0.10:
		health = models.HealthUnhealthy
	case errorRate >= 0.05:
		health = models.HealthDegraded
	}

	if endpoint.Health != health {
		endpoint.Health = health
		endpoint.UpdatedAt = time.Now().UTC()
		if err := c.endpoints.Update(ctx, endpoint); err != nil {
			return nil, err
		}
	}
	c.stats.HealthChecksDone++
	c.metrics.SetEndpointHealth(endpointID, health)

	return &HealthReport{
		EndpointID: endpointID,
		Health:     health,
		ErrorRate:  errorRate,
		Requests:   endpoint.RequestsTotal,
		Errors:     endpoint.ErrorsTotal,
		LatencyMS:  endpoint.LatencyMS,
	}, nil
}

// HealthReport is the outcome of one health check.
type HealthReport struct {
	EndpointID string        `json:"endpoint_id"`
	Health     models.Health `json:"health"`
	ErrorRate  float64       `json:"error_rate"`
	Requests   int64         `json:"requests"`
	Errors     int64         `json:"errors"`
	LatencyMS  float64       `json:"latency_ms"`
}

// GetEndpoint returns an endpoint by id.
func (c *Controller) GetEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	return c.endpoints.Get(ctx, endpointID)
}

// GetDeployment returns a deployment by id.
func (c *Controller) GetDeployment(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	return c.deployments.Get(ctx, deploymentID)
}

// IsVersionActive reports whether any endpoint currently serves the given
// version. The registry's retention policy uses this to protect bound
// versions from archival.
func (c *Controller) IsVersionActive(ctx context.Context, versionID string) bool {
	endpoints, err := c.endpoints.List(ctx)
	if err != nil {
		return false
	}
	for _, e := range endpoints {
		if e.ActiveVersionID == versionID {
			return true
		}
	}
	return false
}

// Summary aggregates controller state.
func (c *Controller) Summary(ctx context.Context) (*Summary, error) {
	endpoints, err := c.endpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	deployments, err := c.deployments.List(ctx)
	if err != nil {
		return nil, err
	}

	inFlight := 0
	for _, d := range deployments {
		if !d.Status.Terminal() {
			inFlight++
		}
	}

	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	return &Summary{
		TotalEndpoints:      len(endpoints),
		TotalDeployments:    len(deployments),
		InFlightDeployments: inFlight,
		Stats:               stats,
	}, nil
}

// Summary is the controller's aggregate view.
type Summary struct {
	TotalEndpoints      int   `json:"total_endpoints"`
	TotalDeployments    int   `json:"total_deployments"`
	InFlightDeployments int   `json:"in_flight_deployments"`
	Stats               Stats `json:"stats"`
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
