package rollout

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/internal/storage/memory"
	apperrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return New(memory.NewRepositories(), DefaultConfig(), nil, nil, logrus.New())
}

func TestCreateEndpoint(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 2, 6)
	require.NoError(t, err)

	assert.NotEmpty(t, endpoint.ID)
	assert.Equal(t, "model_1", endpoint.ActiveModelID)
	assert.Equal(t, "model_1_v1", endpoint.ActiveVersionID)
	assert.Equal(t, models.HealthHealthy, endpoint.Health)
	assert.Equal(t, 2, endpoint.CurrentInstances)
}

func TestCreateEndpointClampsInstances(t *testing.T) {
	ctrl := newTestController(t)

	endpoint, err := ctrl.CreateEndpoint(context.Background(), "chat-prod", "model_1", "model_1_v1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, endpoint.MinInstances)
	assert.Equal(t, 1, endpoint.MaxInstances)
}

func TestDeployStrategies(t *testing.T) {
	tests := []struct {
		strategy       string
		wantStatus     models.DeploymentStatus
		wantTraffic    int
		switchesActive bool
	}{
		{"immediate", models.DeploymentCompleted, 100, true},
		{"canary", models.DeploymentCanary, 10, false},
		{"blue_green", models.DeploymentStaged, 0, false},
		{"rolling", models.DeploymentRolling, 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			ctrl := newTestController(t)
			ctx := context.Background()

			endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
			require.NoError(t, err)

			deployment, err := ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", tt.strategy)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, deployment.Status)
			assert.Equal(t, tt.wantTraffic, deployment.TrafficPct)
			assert.Equal(t, "model_1_v1", deployment.PreviousVersionID)

			updated, err := ctrl.GetEndpoint(ctx, endpoint.ID)
			require.NoError(t, err)
			if tt.switchesActive {
				assert.Equal(t, "model_1_v2", updated.ActiveVersionID)
			} else {
				assert.Equal(t, "model_1_v1", updated.ActiveVersionID)
			}
		})
	}
}

func TestDeployUnknownStrategy(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)

	_, err = ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "yolo")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestPromoteDeployment(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)
	deployment, err := ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "canary")
	require.NoError(t, err)

	promoted, err := ctrl.Promote(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentCompleted, promoted.Status)
	assert.Equal(t, 100, promoted.TrafficPct)
	assert.NotNil(t, promoted.CompletedAt)

	updated, err := ctrl.GetEndpoint(ctx, endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, "model_1_v2", updated.ActiveVersionID)
}

func TestPromoteTerminalDeploymentFails(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)
	deployment, err := ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "immediate")
	require.NoError(t, err)

	_, err = ctrl.Promote(ctx, deployment.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestRollbackRestoresPreviousVersion(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)
	deployment, err := ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "rolling")
	require.NoError(t, err)

	rolled, err := ctrl.Rollback(ctx, deployment.ID, "error spike")
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentRolledBack, rolled.Status)
	assert.Equal(t, "error spike", rolled.RollbackReason)
	assert.NotNil(t, rolled.RolledBackAt)

	updated, err := ctrl.GetEndpoint(ctx, endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, "model_1_v1", updated.ActiveVersionID)
}

func TestRollbackTerminalDeploymentFails(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)
	deployment, err := ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "canary")
	require.NoError(t, err)

	_, err = ctrl.Rollback(ctx, deployment.ID, "first")
	require.NoError(t, err)

	_, err = ctrl.Rollback(ctx, deployment.ID, "second")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestRecordTrafficLatencyEMA(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)

	// First sample seeds the estimate.
	updated, err := ctrl.RecordTraffic(ctx, endpoint.ID, 100, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.LatencyMS)

	// Second sample is folded in at alpha 0.2.
	updated, err = ctrl.RecordTraffic(ctx, endpoint.ID, 100, 0, 50)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, updated.LatencyMS, 1e-9)

	// A zero sample leaves the estimate untouched.
	updated, err = ctrl.RecordTraffic(ctx, endpoint.ID, 100, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, updated.LatencyMS, 1e-9)
	assert.Equal(t, int64(300), updated.RequestsTotal)
}

func TestCheckHealthThresholds(t *testing.T) {
	tests := []struct {
		name     string
		requests int64
		errors   int64
		want     models.Health
	}{
		{"no traffic", 0, 0, models.HealthHealthy},
		{"clean", 100, 0, models.HealthHealthy},
		{"just under degraded", 100, 4, models.HealthHealthy},
		{"degraded boundary", 100, 5, models.HealthDegraded},
		{"degraded", 100, 6, models.HealthDegraded},
		{"unhealthy boundary", 100, 10, models.HealthUnhealthy},
		{"unhealthy", 100, 11, models.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestController(t)
			ctx := context.Background()

			endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
			require.NoError(t, err)
			if tt.requests > 0 {
				_, err = ctrl.RecordTraffic(ctx, endpoint.ID, tt.requests, tt.errors, 50)
				require.NoError(t, err)
			}

			report, err := ctrl.CheckHealth(ctx, endpoint.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Health)

			updated, err := ctrl.GetEndpoint(ctx, endpoint.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated.Health)
		})
	}
}

func TestIsVersionActive(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	_, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)

	assert.True(t, ctrl.IsVersionActive(ctx, "model_1_v1"))
	assert.False(t, ctrl.IsVersionActive(ctx, "model_1_v2"))
}

func TestSummaryCountsInFlight(t *testing.T) {
	ctrl := newTestController(t)
	ctx := context.Background()

	endpoint, err := ctrl.CreateEndpoint(ctx, "chat-prod", "model_1", "model_1_v1", 1, 2)
	require.NoError(t, err)

	_, err = ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v2", "canary")
	require.NoError(t, err)
	_, err = ctrl.Deploy(ctx, endpoint.ID, "model_1", "model_1_v3", "immediate")
	require.NoError(t, err)

	summary, err := ctrl.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalEndpoints)
	assert.Equal(t, 2, summary.TotalDeployments)
	assert.Equal(t, 1, summary.InFlightDeployments)
}
