package drift

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/internal/observability/alerting"
	"github.com/inferloop/modelops/internal/storage/memory"
	apperrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	return New(memory.NewRepositories(), DefaultConfig(), nil, nil, nil, logrus.New())
}

func TestCreateMonitorDefaults(t *testing.T) {
	mon := newTestMonitor(t)

	monitor, err := mon.CreateMonitor(context.Background(), "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, monitor.ID)
	assert.Equal(t, []string{"accuracy", "latency"}, monitor.MetricNames)
	assert.Empty(t, monitor.Baseline)
	assert.Empty(t, monitor.Latest)
}

func TestDetectDriftInsufficientData(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)

	// No baseline, no snapshot.
	report, err := mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)
	assert.True(t, report.InsufficientData)
	assert.Empty(t, report.Events)

	// Baseline alone is still not enough.
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 0.92})
	require.NoError(t, err)

	report, err = mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)
	assert.True(t, report.InsufficientData)
}

func TestDetectDriftAccuracyDrop(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 0.92})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{"accuracy": 0.75}, nil)
	require.NoError(t, err)

	report, err := mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)
	require.False(t, report.InsufficientData)
	require.Len(t, report.Events, 1)

	event := report.Events[0]
	assert.Equal(t, "accuracy", event.Metric)
	assert.Equal(t, models.DriftTypePerformance, event.DriftType)
	assert.Equal(t, 0.92, event.Baseline)
	assert.Equal(t, 0.75, event.Current)
	assert.InDelta(t, 18.48, event.ChangePct, 0.001)
	assert.Equal(t, models.SeverityWarning, event.Severity)
	assert.True(t, report.DriftFound())
}

func TestDetectDriftTypeBuckets(t *testing.T) {
	tests := []struct {
		metric string
		want   models.DriftType
	}{
		{"accuracy", models.DriftTypePerformance},
		{"f1", models.DriftTypePerformance},
		{"quality", models.DriftTypePerformance},
		{"latency", models.DriftTypeModel},
		{"throughput", models.DriftTypeModel},
		{"sentiment", models.DriftTypeData},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			mon := newTestMonitor(t)
			ctx := context.Background()

			monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", []string{tt.metric}, time.Hour)
			require.NoError(t, err)
			_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{tt.metric: 1.0})
			require.NoError(t, err)
			_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{tt.metric: 0.5}, nil)
			require.NoError(t, err)

			report, err := mon.DetectDrift(ctx, monitor.ID)
			require.NoError(t, err)
			require.Len(t, report.Events, 1)
			assert.Equal(t, tt.want, report.Events[0].DriftType)
		})
	}
}

func TestDetectDriftSeverityBands(t *testing.T) {
	// Threshold is 0.1: info up to 15%, warning up to 20%, critical above.
	// Baseline is 1.0, so the current value maps directly to the change.
	tests := []struct {
		name    string
		current float64
		want    models.Severity
	}{
		{"info", 0.88, models.SeverityInfo},
		{"warning", 0.82, models.SeverityWarning},
		{"critical", 0.70, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := newTestMonitor(t)
			ctx := context.Background()

			monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
			require.NoError(t, err)
			_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 1.0})
			require.NoError(t, err)
			_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{"accuracy": tt.current}, nil)
			require.NoError(t, err)

			report, err := mon.DetectDrift(ctx, monitor.ID)
			require.NoError(t, err)
			require.Len(t, report.Events, 1)
			assert.Equal(t, tt.want, report.Events[0].Severity)
		})
	}
}

func TestDetectDriftSkipsBelowThresholdAndZeroBaseline(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{
		"accuracy": 1.0,
		"latency":  0, // zero baseline is skipped, not a division error
	})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{
		"accuracy": 0.90, // exactly the threshold, not above it
		"latency":  500,
	}, nil)
	require.NoError(t, err)

	report, err := mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)
	assert.False(t, report.InsufficientData)
	assert.Empty(t, report.Events)
	assert.False(t, report.DriftFound())
}

func TestDetectDriftAppendsHistory(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 1.0})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{"accuracy": 0.5}, nil)
	require.NoError(t, err)

	_, err = mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)
	_, err = mon.DetectDrift(ctx, monitor.ID)
	require.NoError(t, err)

	history, err := mon.GetDriftHistory(ctx, monitor.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Len(t, history[0].Events, 1)
}

func TestGenerateAlertDelivery(t *testing.T) {
	sink := alerting.NewChanSink(4)
	mon := New(memory.NewRepositories(), DefaultConfig(), nil, nil, sink, logrus.New())
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)

	event := models.DriftEvent{
		Metric:    "accuracy",
		DriftType: models.DriftTypePerformance,
		Baseline:  0.92,
		Current:   0.75,
		ChangePct: 18.48,
		Severity:  models.SeverityWarning,
	}
	alert, err := mon.GenerateAlert(ctx, monitor.ID, event)
	require.NoError(t, err)

	assert.Equal(t, "model_1", alert.ModelID)
	assert.Equal(t, models.SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "accuracy")
	assert.Contains(t, alert.Message, "18.48")

	select {
	case delivered := <-sink.C:
		assert.Equal(t, alert.ID, delivered.ID)
	default:
		t.Fatal("alert was not delivered to the sink")
	}
}

func TestShouldRetrain(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{
		"accuracy": 1.0,
		"latency":  100,
	})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{
		"accuracy": 0.95, // 5% change
		"latency":  130,  // 30% change
	}, nil)
	require.NoError(t, err)

	decision, err := mon.ShouldRetrain(ctx, monitor.ID, 0.25)
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Equal(t, "latency", decision.WorstMetric)
	assert.InDelta(t, 30.0, decision.MaxChangePct, 0.001)
	assert.Equal(t, 25.0, decision.ThresholdPct)
}

func TestShouldRetrainExactThresholdDoesNotTrigger(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 1.0})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{"accuracy": 0.8}, nil)
	require.NoError(t, err)

	decision, err := mon.ShouldRetrain(ctx, monitor.ID, 0.2)
	require.NoError(t, err)
	assert.False(t, decision.ShouldRetrain)
	assert.InDelta(t, 20.0, decision.MaxChangePct, 0.001)
}

func TestShouldRetrainUsesDefaultThreshold(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)
	_, err = mon.SetBaseline(ctx, monitor.ID, map[string]float64{"accuracy": 1.0})
	require.NoError(t, err)
	_, err = mon.RecordSnapshot(ctx, monitor.ID, map[string]float64{"accuracy": 0.7}, nil)
	require.NoError(t, err)

	// Zero threshold falls back to the configured 0.2 default.
	decision, err := mon.ShouldRetrain(ctx, monitor.ID, 0)
	require.NoError(t, err)
	assert.True(t, decision.ShouldRetrain)
	assert.Equal(t, 20.0, decision.ThresholdPct)
}

func TestShouldRetrainInsufficientData(t *testing.T) {
	mon := newTestMonitor(t)
	ctx := context.Background()

	monitor, err := mon.CreateMonitor(ctx, "model_1", "ep_1", nil, time.Hour)
	require.NoError(t, err)

	decision, err := mon.ShouldRetrain(ctx, monitor.ID, 0.2)
	require.NoError(t, err)
	assert.True(t, decision.InsufficientData)
	assert.False(t, decision.ShouldRetrain)
}

func TestMonitorNotFound(t *testing.T) {
	mon := newTestMonitor(t)

	_, err := mon.DetectDrift(context.Background(), "mon_missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
