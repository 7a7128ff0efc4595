package drift

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/observability/alerting"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/telemetry"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// Config configures drift detection.
type Config struct {
	// Threshold is the relative change above which a metric counts as
	// drifted.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// RetrainThreshold is the default bound for ShouldRetrain when the
	// caller does not pass one.
	RetrainThreshold float64 `json:"retrain_threshold" yaml:"retrain_threshold"`
	// HistoryLimit caps the drift checks kept per monitor.
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
}

// DefaultConfig returns the default drift configuration.
func DefaultConfig() *Config {
	return &Config{Threshold: 0.1, RetrainThreshold: 0.2, HistoryLimit: 100}
}

// Stats counts monitor activity since start.
type Stats struct {
	MonitorsCreated int64 `json:"monitors_created"`
	SnapshotsTaken  int64 `json:"snapshots_taken"`
	DriftsDetected  int64 `json:"drifts_detected"`
	AlertsGenerated int64 `json:"alerts_generated"`
	RetrainTriggers int64 `json:"retrain_triggers"`
}

// Monitor owns drift monitors, snapshots, and alerts. It compares live
// metric snapshots against an explicit baseline, classifies deviations,
// and decides whether retraining should be triggered. Mutations are
// serialized behind a single mutex; DetectDrift and ShouldRetrain read a
// repository snapshot and may run concurrently with writers.
type Monitor struct {
	logger   *logrus.Logger
	config   *Config
	monitors interfaces.MonitorRepository
	metrics  *metrics.Metrics
	sink     telemetry.Sink
	alerts   alerting.Sink

	mu    sync.Mutex
	stats Stats
}

// New creates a drift monitor over the given repository. Nil sinks
// disable telemetry forwarding and alert delivery respectively.
func New(repos *interfaces.Repositories, config *Config, m *metrics.Metrics, sink telemetry.Sink, alerts alerting.Sink, logger *logrus.Logger) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if alerts == nil {
		alerts = alerting.NewLogSink(logger)
	}
	return &Monitor{
		logger:   logger,
		config:   config,
		monitors: repos.Monitors,
		metrics:  m,
		sink:     sink,
		alerts:   alerts,
	}
}

// CreateMonitor attaches drift detection to a (model, endpoint) pair.
func (d *Monitor) CreateMonitor(ctx context.Context, modelID, endpointID string, metricNames []string, checkInterval time.Duration) (*models.Monitor, error) {
	if len(metricNames) == 0 {
		metricNames = []string{"accuracy", "latency"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	monitor := &models.Monitor{
		ID:            newID("mon"),
		ModelID:       modelID,
		EndpointID:    endpointID,
		MetricNames:   append([]string(nil), metricNames...),
		CheckInterval: checkInterval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.monitors.Create(ctx, monitor); err != nil {
		return nil, err
	}
	d.stats.MonitorsCreated++
	d.metrics.SetActiveMonitors(int(d.stats.MonitorsCreated))

	d.logger.WithFields(logrus.Fields{
		"monitor_id":  monitor.ID,
		"model_id":    modelID,
		"endpoint_id": endpointID,
		"metrics":     metricNames,
	}).Info("Created drift monitor")

	return monitor, nil
}

// SetBaseline replaces the monitor's reference point wholesale. The
// baseline then stays immutable until the next explicit call.
func (d *Monitor) SetBaseline(ctx context.Context, monitorID string, metricVals map[string]float64) (*models.Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	baseline := make(map[string]float64, len(metricVals))
	for k, v := range metricVals {
		baseline[k] = v
	}
	monitor.Baseline = baseline
	monitor.UpdatedAt = time.Now().UTC()
	if err := d.monitors.Update(ctx, monitor); err != nil {
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"monitor_id": monitorID,
		"metrics":    len(baseline),
	}).Info("Set drift baseline")

	return monitor, nil
}

// RecordSnapshot stores one periodic metric observation and makes it the
// monitor's latest.
func (d *Monitor) RecordSnapshot(ctx context.Context, monitorID string, metricVals, dataStats map[string]float64) (*models.MetricSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshot := &models.MetricSnapshot{
		ID:        newID("snap"),
		MonitorID: monitorID,
		Metrics:   metricVals,
		DataStats: dataStats,
		Timestamp: now,
	}

	latest := make(map[string]float64, len(metricVals))
	for k, v := range metricVals {
		latest[k] = v
	}
	monitor.Latest = latest
	monitor.UpdatedAt = now
	if err := d.monitors.Update(ctx, monitor); err != nil {
		return nil, err
	}
	d.stats.SnapshotsTaken++
	d.sink.RecordMetricSnapshot(ctx, monitorID, metricVals)

	return snapshot, nil
}

// DetectDrift compares the latest snapshot against the baseline. Metrics
// with a zero baseline are skipped. A monitor without a baseline or a
// latest snapshot yields an insufficient-data report with zero events.
// Detected events are appended to the monitor's drift history.
func (d *Monitor) DetectDrift(ctx context.Context, monitorID string) (*models.DriftReport, error) {
	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &models.DriftReport{MonitorID: monitorID, CheckedAt: now}

	if len(monitor.Baseline) == 0 || len(monitor.Latest) == 0 {
		report.InsufficientData = true
		return report, nil
	}

	for metric, base := range monitor.Baseline {
		current, ok := monitor.Latest[metric]
		if !ok || base == 0 {
			continue
		}
		change := math.Abs(current-base) / math.Abs(base)
		if change <= d.config.Threshold {
			continue
		}
		event := models.DriftEvent{
			Metric:    metric,
			DriftType: classifyDrift(metric),
			Baseline:  round4(base),
			Current:   round4(current),
			ChangePct: round2(change * 100),
			Severity:  d.classifySeverity(change),
		}
		report.Events = append(report.Events, event)
		d.metrics.ObserveDriftEvent(event.Severity)
	}

	if report.DriftFound() {
		d.mu.Lock()
		d.stats.DriftsDetected++
		d.mu.Unlock()
		d.appendHistory(ctx, monitorID, report)

		d.logger.WithFields(logrus.Fields{
			"monitor_id": monitorID,
			"events":     len(report.Events),
		}).Warn("Drift detected")
	}

	return report, nil
}

func (d *Monitor) appendHistory(ctx context.Context, monitorID string, report *models.DriftReport) {
	d.mu.Lock()
	defer d.mu.Unlock()

	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return
	}
	monitor.DriftHistory = append(monitor.DriftHistory, models.DriftCheck{
		Events:    report.Events,
		CheckedAt: report.CheckedAt,
	})
	if limit := d.config.HistoryLimit; limit > 0 && len(monitor.DriftHistory) > limit {
		monitor.DriftHistory = monitor.DriftHistory[len(monitor.DriftHistory)-limit:]
	}
	monitor.UpdatedAt = report.CheckedAt
	if err := d.monitors.Update(ctx, monitor); err != nil {
		d.logger.WithError(err).Warn("Failed to append drift history")
	}
}

// classifySeverity tiers a relative change against the configured
// threshold: above 2x is critical, above 1.5x warning, anything else that
// made it past the threshold is info.
func (d *Monitor) classifySeverity(change float64) models.Severity {
	switch {
	case change > 2*d.config.Threshold:
		return models.SeverityCritical
	case change > 1.5*d.config.Threshold:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// classifyDrift buckets a metric name into a drift type.
func classifyDrift(metric string) models.DriftType {
	switch metric {
	case "accuracy", "f1", "quality":
		return models.DriftTypePerformance
	case "latency", "throughput":
		return models.DriftTypeModel
	default:
		return models.DriftTypeData
	}
}

// GenerateAlert turns a drift event into an alert and hands it to the
// alerting sink.
func (d *Monitor) GenerateAlert(ctx context.Context, monitorID string, event models.DriftEvent) (*models.Alert, error) {
	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	alert := &models.Alert{
		ID:        newID("alert"),
		MonitorID: monitorID,
		ModelID:   monitor.ModelID,
		Metric:    event.Metric,
		Severity:  event.Severity,
		Message: fmt.Sprintf("drift detected: %s changed %.2f%% from baseline (%s)",
			event.Metric, event.ChangePct, event.DriftType),
		Timestamp: time.Now().UTC(),
	}
	if err := d.alerts.Deliver(ctx, alert); err != nil {
		d.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Alert delivery failed")
	}

	d.mu.Lock()
	d.stats.AlertsGenerated++
	d.mu.Unlock()

	return alert, nil
}

// ShouldRetrain scans all metrics present in both the baseline and the
// latest snapshot, finds the single largest relative change, and triggers
// when it strictly exceeds the threshold. A change exactly equal to the
// threshold does not trigger. A threshold of 0 or below falls back to the
// configured default.
func (d *Monitor) ShouldRetrain(ctx context.Context, monitorID string, threshold float64) (*models.RetrainDecision, error) {
	if threshold <= 0 {
		threshold = d.config.RetrainThreshold
	}

	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	decision := &models.RetrainDecision{
		MonitorID:    monitorID,
		ThresholdPct: round2(threshold * 100),
		CheckedAt:    time.Now().UTC(),
	}

	if len(monitor.Baseline) == 0 || len(monitor.Latest) == 0 {
		decision.InsufficientData = true
		return decision, nil
	}

	var maxChange float64
	var worst string
	for metric, base := range monitor.Baseline {
		current, ok := monitor.Latest[metric]
		if !ok || base == 0 {
			continue
		}
		change := math.Abs(current-base) / math.Abs(base)
		if change > maxChange {
			maxChange = change
			worst = metric
		}
	}

	decision.MaxChangePct = round2(maxChange * 100)
	decision.WorstMetric = worst
	decision.ShouldRetrain = maxChange > threshold

	if decision.ShouldRetrain {
		d.mu.Lock()
		d.stats.RetrainTriggers++
		d.mu.Unlock()
		d.metrics.ObserveRetrainTrigger()

		d.logger.WithFields(logrus.Fields{
			"monitor_id":     monitorID,
			"worst_metric":   worst,
			"max_change_pct": decision.MaxChangePct,
		}).Warn("Retrain triggered")
	}

	return decision, nil
}

// GetMonitor returns a monitor by id.
func (d *Monitor) GetMonitor(ctx context.Context, monitorID string) (*models.Monitor, error) {
	return d.monitors.Get(ctx, monitorID)
}

// GetDriftHistory returns the recorded drift checks for a monitor, oldest
// first.
func (d *Monitor) GetDriftHistory(ctx context.Context, monitorID string) ([]models.DriftCheck, error) {
	monitor, err := d.monitors.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return monitor.DriftHistory, nil
}

// ListMonitors returns all monitors.
func (d *Monitor) ListMonitors(ctx context.Context) ([]*models.Monitor, error) {
	return d.monitors.List(ctx)
}

// Summary aggregates monitor state.
func (d *Monitor) Summary(ctx context.Context) (*Summary, error) {
	monitors, err := d.monitors.List(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	stats := d.stats
	d.mu.Unlock()

	return &Summary{TotalMonitors: len(monitors), Stats: stats}, nil
}

// Summary is the drift monitor's aggregate view.
type Summary struct {
	TotalMonitors int   `json:"total_monitors"`
	Stats         Stats `json:"stats"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
