package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/drift"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/internal/rollout"
	"github.com/inferloop/modelops/pkg/models"
)

// TrainingJobRunner starts retraining jobs. The orchestrator only hands
// off the trigger; job execution, progress, and the resulting metrics are
// the runner's business. A completed job feeds back into
// Registry.CreateVersion, closing the loop.
type TrainingJobRunner interface {
	StartRetrainingJob(ctx context.Context, modelID, reason string) (jobID string, err error)
}

// Config configures the orchestrator.
type Config struct {
	// AlertSeverityFloor is the minimum severity a drift event needs to
	// produce an alert.
	AlertSeverityFloor models.Severity `json:"alert_severity_floor" yaml:"alert_severity_floor"`
	// RetrainThreshold is the relative-change bound passed to
	// ShouldRetrain during evaluation.
	RetrainThreshold float64 `json:"retrain_threshold" yaml:"retrain_threshold"`
	// EvaluateInterval is the period of the background evaluation loop.
	EvaluateInterval time.Duration `json:"evaluate_interval" yaml:"evaluate_interval"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		AlertSeverityFloor: models.SeverityWarning,
		RetrainThreshold:   0.2,
		EvaluateInterval:   time.Hour,
	}
}

// Orchestrator ties the registry, rollout controller, and drift monitor
// together: it evaluates monitors, raises alerts, and fires retrain
// triggers at the training-job runner.
type Orchestrator struct {
	logger   *logrus.Logger
	config   *Config
	registry *registry.Registry
	rollout  *rollout.Controller
	drift    *drift.Monitor
	runner   TrainingJobRunner
	stopCh   chan struct{}
}

// New creates an orchestrator. A nil runner disables retrain hand-off;
// evaluation then only reports the decision.
func New(config *Config, reg *registry.Registry, ctrl *rollout.Controller, mon *drift.Monitor, runner TrainingJobRunner, logger *logrus.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	// Retention must never archive a version an endpoint still serves.
	reg.SetActiveVersionFunc(ctrl.IsVersionActive)
	return &Orchestrator{
		logger:   logger,
		config:   config,
		registry: reg,
		rollout:  ctrl,
		drift:    mon,
		runner:   runner,
		stopCh:   make(chan struct{}),
	}
}

// EvaluationResult is the outcome of evaluating one monitor.
type EvaluationResult struct {
	Report   *models.DriftReport     `json:"report"`
	Alerts   []*models.Alert         `json:"alerts,omitempty"`
	Decision *models.RetrainDecision `json:"decision"`
	JobID    string                  `json:"job_id,omitempty"`
}

// EvaluateMonitor runs one full evaluation cycle for a monitor: detect
// drift, alert on events at or above the severity floor, consult the
// retrain policy, and hand a fired trigger to the training-job runner.
func (o *Orchestrator) EvaluateMonitor(ctx context.Context, monitorID string) (*EvaluationResult, error) {
	report, err := o.drift.DetectDrift(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{Report: report}
	if report.InsufficientData {
		result.Decision = &models.RetrainDecision{
			MonitorID:        monitorID,
			InsufficientData: true,
			CheckedAt:        report.CheckedAt,
		}
		return result, nil
	}

	floor := o.config.AlertSeverityFloor.Rank()
	for _, event := range report.Events {
		if event.Severity.Rank() < floor {
			continue
		}
		alert, err := o.drift.GenerateAlert(ctx, monitorID, event)
		if err != nil {
			o.logger.WithError(err).WithField("monitor_id", monitorID).Warn("Alert generation failed")
			continue
		}
		result.Alerts = append(result.Alerts, alert)
	}

	decision, err := o.drift.ShouldRetrain(ctx, monitorID, o.config.RetrainThreshold)
	if err != nil {
		return nil, err
	}
	result.Decision = decision

	if decision.ShouldRetrain && o.runner != nil {
		monitor, err := o.drift.GetMonitor(ctx, monitorID)
		if err != nil {
			return nil, err
		}
		jobID, err := o.runner.StartRetrainingJob(ctx, monitor.ModelID, decision.WorstMetric)
		if err != nil {
			o.logger.WithError(err).WithField("model_id", monitor.ModelID).Error("Retrain hand-off failed")
		} else {
			result.JobID = jobID
			o.logger.WithFields(logrus.Fields{
				"monitor_id": monitorID,
				"model_id":   monitor.ModelID,
				"job_id":     jobID,
			}).Info("Retraining job started")
		}
	}

	return result, nil
}

// EvaluateAll evaluates every monitor, skipping ones that fail.
func (o *Orchestrator) EvaluateAll(ctx context.Context) map[string]*EvaluationResult {
	monitors, err := o.drift.ListMonitors(ctx)
	if err != nil {
		o.logger.WithError(err).Error("Failed to list monitors")
		return nil
	}

	results := make(map[string]*EvaluationResult, len(monitors))
	for _, m := range monitors {
		result, err := o.EvaluateMonitor(ctx, m.ID)
		if err != nil {
			o.logger.WithError(err).WithField("monitor_id", m.ID).Warn("Monitor evaluation failed")
			continue
		}
		results[m.ID] = result
	}
	return results
}

// Start runs the periodic evaluation loop until the context ends or Stop
// is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ticker := time.NewTicker(o.config.EvaluateInterval)
	o.logger.WithField("interval", o.config.EvaluateInterval).Info("Starting lifecycle evaluation loop")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.EvaluateAll(ctx)
			}
		}
	}()
}

// Stop terminates the evaluation loop.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
}

// Status aggregates the three component summaries.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	regSummary, err := o.registry.Summary(ctx)
	if err != nil {
		return nil, err
	}
	rolloutSummary, err := o.rollout.Summary(ctx)
	if err != nil {
		return nil, err
	}
	driftSummary, err := o.drift.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Registry: regSummary,
		Rollout:  rolloutSummary,
		Drift:    driftSummary,
	}, nil
}

// Status is the combined view over all three components.
type Status struct {
	Registry *registry.Summary `json:"registry"`
	Rollout  *rollout.Summary  `json:"rollout"`
	Drift    *drift.Summary    `json:"drift"`
}
