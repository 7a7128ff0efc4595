package models

import "time"

// DriftType classifies what kind of drift a metric deviation indicates.
type DriftType string

const (
	DriftTypeData        DriftType = "data_drift"
	DriftTypeModel       DriftType = "model_drift"
	DriftTypePerformance DriftType = "performance_drift"
)

// Severity classifies drift magnitude.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for threshold comparisons. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Monitor attaches drift detection to a (model, endpoint) pair. The
// baseline is the explicit reference point; it never changes between
// SetBaseline calls. Latest holds the most recent recorded snapshot.
type Monitor struct {
	ID            string             `json:"id"`
	ModelID       string             `json:"model_id"`
	EndpointID    string             `json:"endpoint_id"`
	MetricNames   []string           `json:"metric_names"`
	CheckInterval time.Duration      `json:"check_interval"`
	Baseline      map[string]float64 `json:"baseline"`
	Latest        map[string]float64 `json:"latest"`
	DriftHistory  []DriftCheck       `json:"drift_history"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of the monitor.
func (m *Monitor) Clone() *Monitor {
	if m == nil {
		return nil
	}
	out := *m
	out.MetricNames = append([]string(nil), m.MetricNames...)
	out.Baseline = cloneMetricMap(m.Baseline)
	out.Latest = cloneMetricMap(m.Latest)
	if m.DriftHistory != nil {
		out.DriftHistory = make([]DriftCheck, len(m.DriftHistory))
		for i, c := range m.DriftHistory {
			out.DriftHistory[i] = DriftCheck{
				Events:    append([]DriftEvent(nil), c.Events...),
				CheckedAt: c.CheckedAt,
			}
		}
	}
	return &out
}

func cloneMetricMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MetricSnapshot is one periodic observation of live metrics pushed by the
// telemetry source.
type MetricSnapshot struct {
	ID        string             `json:"id"`
	MonitorID string             `json:"monitor_id"`
	Metrics   map[string]float64 `json:"metrics"`
	DataStats map[string]float64 `json:"data_stats,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// DriftEvent is one metric's deviation from its baseline above the
// configured threshold.
type DriftEvent struct {
	Metric    string    `json:"metric"`
	DriftType DriftType `json:"drift_type"`
	Baseline  float64   `json:"baseline"`
	Current   float64   `json:"current"`
	ChangePct float64   `json:"change_pct"`
	Severity  Severity  `json:"severity"`
}

// DriftCheck is one DetectDrift outcome, kept on the monitor as history.
type DriftCheck struct {
	Events    []DriftEvent `json:"events"`
	CheckedAt time.Time    `json:"checked_at"`
}

// DriftReport is the structured result of a drift check. A monitor without
// a baseline or a latest snapshot yields InsufficientData=true and zero
// events; that is a valid outcome, not an error.
type DriftReport struct {
	MonitorID        string       `json:"monitor_id"`
	Events           []DriftEvent `json:"events"`
	InsufficientData bool         `json:"insufficient_data"`
	CheckedAt        time.Time    `json:"checked_at"`
}

// DriftFound reports whether the check produced any events.
func (r *DriftReport) DriftFound() bool {
	return len(r.Events) > 0
}

// RetrainDecision is the retrain-trigger signal. The trigger fires only
// when the single worst metric's relative change strictly exceeds the
// threshold; a change exactly equal to the threshold does not trigger.
type RetrainDecision struct {
	MonitorID        string    `json:"monitor_id"`
	ShouldRetrain    bool      `json:"should_retrain"`
	WorstMetric      string    `json:"worst_metric,omitempty"`
	MaxChangePct     float64   `json:"max_change_pct"`
	ThresholdPct     float64   `json:"threshold_pct"`
	InsufficientData bool      `json:"insufficient_data"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Alert is the record handed to the alerting sink when drift crosses the
// configured severity floor.
type Alert struct {
	ID        string    `json:"id"`
	MonitorID string    `json:"monitor_id"`
	ModelID   string    `json:"model_id"`
	Metric    string    `json:"metric"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
