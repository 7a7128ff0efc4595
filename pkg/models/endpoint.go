package models

import "time"

// Health classifies an endpoint's serving health from its traffic counters.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Strategy is the traffic-shifting policy for a rollout.
type Strategy string

const (
	StrategyImmediate Strategy = "immediate"
	StrategyCanary    Strategy = "canary"
	StrategyBlueGreen Strategy = "blue_green"
	StrategyRolling   Strategy = "rolling"
)

// ParseStrategy converts a raw string into a Strategy. The second return
// value reports whether the value is recognized.
func ParseStrategy(s string) (Strategy, bool) {
	strategy := Strategy(s)
	return strategy, strategy.Valid()
}

// Valid reports whether the strategy is one of the recognized values.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyImmediate, StrategyCanary, StrategyBlueGreen, StrategyRolling:
		return true
	}
	return false
}

// DeploymentStatus tracks one rollout attempt through its state machine.
type DeploymentStatus string

const (
	DeploymentCreated    DeploymentStatus = "created"
	DeploymentCanary     DeploymentStatus = "canary"
	DeploymentStaged     DeploymentStatus = "staged"
	DeploymentRolling    DeploymentStatus = "rolling"
	DeploymentCompleted  DeploymentStatus = "completed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
)

// Terminal reports whether the deployment can transition no further.
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentCompleted || s == DeploymentRolledBack
}

// Endpoint is a serving target. It is bound to exactly one active
// (model, version) pair at any instant; in-flight deployments shift traffic
// without changing the active pair until an explicit promote.
type Endpoint struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ActiveModelID    string    `json:"active_model_id"`
	ActiveVersionID  string    `json:"active_version_id"`
	MinInstances     int       `json:"min_instances"`
	MaxInstances     int       `json:"max_instances"`
	CurrentInstances int       `json:"current_instances"`
	Health           Health    `json:"health"`
	RequestsTotal    int64     `json:"requests_total"`
	ErrorsTotal      int64     `json:"errors_total"`
	LatencyMS        float64   `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns a copy of the endpoint.
func (e *Endpoint) Clone() *Endpoint {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// Deployment is one rollout attempt of a version onto an endpoint under a
// chosen strategy. PreviousVersionID is captured at creation, before any
// traffic change, and is exactly what a rollback restores.
type Deployment struct {
	ID                string           `json:"id"`
	EndpointID        string           `json:"endpoint_id"`
	ModelID           string           `json:"model_id"`
	VersionID         string           `json:"version_id"`
	PreviousVersionID string           `json:"previous_version_id"`
	Strategy          Strategy         `json:"strategy"`
	Status            DeploymentStatus `json:"status"`
	TrafficPct        int              `json:"traffic_pct"`
	RollbackReason    string           `json:"rollback_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	RolledBackAt      *time.Time       `json:"rolled_back_at,omitempty"`
}

// Clone returns a copy of the deployment.
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}
	out := *d
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		out.CompletedAt = &t
	}
	if d.RolledBackAt != nil {
		t := *d.RolledBackAt
		out.RolledBackAt = &t
	}
	return &out
}
