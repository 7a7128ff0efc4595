package models

import "time"

// Stage represents a version's position in the model lifecycle.
type Stage string

const (
	StageDevelopment Stage = "development"
	StageStaging     Stage = "staging"
	StageProduction  Stage = "production"
	StageArchived    Stage = "archived"
	StageDeprecated  Stage = "deprecated"
)

// Stages lists all recognized lifecycle stages.
var Stages = []Stage{
	StageDevelopment,
	StageStaging,
	StageProduction,
	StageArchived,
	StageDeprecated,
}

// ParseStage converts a raw string into a Stage. The second return value
// reports whether the value is one of the recognized stages.
func ParseStage(s string) (Stage, bool) {
	stage := Stage(s)
	return stage, stage.Valid()
}

// Valid reports whether the stage is one of the recognized values.
func (s Stage) Valid() bool {
	switch s {
	case StageDevelopment, StageStaging, StageProduction, StageArchived, StageDeprecated:
		return true
	}
	return false
}

// Terminal reports whether the stage permits no further promotion.
func (s Stage) Terminal() bool {
	return s == StageArchived || s == StageDeprecated
}

// Model is a named, versioned unit of trained capability. Versions hang off
// the model by id; the model itself carries only the monotonic version
// counter, the ordered version list, and the training lineage.
type Model struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	BaseModel    string         `json:"base_model"`
	Provider     string         `json:"provider"`
	Tags         []string       `json:"tags,omitempty"`
	CurrentStage Stage          `json:"current_stage"`
	VersionCount int            `json:"version_count"`
	VersionIDs   []string       `json:"version_ids"`
	Lineage      []LineageEntry `json:"lineage"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// LineageEntry records the provenance of one version: which training job
// produced it and which dataset the job consumed.
type LineageEntry struct {
	Ordinal   int       `json:"ordinal"`
	JobID     string    `json:"job_id"`
	DatasetID string    `json:"dataset_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := *m
	out.Tags = append([]string(nil), m.Tags...)
	out.VersionIDs = append([]string(nil), m.VersionIDs...)
	out.Lineage = append([]LineageEntry(nil), m.Lineage...)
	return &out
}

// Version is an immutable snapshot of a model at a point in its training
// lineage. Only Stage and the promotion/archival metadata change after
// creation.
type Version struct {
	ID              string                 `json:"id"`
	ModelID         string                 `json:"model_id"`
	Ordinal         int                    `json:"ordinal"`
	Stage           Stage                  `json:"stage"`
	JobID           string                 `json:"job_id"`
	DatasetID       string                 `json:"dataset_id"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	ArtifactPath    string                 `json:"artifact_path,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	PromotedAt      *time.Time             `json:"promoted_at,omitempty"`
	PromotedBy      string                 `json:"promoted_by,omitempty"`
	ArchivedAt      *time.Time             `json:"archived_at,omitempty"`
	ArchiveReason   string                 `json:"archive_reason,omitempty"`
}

// Clone returns a deep copy of the version.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	out := *v
	if v.Metrics != nil {
		out.Metrics = make(map[string]float64, len(v.Metrics))
		for k, val := range v.Metrics {
			out.Metrics[k] = val
		}
	}
	if v.Hyperparameters != nil {
		out.Hyperparameters = make(map[string]interface{}, len(v.Hyperparameters))
		for k, val := range v.Hyperparameters {
			out.Hyperparameters[k] = val
		}
	}
	if v.PromotedAt != nil {
		t := *v.PromotedAt
		out.PromotedAt = &t
	}
	if v.ArchivedAt != nil {
		t := *v.ArchivedAt
		out.ArchivedAt = &t
	}
	return &out
}
