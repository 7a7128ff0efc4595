package registry

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/artifacts"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// Config configures the version registry.
type Config struct {
	// VersionRetention caps the number of non-archived versions kept per
	// model; 0 disables retention archival.
	VersionRetention int `json:"version_retention" yaml:"version_retention"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() *Config {
	return &Config{VersionRetention: 10}
}

// ActiveVersionFunc reports whether a version is currently bound to a
// serving endpoint. Retention never archives such a version. The rollout
// controller supplies the implementation; a nil func treats every version
// as inactive.
type ActiveVersionFunc func(ctx context.Context, versionID string) bool

// Stats counts registry activity since start.
type Stats struct {
	ModelsRegistered int64 `json:"models_registered"`
	VersionsCreated  int64 `json:"versions_created"`
	PromotionsDone   int64 `json:"promotions_done"`
	ArchivesDone     int64 `json:"archives_done"`
}

// Registry owns Model and Version records: registration, immutable version
// creation, stage promotion, lineage, and retention archival. Mutations are
// serialized behind a single mutex; reads go straight to the repository
// and may observe a slightly stale but consistent snapshot.
type Registry struct {
	logger    *logrus.Logger
	config    *Config
	models    interfaces.ModelRepository
	versions  interfaces.VersionRepository
	metrics   *metrics.Metrics
	artifacts artifacts.Store
	activeFn  ActiveVersionFunc

	mu    sync.Mutex
	stats Stats
}

// New creates a version registry over the given repositories.
func New(repos *interfaces.Repositories, config *Config, m *metrics.Metrics, logger *logrus.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		logger:   logger,
		config:   config,
		models:   repos.Models,
		versions: repos.Versions,
		metrics:  m,
	}
}

// SetArtifactStore wires the artifact backend used by AttachArtifact. A
// registry without one rejects artifact uploads.
func (r *Registry) SetArtifactStore(store artifacts.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = store
}

// SetActiveVersionFunc wires the endpoint-active check used by retention.
// Call before serving traffic; the registry is constructed before the
// rollout controller, so the dependency arrives late.
func (r *Registry) SetActiveVersionFunc(fn ActiveVersionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeFn = fn
}

// RegisterModel creates a new model in the development stage with no
// versions.
func (r *Registry) RegisterModel(ctx context.Context, name, baseModel, provider string, tags []string) (*models.Model, error) {
	if name == "" {
		return nil, errors.NewInvalidArgumentError(nil, errors.CodeMissingField, "model name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	model := &models.Model{
		ID:           newID("model"),
		Name:         name,
		BaseModel:    baseModel,
		Provider:     provider,
		Tags:         append([]string(nil), tags...),
		CurrentStage: models.StageDevelopment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.models.Create(ctx, model); err != nil {
		return nil, err
	}
	r.stats.ModelsRegistered++

	r.logger.WithFields(logrus.Fields{
		"model_id": model.ID,
		"name":     name,
		"provider": provider,
	}).Info("Registered model")

	return model, nil
}

// CreateVersion creates the next immutable version of a model. Ordinals
// are 1-based, strictly increasing per model, and never reused, including
// after archival. When the non-archived version count exceeds the retention
// limit, the oldest non-archived version not bound to an endpoint is
// archived.
func (r *Registry) CreateVersion(ctx context.Context, modelID, jobID string, metricVals map[string]float64, hyperparameters map[string]interface{}, datasetID string) (*models.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, err := r.models.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	model.VersionCount++
	version := &models.Version{
		ID:              fmt.Sprintf("%s_v%d", model.ID, model.VersionCount),
		ModelID:         model.ID,
		Ordinal:         model.VersionCount,
		Stage:           models.StageDevelopment,
		JobID:           jobID,
		DatasetID:       datasetID,
		Metrics:         metricVals,
		Hyperparameters: hyperparameters,
		CreatedAt:       now,
	}
	if err := r.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	model.VersionIDs = append(model.VersionIDs, version.ID)
	model.Lineage = append(model.Lineage, models.LineageEntry{
		Ordinal:   version.Ordinal,
		JobID:     jobID,
		DatasetID: datasetID,
		Timestamp: now,
	})
	model.UpdatedAt = now

	if r.config.VersionRetention > 0 {
		r.applyRetention(ctx, model, version.ID)
	}

	if err := r.models.Update(ctx, model); err != nil {
		return nil, err
	}
	r.stats.VersionsCreated++
	r.metrics.ObserveVersionCreated()

	r.logger.WithFields(logrus.Fields{
		"model_id":   model.ID,
		"version_id": version.ID,
		"ordinal":    version.Ordinal,
		"job_id":     jobID,
	}).Info("Created model version")

	return version, nil
}

// applyRetention archives at most one version: the oldest non-archived one
// that is neither endpoint-active nor the version just created. If every
// candidate is protected, archival is skipped and retried on the next
// create. Caller holds the mutation lock.
func (r *Registry) applyRetention(ctx context.Context, model *models.Model, newVersionID string) {
	live := 0
	var candidates []*models.Version
	for _, vid := range model.VersionIDs {
		v, err := r.versions.Get(ctx, vid)
		if err != nil {
			continue
		}
		if v.Stage == models.StageArchived {
			continue
		}
		live++
		candidates = append(candidates, v)
	}
	if live <= r.config.VersionRetention {
		return
	}

	for _, v := range candidates {
		if v.ID == newVersionID {
			continue
		}
		if r.activeFn != nil && r.activeFn(ctx, v.ID) {
			continue
		}
		r.archiveLocked(ctx, v, "retention policy")
		return
	}

	r.logger.WithField("model_id", model.ID).Warn("Retention exceeded but no archivable version found")
}

// PromoteVersion moves a version to a target stage and updates the model's
// current stage. Versions already archived or deprecated are terminal and
// cannot be promoted.
func (r *Registry) PromoteVersion(ctx context.Context, versionID, targetStage, approver string) (*models.Version, error) {
	stage, ok := models.ParseStage(targetStage)
	if !ok {
		return nil, errors.NewInvalidArgumentError(errors.ErrInvalidStage, errors.CodeInvalidStage,
			fmt.Sprintf("unrecognized stage %q", targetStage))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := r.versions.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Stage.Terminal() {
		return nil, errors.NewInvalidStateError(errors.ErrTerminalStage, errors.CodeTerminalStage,
			fmt.Sprintf("version %s is %s and cannot be promoted", versionID, version.Stage))
	}

	now := time.Now().UTC()
	version.Stage = stage
	version.PromotedAt = &now
	version.PromotedBy = approver
	if err := r.versions.Update(ctx, version); err != nil {
		return nil, err
	}

	if model, err := r.models.Get(ctx, version.ModelID); err == nil {
		model.CurrentStage = stage
		model.UpdatedAt = now
		if err := r.models.Update(ctx, model); err != nil {
			return nil, err
		}
	}
	r.stats.PromotionsDone++
	r.metrics.ObservePromotion()

	r.logger.WithFields(logrus.Fields{
		"version_id": versionID,
		"stage":      stage,
		"approver":   approver,
	}).Info("Promoted version")

	return version, nil
}

// ArchiveVersion archives a version. Archiving an already-archived version
// is a no-op success.
func (r *Registry) ArchiveVersion(ctx context.Context, versionID, reason string) (*models.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := r.versions.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Stage == models.StageArchived {
		return version, nil
	}
	if err := r.archiveLocked(ctx, version, reason); err != nil {
		return nil, err
	}
	return version, nil
}

func (r *Registry) archiveLocked(ctx context.Context, version *models.Version, reason string) error {
	now := time.Now().UTC()
	version.Stage = models.StageArchived
	version.ArchivedAt = &now
	version.ArchiveReason = reason
	if err := r.versions.Update(ctx, version); err != nil {
		return err
	}
	r.stats.ArchivesDone++
	r.metrics.ObserveArchive()

	r.logger.WithFields(logrus.Fields{
		"version_id": version.ID,
		"reason":     reason,
	}).Info("Archived version")
	return nil
}

// AttachArtifact uploads an artifact for a version and records the storage
// URI on the version record. The key is derived from the version id and the
// given filename.
func (r *Registry) AttachArtifact(ctx context.Context, versionID, filename string, data io.Reader) (*models.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.artifacts == nil {
		return nil, errors.NewInvalidStateError(nil, errors.CodeStorageError, "no artifact store configured")
	}
	version, err := r.versions.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Stage.Terminal() {
		return nil, errors.NewInvalidStateError(errors.ErrTerminalStage, errors.CodeTerminalStage,
			fmt.Sprintf("version %s is %s and cannot receive artifacts", versionID, version.Stage))
	}

	key := path.Join(version.ModelID, fmt.Sprintf("v%d", version.Ordinal), filename)
	uri, err := r.artifacts.Put(ctx, key, data)
	if err != nil {
		return nil, err
	}

	version.ArtifactPath = uri
	if err := r.versions.Update(ctx, version); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"version_id": versionID,
		"artifact":   uri,
	}).Info("Attached artifact")

	return version, nil
}

// GetModel returns a model by id.
func (r *Registry) GetModel(ctx context.Context, modelID string) (*models.Model, error) {
	return r.models.Get(ctx, modelID)
}

// GetVersion returns a version by id.
func (r *Registry) GetVersion(ctx context.Context, versionID string) (*models.Version, error) {
	return r.versions.Get(ctx, versionID)
}

// GetLineage returns the ordered lineage of a model: one entry per
// version, oldest first.
func (r *Registry) GetLineage(ctx context.Context, modelID string) ([]models.LineageEntry, error) {
	model, err := r.models.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return model.Lineage, nil
}

// Summary aggregates registry state: version counts by stage plus the
// activity counters.
func (r *Registry) Summary(ctx context.Context) (*Summary, error) {
	allModels, err := r.models.List(ctx)
	if err != nil {
		return nil, err
	}
	allVersions, err := r.versions.List(ctx)
	if err != nil {
		return nil, err
	}

	byStage := make(map[models.Stage]int)
	for _, v := range allVersions {
		byStage[v.Stage]++
	}

	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()

	return &Summary{
		TotalModels:   len(allModels),
		TotalVersions: len(allVersions),
		ByStage:       byStage,
		Stats:         stats,
	}, nil
}

// Summary is the registry's aggregate view.
type Summary struct {
	TotalModels   int                  `json:"total_models"`
	TotalVersions int                  `json:"total_versions"`
	ByStage       map[models.Stage]int `json:"by_stage"`
	Stats         Stats                `json:"stats"`
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
