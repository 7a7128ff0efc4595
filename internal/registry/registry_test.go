package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/internal/storage/memory"
	apperrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

func newTestRegistry(t *testing.T, retention int) *Registry {
	t.Helper()
	return New(memory.NewRepositories(), &Config{VersionRetention: retention}, nil, logrus.New())
}

func TestRegisterModel(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "llama-3-8b", "internal", []string{"nlp"})
	require.NoError(t, err)
	require.NotNil(t, model)

	assert.NotEmpty(t, model.ID)
	assert.Equal(t, "support-bot", model.Name)
	assert.Equal(t, models.StageDevelopment, model.CurrentStage)
	assert.Equal(t, 0, model.VersionCount)
	assert.Empty(t, model.VersionIDs)
}

func TestRegisterModelRequiresName(t *testing.T) {
	reg := newTestRegistry(t, 10)

	_, err := reg.RegisterModel(context.Background(), "", "", "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestCreateVersionOrdinals(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "llama-3-8b", "internal", nil)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		version, err := reg.CreateVersion(ctx, model.ID, fmt.Sprintf("job_%d", i), map[string]float64{"accuracy": 0.9}, nil, "ds_1")
		require.NoError(t, err)
		assert.Equal(t, i, version.Ordinal)
		assert.Equal(t, fmt.Sprintf("%s_v%d", model.ID, i), version.ID)
		assert.Equal(t, models.StageDevelopment, version.Stage)
	}

	updated, err := reg.GetModel(ctx, model.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.VersionCount)
	assert.Len(t, updated.VersionIDs, 3)
}

func TestOrdinalsNeverReusedAfterArchive(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)

	v1, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)
	v2, err := reg.CreateVersion(ctx, model.ID, "job_2", nil, nil, "")
	require.NoError(t, err)

	_, err = reg.ArchiveVersion(ctx, v2.ID, "superseded")
	require.NoError(t, err)

	v3, err := reg.CreateVersion(ctx, model.ID, "job_3", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Ordinal)
	assert.NotEqual(t, v2.ID, v3.ID)
	assert.Equal(t, 1, v1.Ordinal)
}

func TestPromoteVersion(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)
	version, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)

	promoted, err := reg.PromoteVersion(ctx, version.ID, "staging", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StageStaging, promoted.Stage)
	assert.NotNil(t, promoted.PromotedAt)
	assert.Equal(t, "alice", promoted.PromotedBy)

	updated, err := reg.GetModel(ctx, model.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStaging, updated.CurrentStage)
}

func TestPromoteVersionInvalidStage(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)
	version, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)

	_, err = reg.PromoteVersion(ctx, version.ID, "galactic", "alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestPromoteArchivedVersionFails(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)
	version, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)

	_, err = reg.ArchiveVersion(ctx, version.ID, "cleanup")
	require.NoError(t, err)

	_, err = reg.PromoteVersion(ctx, version.ID, "production", "alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestArchiveVersionIdempotent(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)
	version, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)

	first, err := reg.ArchiveVersion(ctx, version.ID, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, first.Stage)
	assert.Equal(t, "cleanup", first.ArchiveReason)

	second, err := reg.ArchiveVersion(ctx, version.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, second.Stage)
	assert.Equal(t, "cleanup", second.ArchiveReason)
}

func TestRetentionArchivesOldest(t *testing.T) {
	reg := newTestRegistry(t, 3)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)

	var versions []*models.Version
	for i := 1; i <= 4; i++ {
		v, err := reg.CreateVersion(ctx, model.ID, fmt.Sprintf("job_%d", i), nil, nil, "")
		require.NoError(t, err)
		versions = append(versions, v)
	}

	oldest, err := reg.GetVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, oldest.Stage)
	assert.Equal(t, "retention policy", oldest.ArchiveReason)

	for _, v := range versions[1:] {
		got, err := reg.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.NotEqual(t, models.StageArchived, got.Stage, "version %s", v.ID)
	}
}

func TestRetentionSkipsEndpointActiveVersion(t *testing.T) {
	reg := newTestRegistry(t, 3)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)

	var versions []*models.Version
	for i := 1; i <= 3; i++ {
		v, err := reg.CreateVersion(ctx, model.ID, fmt.Sprintf("job_%d", i), nil, nil, "")
		require.NoError(t, err)
		versions = append(versions, v)
	}

	// The oldest version is still serving traffic.
	reg.SetActiveVersionFunc(func(ctx context.Context, versionID string) bool {
		return versionID == versions[0].ID
	})

	_, err = reg.CreateVersion(ctx, model.ID, "job_4", nil, nil, "")
	require.NoError(t, err)

	protected, err := reg.GetVersion(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StageArchived, protected.Stage)

	next, err := reg.GetVersion(ctx, versions[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, next.Stage)
}

func TestGetLineage(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)

	_, err = reg.CreateVersion(ctx, model.ID, "job_a", nil, nil, "ds_a")
	require.NoError(t, err)
	_, err = reg.CreateVersion(ctx, model.ID, "job_b", nil, nil, "ds_b")
	require.NoError(t, err)

	lineage, err := reg.GetLineage(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)

	assert.Equal(t, 1, lineage[0].Ordinal)
	assert.Equal(t, "job_a", lineage[0].JobID)
	assert.Equal(t, "ds_a", lineage[0].DatasetID)
	assert.Equal(t, 2, lineage[1].Ordinal)
	assert.Equal(t, "job_b", lineage[1].JobID)
}

func TestGetModelNotFound(t *testing.T) {
	reg := newTestRegistry(t, 10)

	_, err := reg.GetModel(context.Background(), "model_missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSummary(t *testing.T) {
	reg := newTestRegistry(t, 10)
	ctx := context.Background()

	model, err := reg.RegisterModel(ctx, "support-bot", "", "", nil)
	require.NoError(t, err)
	v1, err := reg.CreateVersion(ctx, model.ID, "job_1", nil, nil, "")
	require.NoError(t, err)
	_, err = reg.CreateVersion(ctx, model.ID, "job_2", nil, nil, "")
	require.NoError(t, err)
	_, err = reg.PromoteVersion(ctx, v1.ID, "production", "alice")
	require.NoError(t, err)

	summary, err := reg.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalModels)
	assert.Equal(t, 2, summary.TotalVersions)
	assert.Equal(t, 1, summary.ByStage[models.StageProduction])
	assert.Equal(t, 1, summary.ByStage[models.StageDevelopment])
	assert.Equal(t, int64(2), summary.Stats.VersionsCreated)
}
