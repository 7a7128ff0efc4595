package interfaces

import (
	"context"

	"github.com/inferloop/modelops/pkg/models"
)

// The repository interfaces decouple the lifecycle control logic from the
// record store. Implementations must return deep copies from Get and List
// so read-only callers see consistent snapshots while writers mutate.
// Backends: in-memory maps (default, tests), Redis, Postgres.

// ModelRepository stores Model records keyed by id.
type ModelRepository interface {
	Create(ctx context.Context, model *models.Model) error
	Get(ctx context.Context, id string) (*models.Model, error)
	Update(ctx context.Context, model *models.Model) error
	List(ctx context.Context) ([]*models.Model, error)
	Delete(ctx context.Context, id string) error
}

// VersionRepository stores Version records keyed by id.
type VersionRepository interface {
	Create(ctx context.Context, version *models.Version) error
	Get(ctx context.Context, id string) (*models.Version, error)
	Update(ctx context.Context, version *models.Version) error
	List(ctx context.Context) ([]*models.Version, error)
	Delete(ctx context.Context, id string) error
}

// EndpointRepository stores Endpoint records keyed by id.
type EndpointRepository interface {
	Create(ctx context.Context, endpoint *models.Endpoint) error
	Get(ctx context.Context, id string) (*models.Endpoint, error)
	Update(ctx context.Context, endpoint *models.Endpoint) error
	List(ctx context.Context) ([]*models.Endpoint, error)
	Delete(ctx context.Context, id string) error
}

// DeploymentRepository stores Deployment records keyed by id.
type DeploymentRepository interface {
	Create(ctx context.Context, deployment *models.Deployment) error
	Get(ctx context.Context, id string) (*models.Deployment, error)
	Update(ctx context.Context, deployment *models.Deployment) error
	List(ctx context.Context) ([]*models.Deployment, error)
	Delete(ctx context.Context, id string) error
}

// MonitorRepository stores Monitor records keyed by id.
type MonitorRepository interface {
	Create(ctx context.Context, monitor *models.Monitor) error
	Get(ctx context.Context, id string) (*models.Monitor, error)
	Update(ctx context.Context, monitor *models.Monitor) error
	List(ctx context.Context) ([]*models.Monitor, error)
	Delete(ctx context.Context, id string) error
}

// Repositories bundles one repository per entity type, all backed by the
// same store.
type Repositories struct {
	Models      ModelRepository
	Versions    VersionRepository
	Endpoints   EndpointRepository
	Deployments DeploymentRepository
	Monitors    MonitorRepository
}
