package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// NewRepositories returns the default in-memory backend: one locked map
// per entity type. Get and List hand out deep copies, so readers hold
// consistent snapshots while writers mutate.
func NewRepositories() *interfaces.Repositories {
	return &interfaces.Repositories{
		Models:      &modelRepo{records: make(map[string]*models.Model)},
		Versions:    &versionRepo{records: make(map[string]*models.Version)},
		Endpoints:   &endpointRepo{records: make(map[string]*models.Endpoint)},
		Deployments: &deploymentRepo{records: make(map[string]*models.Deployment)},
		Monitors:    &monitorRepo{records: make(map[string]*models.Monitor)},
	}
}

type modelRepo struct {
	mu      sync.RWMutex
	records map[string]*models.Model
}

func (r *modelRepo) Create(ctx context.Context, m *models.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[m.ID] = m.Clone()
	return nil
}

func (r *modelRepo) Get(ctx context.Context, id string) (*models.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrModelNotFound, errors.CodeModelNotFound, id)
	}
	return m.Clone(), nil
}

func (r *modelRepo) Update(ctx context.Context, m *models.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[m.ID]; !ok {
		return errors.NewNotFoundError(errors.ErrModelNotFound, errors.CodeModelNotFound, m.ID)
	}
	r.records[m.ID] = m.Clone()
	return nil
}

func (r *modelRepo) List(ctx context.Context) ([]*models.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Model, 0, len(r.records))
	for _, m := range r.records {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *modelRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return errors.NewNotFoundError(errors.ErrModelNotFound, errors.CodeModelNotFound, id)
	}
	delete(r.records, id)
	return nil
}

type versionRepo struct {
	mu      sync.RWMutex
	records map[string]*models.Version
}

func (r *versionRepo) Create(ctx context.Context, v *models.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[v.ID] = v.Clone()
	return nil
}

func (r *versionRepo) Get(ctx context.Context, id string) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrVersionNotFound, errors.CodeVersionNotFound, id)
	}
	return v.Clone(), nil
}

func (r *versionRepo) Update(ctx context.Context, v *models.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[v.ID]; !ok {
		return errors.NewNotFoundError(errors.ErrVersionNotFound, errors.CodeVersionNotFound, v.ID)
	}
	r.records[v.ID] = v.Clone()
	return nil
}

func (r *versionRepo) List(ctx context.Context) ([]*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Version, 0, len(r.records))
	for _, v := range r.records {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *versionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return errors.NewNotFoundError(errors.ErrVersionNotFound, errors.CodeVersionNotFound, id)
	}
	delete(r.records, id)
	return nil
}

type endpointRepo struct {
	mu      sync.RWMutex
	records map[string]*models.Endpoint
}

func (r *endpointRepo) Create(ctx context.Context, e *models.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[e.ID] = e.Clone()
	return nil
}

func (r *endpointRepo) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrEndpointNotFound, errors.CodeEndpointNotFound, id)
	}
	return e.Clone(), nil
}

func (r *endpointRepo) Update(ctx context.Context, e *models.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[e.ID]; !ok {
		return errors.NewNotFoundError(errors.ErrEndpointNotFound, errors.CodeEndpointNotFound, e.ID)
	}
	r.records[e.ID] = e.Clone()
	return nil
}

func (r *endpointRepo) List(ctx context.Context) ([]*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Endpoint, 0, len(r.records))
	for _, e := range r.records {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *endpointRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return errors.NewNotFoundError(errors.ErrEndpointNotFound, errors.CodeEndpointNotFound, id)
	}
	delete(r.records, id)
	return nil
}

type deploymentRepo struct {
	mu      sync.RWMutex
	records map[string]*models.Deployment
}

func (r *deploymentRepo) Create(ctx context.Context, d *models.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[d.ID] = d.Clone()
	return nil
}

func (r *deploymentRepo) Get(ctx context.Context, id string) (*models.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrDeploymentNotFound, errors.CodeDeploymentNotFound, id)
	}
	return d.Clone(), nil
}

func (r *deploymentRepo) Update(ctx context.Context, d *models.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[d.ID]; !ok {
		return errors.NewNotFoundError(errors.ErrDeploymentNotFound, errors.CodeDeploymentNotFound, d.ID)
	}
	r.records[d.ID] = d.Clone()
	return nil
}

func (r *deploymentRepo) List(ctx context.Context) ([]*models.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Deployment, 0, len(r.records))
	for _, d := range r.records {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *deploymentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return errors.NewNotFoundError(errors.ErrDeploymentNotFound, errors.CodeDeploymentNotFound, id)
	}
	delete(r.records, id)
	return nil
}

type monitorRepo struct {
	mu      sync.RWMutex
	records map[string]*models.Monitor
}

func (r *monitorRepo) Create(ctx context.Context, m *models.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[m.ID] = m.Clone()
	return nil
}

func (r *monitorRepo) Get(ctx context.Context, id string) (*models.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrMonitorNotFound, errors.CodeMonitorNotFound, id)
	}
	return m.Clone(), nil
}

func (r *monitorRepo) Update(ctx context.Context, m *models.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[m.ID]; !ok {
		return errors.NewNotFoundError(errors.ErrMonitorNotFound, errors.CodeMonitorNotFound, m.ID)
	}
	r.records[m.ID] = m.Clone()
	return nil
}

func (r *monitorRepo) List(ctx context.Context) ([]*models.Monitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Monitor, 0, len(r.records))
	for _, m := range r.records {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *monitorRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return errors.NewNotFoundError(errors.ErrMonitorNotFound, errors.CodeMonitorNotFound, id)
	}
	delete(r.records, id)
	return nil
}
