package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	apperrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// Config holds the Redis backend configuration.
type Config struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// NewRepositories connects to Redis and returns repositories storing each
// entity as a JSON value under <prefix>:<entity>:<id>, with a set per
// entity type as the listing index.
func NewRepositories(config *Config, logger *logrus.Logger) (*interfaces.Repositories, error) {
	if config == nil || config.Addr == "" {
		return nil, apperrors.NewInvalidArgumentError(nil, apperrors.CodeMissingField, "redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "modelops"
	}
	if logger == nil {
		logger = logrus.New()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.NewInternalError("redis connection failed", err)
	}

	logger.WithField("addr", config.Addr).Info("Connected to Redis store")

	return &interfaces.Repositories{
		Models:      &modelRepo{store: store{client: client, prefix: config.KeyPrefix + ":model"}},
		Versions:    &versionRepo{store: store{client: client, prefix: config.KeyPrefix + ":version"}},
		Endpoints:   &endpointRepo{store: store{client: client, prefix: config.KeyPrefix + ":endpoint"}},
		Deployments: &deploymentRepo{store: store{client: client, prefix: config.KeyPrefix + ":deployment"}},
		Monitors:    &monitorRepo{store: store{client: client, prefix: config.KeyPrefix + ":monitor"}},
	}, nil
}

// store is the shared key/value plumbing under each typed repository.
type store struct {
	client redis.UniversalClient
	prefix string
}

func (s *store) key(id string) string { return s.prefix + ":" + id }
func (s *store) indexKey() string     { return s.prefix + ":index" }

func (s *store) set(ctx context.Context, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternalError("marshal record", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, 0)
	pipe.SAdd(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewInternalError("redis write failed", err)
	}
	return nil
}

func (s *store) get(ctx context.Context, id string, out interface{}, notFound func(id string) error) error {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return notFound(id)
	}
	if err != nil {
		return apperrors.NewInternalError("redis read failed", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewInternalError("unmarshal record", err)
	}
	return nil
}

func (s *store) update(ctx context.Context, id string, v interface{}, notFound func(id string) error) error {
	exists, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return apperrors.NewInternalError("redis read failed", err)
	}
	if exists == 0 {
		return notFound(id)
	}
	return s.set(ctx, id, v)
}

func (s *store) list(ctx context.Context) ([][]byte, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, apperrors.NewInternalError("redis index read failed", err)
	}
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.key(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, apperrors.NewInternalError("redis read failed", err)
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *store) delete(ctx context.Context, id string, notFound func(id string) error) error {
	removed, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return apperrors.NewInternalError("redis delete failed", err)
	}
	if removed == 0 {
		return notFound(id)
	}
	if err := s.client.SRem(ctx, s.indexKey(), id).Err(); err != nil {
		return apperrors.NewInternalError("redis index update failed", err)
	}
	return nil
}

func modelNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.ErrModelNotFound, apperrors.CodeModelNotFound, id)
}
func versionNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.ErrVersionNotFound, apperrors.CodeVersionNotFound, id)
}
func endpointNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.ErrEndpointNotFound, apperrors.CodeEndpointNotFound, id)
}
func deploymentNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.ErrDeploymentNotFound, apperrors.CodeDeploymentNotFound, id)
}
func monitorNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.ErrMonitorNotFound, apperrors.CodeMonitorNotFound, id)
}

type modelRepo struct{ store store }

func (r *modelRepo) Create(ctx context.Context, m *models.Model) error {
	return r.store.set(ctx, m.ID, m)
}

func (r *modelRepo) Get(ctx context.Context, id string) (*models.Model, error) {
	var m models.Model
	if err := r.store.get(ctx, id, &m, modelNotFound); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *modelRepo) Update(ctx context.Context, m *models.Model) error {
	return r.store.update(ctx, m.ID, m, modelNotFound)
}

func (r *modelRepo) List(ctx context.Context) ([]*models.Model, error) {
	raw, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Model, 0, len(raw))
	for _, data := range raw {
		var m models.Model
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, apperrors.NewInternalError("unmarshal record", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *modelRepo) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, modelNotFound)
}

type versionRepo struct{ store store }

func (r *versionRepo) Create(ctx context.Context, v *models.Version) error {
	return r.store.set(ctx, v.ID, v)
}

func (r *versionRepo) Get(ctx context.Context, id string) (*models.Version, error) {
	var v models.Version
	if err := r.store.get(ctx, id, &v, versionNotFound); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepo) Update(ctx context.Context, v *models.Version) error {
	return r.store.update(ctx, v.ID, v, versionNotFound)
}

func (r *versionRepo) List(ctx context.Context) ([]*models.Version, error) {
	raw, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Version, 0, len(raw))
	for _, data := range raw {
		var v models.Version
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, apperrors.NewInternalError("unmarshal record", err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (r *versionRepo) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, versionNotFound)
}

type endpointRepo struct{ store store }

func (r *endpointRepo) Create(ctx context.Context, e *models.Endpoint) error {
	return r.store.set(ctx, e.ID, e)
}

func (r *endpointRepo) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	var e models.Endpoint
	if err := r.store.get(ctx, id, &e, endpointNotFound); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *endpointRepo) Update(ctx context.Context, e *models.Endpoint) error {
	return r.store.update(ctx, e.ID, e, endpointNotFound)
}

func (r *endpointRepo) List(ctx context.Context) ([]*models.Endpoint, error) {
	raw, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Endpoint, 0, len(raw))
	for _, data := range raw {
		var e models.Endpoint
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, apperrors.NewInternalError("unmarshal record", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

func (r *endpointRepo) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, endpointNotFound)
}

type deploymentRepo struct{ store store }

func (r *deploymentRepo) Create(ctx context.Context, d *models.Deployment) error {
	return r.store.set(ctx, d.ID, d)
}

func (r *deploymentRepo) Get(ctx context.Context, id string) (*models.Deployment, error) {
	var d models.Deployment
	if err := r.store.get(ctx, id, &d, deploymentNotFound); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deploymentRepo) Update(ctx context.Context, d *models.Deployment) error {
	return r.store.update(ctx, d.ID, d, deploymentNotFound)
}

func (r *deploymentRepo) List(ctx context.Context) ([]*models.Deployment, error) {
	raw, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Deployment, 0, len(raw))
	for _, data := range raw {
		var d models.Deployment
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, apperrors.NewInternalError("unmarshal record", err)
		}
		out = append(out, &d)
	}
	return out, nil
}

func (r *deploymentRepo) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, deploymentNotFound)
}

type monitorRepo struct{ store store }

func (r *monitorRepo) Create(ctx context.Context, m *models.Monitor) error {
	return r.store.set(ctx, m.ID, m)
}

func (r *monitorRepo) Get(ctx context.Context, id string) (*models.Monitor, error) {
	var m models.Monitor
	if err := r.store.get(ctx, id, &m, monitorNotFound); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *monitorRepo) Update(ctx context.Context, m *models.Monitor) error {
	return r.store.update(ctx, m.ID, m, monitorNotFound)
}

func (r *monitorRepo) List(ctx context.Context) ([]*models.Monitor, error) {
	raw, err := r.store.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Monitor, 0, len(raw))
	for _, data := range raw {
		var m models.Monitor
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, apperrors.NewInternalError("unmarshal record", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *monitorRepo) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, monitorNotFound)
}
