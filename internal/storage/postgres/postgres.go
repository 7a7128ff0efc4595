package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	apperrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/interfaces"
	"github.com/inferloop/modelops/pkg/models"
)

// Config holds the PostgreSQL backend configuration.
type Config struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// NewRepositories connects to PostgreSQL, bootstraps the schema and returns
// repositories storing each entity as a JSONB payload in its own table.
func NewRepositories(config *Config, logger *logrus.Logger) (*interfaces.Repositories, error) {
	if config == nil || config.Host == "" {
		return nil, apperrors.NewInvalidArgumentError(nil, apperrors.CodeMissingField, "postgres host is required")
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, apperrors.NewInternalError("postgres open failed", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewInternalError("postgres connection failed", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"database": config.Database,
	}).Info("Connected to PostgreSQL store")

	return &interfaces.Repositories{
		Models:      &modelRepo{table: table{db: db, name: "models"}},
		Versions:    &versionRepo{table: table{db: db, name: "versions"}},
		Endpoints:   &endpointRepo{table: table{db: db, name: "endpoints"}},
		Deployments: &deploymentRepo{table: table{db: db, name: "deployments"}},
		Monitors:    &monitorRepo{table: table{db: db, name: "monitors"}},
	}, nil
}

var tableNames = []string{"models", "versions", "endpoints", "deployments", "monitors"}

func bootstrap(ctx context.Context, db *sql.DB) error {
	for _, name := range tableNames {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, name)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("create table %s", name), err)
		}
	}
	return nil
}

// table is the shared row plumbing under each typed repository. Records are
// one JSONB payload per id; the control logic never queries inside payloads.
type table struct {
	db   *sql.DB
	name string
}

func (t *table) insert(ctx context.Context, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternalError("marshal record", err)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (id, payload, updated_at) VALUES ($1, $2, NOW())", t.name)
	if _, err := t.db.ExecContext(ctx, stmt, id, data); err != nil {
		return apperrors.NewInternalError("postgres insert failed", err)
	}
	return nil
}

func (t *table) get(ctx context.Context, id string, out interface{}, notFound func(id string) error) error {
	stmt := fmt.Sprintf("SELECT payload FROM %s WHERE id = $1", t.name)
	var data []byte
	err := t.db.QueryRowContext(ctx, stmt, id).Scan(&data)
	if err == sql.ErrNoRows {
		return notFound(id)
	}
	if err != nil {
		return apperrors.NewInternalError("postgres select failed", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewInternalError("unmarshal record", err)
	}
	return nil
}

func (t *table) update(ctx context.Context, id string, v interface{}, notFound func(id string) error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternalError("marshal record", err)
	}
	stmt := fmt.Sprintf("UPDATE %s SET payload = $2, updated_at = NOW() WHERE id = $1", t.name)
	res, err := t.db.ExecContext(ctx, stmt, id, data)
	if err != nil {
		return apperrors.NewInternalError("postgres update failed", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("postgres update failed", err)
	}
	if rows == 0 {
		return notFound(id)
	}
	return nil
}

func (t *table) list(ctx context.Context) ([][]byte, error) {
	stmt := fmt.Sprintf("SELECT payload FROM %s ORDER BY id", t.name)
	rows, err := t.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, apperrors.NewInternalError("postgres select failed", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.NewInternalError("postgres scan failed", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("postgres select failed", err)
	}
	return out, nil
}

func (t *table) delete(ctx context.Context, id string, notFound func(id string) error) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.name)
	res, err := t.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return apperrors.NewInternalError("postgres delete failed", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("postgres delete failed", err)
	}
	if rows == 0 {
		return notFound(id)
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

type modelRepo struct{ table table }

func (r *modelRepo) Create(ctx context.Context, m *models.Model) error {
	return r.table.insert(ctx, m.ID, m)
}

func (r *modelRepo) Get(ctx context.Context, id string) (*models.Model, error) {
	var m models.Model
	if err := r.table.get(ctx, id, &m, modelNotFound); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *modelRepo) Update(ctx context.Context, m *models.Model) error {
	return r.table.update(ctx, m.ID, m, modelNotFound)
}

func (r *modelRepo) List(ctx context.Context) ([]*models.Model, error) {
	raw, err := r.table.list(ctx)
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
	return r.table.delete(ctx, id, modelNotFound)
}

type versionRepo struct{ table table }

func (r *versionRepo) Create(ctx context.Context, v *models.Version) error {
	return r.table.insert(ctx, v.ID, v)
}

func (r *versionRepo) Get(ctx context.Context, id string) (*models.Version, error) {
	var v models.Version
	if err := r.table.get(ctx, id, &v, versionNotFound); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepo) Update(ctx context.Context, v *models.Version) error {
	return r.table.update(ctx, v.ID, v, versionNotFound)
}

func (r *versionRepo) List(ctx context.Context) ([]*models.Version, error) {
	raw, err := r.table.list(ctx)
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
	return r.table.delete(ctx, id, versionNotFound)
}

type endpointRepo struct{ table table }

func (r *endpointRepo) Create(ctx context.Context, e *models.Endpoint) error {
	return r.table.insert(ctx, e.ID, e)
}

func (r *endpointRepo) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	var e models.Endpoint
	if err := r.table.get(ctx, id, &e, endpointNotFound); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *endpointRepo) Update(ctx context.Context, e *models.Endpoint) error {
	return r.table.update(ctx, e.ID, e, endpointNotFound)
}

func (r *endpointRepo) List(ctx context.Context) ([]*models.Endpoint, error) {
	raw, err := r.table.list(ctx)
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
	return r.table.delete(ctx, id, endpointNotFound)
}

type deploymentRepo struct{ table table }

func (r *deploymentRepo) Create(ctx context.Context, d *models.Deployment) error {
	return r.table.insert(ctx, d.ID, d)
}

func (r *deploymentRepo) Get(ctx context.Context, id string) (*models.Deployment, error) {
	var d models.Deployment
	if err := r.table.get(ctx, id, &d, deploymentNotFound); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deploymentRepo) Update(ctx context.Context, d *models.Deployment) error {
	return r.table.update(ctx, d.ID, d, deploymentNotFound)
}

func (r *deploymentRepo) List(ctx context.Context) ([]*models.Deployment, error) {
	raw, err := r.table.list(ctx)
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
	return r.table.delete(ctx, id, deploymentNotFound)
}

type monitorRepo struct{ table table }

func (r *monitorRepo) Create(ctx context.Context, m *models.Monitor) error {
	return r.table.insert(ctx, m.ID, m)
}

func (r *monitorRepo) Get(ctx context.Context, id string) (*models.Monitor, error) {
	var m models.Monitor
	if err := r.table.get(ctx, id, &m, monitorNotFound); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *monitorRepo) Update(ctx context.Context, m *models.Monitor) error {
	return r.table.update(ctx, m.ID, m, monitorNotFound)
}

func (r *monitorRepo) List(ctx context.Context) ([]*models.Monitor, error) {
	raw, err := r.table.list(ctx)
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
	return r.table.delete(ctx, id, monitorNotFound)
}
