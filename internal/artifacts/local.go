package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/inferloop/modelops/pkg/errors"
)

// LocalStore keeps artifacts on the local filesystem under a base directory.
// It is the default backend for single-node deployments and tests.
type LocalStore struct {
	baseDir string
	logger  *logrus.Logger
}

// NewLocalStore creates the base directory if needed and returns the store.
func NewLocalStore(baseDir string, logger *logrus.Logger) (*LocalStore, error) {
	if baseDir == "" {
		return nil, apperrors.NewInvalidArgumentError(nil, apperrors.CodeMissingField, "artifact base directory is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.NewInternalError("create artifact directory", err)
	}
	return &LocalStore{baseDir: baseDir, logger: logger}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.NewInvalidArgumentError(nil, apperrors.CodeMissingField,
			fmt.Sprintf("invalid artifact key %q", key))
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	target, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", apperrors.NewInternalError("create artifact directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", apperrors.NewInternalError("create artifact file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", apperrors.NewInternalError("write artifact file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.NewInternalError("write artifact file", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", apperrors.NewInternalError("write artifact file", err)
	}

	s.logger.WithField("key", key).Debug("Stored artifact")
	return "file://" + target, nil
}

func (s *LocalStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError(apperrors.ErrArtifactNotFound, apperrors.CodeArtifactNotFound, key)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("open artifact file", err)
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	target, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewInternalError("stat artifact file", err)
	}
	return true, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(target)
	if os.IsNotExist(err) {
		return apperrors.NewNotFoundError(apperrors.ErrArtifactNotFound, apperrors.CodeArtifactNotFound, key)
	}
	if err != nil {
		return apperrors.NewInternalError("remove artifact file", err)
	}
	return nil
}

func (s *LocalStore) Close() error { return nil }
