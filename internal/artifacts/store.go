package artifacts

import (
	"context"
	"io"
)

// Store persists model artifacts (weights, adapters, exported bundles)
// outside the record store. Keys are slash-separated relative paths; Put
// returns the storage URI recorded on the owning version.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
