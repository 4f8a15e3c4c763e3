package storage

import (
	"context"
	"fmt"

	"github.com/buildwave/apiserver/config"
)

// NewFromConfig selects and constructs the configured object storage
// backend. MinIO is the default; GCS is the managed alternative.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMinio:
		backend, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return NewStorage(backend), nil
	case config.StorageBackendGCS:
		backend, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
