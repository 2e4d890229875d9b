package core

import (
	"context"
	"errors"
	"fmt"

	"scodata/internal/blob"
	"scodata/internal/metadata"
)

// StorageConfig selects the metadata store and the file store.
type StorageConfig struct {
	Metadata metadata.Config
	Blob     blob.Config
}

// StorageConfigFromEnv reads both store selections from the environment.
// See metadata.ConfigFromEnv and blob.ConfigFromEnv for the variables.
func StorageConfigFromEnv() (StorageConfig, error) {
	meta, err := metadata.ConfigFromEnv()
	if err != nil {
		return StorageConfig{}, err
	}
	files, err := blob.ConfigFromEnv()
	if err != nil {
		return StorageConfig{}, err
	}
	return StorageConfig{Metadata: meta, Blob: files}, nil
}

// Open connects both stores and returns a Service that owns them; Close the
// service at shutdown.
func Open(ctx context.Context, cfg StorageConfig, opts ...Option) (*Service, error) {
	meta, err := metadata.Open(ctx, cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	files, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open file store: %w", err), meta.Close())
	}
	return NewService(meta, files, opts...), nil
}

// OpenFromEnv is Open with StorageConfigFromEnv.
func OpenFromEnv(ctx context.Context, opts ...Option) (*Service, error) {
	cfg, err := StorageConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg, opts...)
}
