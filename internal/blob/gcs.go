package blob

import (
	"context"

	"scodata/internal/infra/blob/gcs"
)

// GCSConfig re-exports the infra GCS configuration type.
type GCSConfig = gcs.Config

// NewGCS constructs a Google Cloud Storage backed blob.Store.
func NewGCS(ctx context.Context, cfg GCSConfig) (Store, error) {
	return gcs.New(ctx, cfg)
}

// GCSConfigFromEnv reads SCODATA_BLOB_GCS_BUCKET and STORAGE_EMULATOR_HOST.
func GCSConfigFromEnv() (GCSConfig, error) { return gcs.ConfigFromEnv() }
