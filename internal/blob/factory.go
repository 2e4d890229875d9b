package blob

import (
	"context"
	"fmt"
	"os"
)

// Config selects and configures a driver. Zero values fall back to the
// filesystem driver rooted at ./blobdata.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
	GCS    GCSConfig
}

// ConfigFromEnv builds a Config from environment variables.
//
//	SCODATA_BLOB_DRIVER: fs|s3|gcs|memory (default fs)
//	SCODATA_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 and GCS variables documented in their drivers)
func ConfigFromEnv() (Config, error) {
	cfg := Config{Driver: Driver(os.Getenv("SCODATA_BLOB_DRIVER")), FSRoot: os.Getenv("SCODATA_BLOB_FS_ROOT")}
	var err error
	switch cfg.Driver {
	case DriverS3:
		cfg.S3, err = S3ConfigFromEnv()
	case DriverGCS:
		cfg.GCS, err = GCSConfigFromEnv()
	}
	return cfg, err
}

// Open constructs the blob.Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverGCS:
		return NewGCS(ctx, cfg.GCS)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// OpenFromEnv selects a blob.Store implementation using environment variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}
