package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default fs: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenFromEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv("SCODATA_BLOB_DRIVER", "fs")
	t.Setenv("SCODATA_BLOB_FS_ROOT", t.TempDir())
	s, err := OpenFromEnv(ctx)
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs from env: %v", err)
	}
	t.Setenv("SCODATA_BLOB_DRIVER", "s3")
	t.Setenv("SCODATA_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(ctx); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	t.Setenv("SCODATA_BLOB_DRIVER", "gcs")
	t.Setenv("SCODATA_BLOB_GCS_BUCKET", "")
	if _, err := OpenFromEnv(ctx); err == nil {
		t.Fatalf("expected gcs without bucket to fail")
	}
}

func TestMockS3Facade(t *testing.T) {
	if NewMockS3ForTests().Driver() != DriverS3 {
		t.Fatalf("expected s3 driver")
	}
}
