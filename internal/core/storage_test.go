package core_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"scodata/internal/blob"
	"scodata/internal/core"
	"scodata/internal/ingest"
	"scodata/internal/metadata"
)

func TestOpenSQLiteAndFilesystem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := core.StorageConfig{
		Metadata: metadata.Config{Driver: metadata.DriverSQLite, SQLitePath: filepath.Join(dir, "meta.db")},
		Blob:     blob.Config{Driver: blob.DriverFilesystem, FSRoot: filepath.Join(dir, "files")},
	}
	svc, err := core.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fd, err := svc.FunctionalData().Create(ctx, core.FunctionalDataInput{Upload: ingest.Upload{Filename: "run.nii", Body: strings.NewReader("voxels")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := core.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.FunctionalData().Get(ctx, fd.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Checksum != fd.Checksum {
		t.Fatalf("checksum changed: %s vs %s", got.Checksum, fd.Checksum)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := core.Open(context.Background(), core.StorageConfig{
		Metadata: metadata.Config{Driver: metadata.DriverMemory},
		Blob:     blob.Config{Driver: "tape"},
	})
	if err == nil {
		t.Fatal("expected unknown blob driver to fail")
	}
}

func TestOpenFromEnvMemory(t *testing.T) {
	t.Setenv("SCODATA_METADATA_DRIVER", "memory")
	t.Setenv("SCODATA_BLOB_DRIVER", "memory")
	svc, err := core.OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("open from env: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	if svc.Metadata().Driver() != metadata.DriverMemory || svc.Blobs().Driver() != blob.DriverMemory {
		t.Fatalf("unexpected drivers %s/%s", svc.Metadata().Driver(), svc.Blobs().Driver())
	}
}
