package s3

import (
	"context"
	"strings"
	"testing"

	"scodata/internal/blob/blobtest"
	"scodata/internal/blob/core"
)

func TestMockStoreContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return NewMockForTests() })
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SCODATA_BLOB_S3_BUCKET", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error without bucket")
	}
	t.Setenv("SCODATA_BLOB_S3_BUCKET", "artifacts")
	t.Setenv("SCODATA_BLOB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("SCODATA_BLOB_S3_PATH_STYLE", "TRUE")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Bucket != "artifacts" || !cfg.PathStyle || cfg.Endpoint != "http://localhost:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestPresignAndMetadata(t *testing.T) {
	s := NewMockForTests()
	ctx := context.Background()
	if _, err := s.Put(ctx, "x/y", strings.NewReader("data"), core.PutOptions{Metadata: map[string]string{"owner": "r1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	h, err := s.Head(ctx, "x/y")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.Metadata["owner"] != "r1" {
		t.Fatalf("metadata not preserved: %+v", h.Metadata)
	}
	u, err := s.PresignURL(ctx, "x/y", core.SignedURLOptions{})
	if err != nil || !strings.Contains(u, "x/y") {
		t.Fatalf("presign: %q %v", u, err)
	}
	if _, err := s.PresignURL(ctx, "x/y", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
