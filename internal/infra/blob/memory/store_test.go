package memory

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scodata/internal/blob/blobtest"
	"scodata/internal/blob/core"
)

func TestStoreContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return New() })
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("abc"), core.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	info.Metadata["a"] = "changed"
	b, _ := io.ReadAll(rc)
	b[0] = 'z'
	h, _ := s.Head(ctx, "k")
	if h.Metadata["a"] != "1" {
		t.Fatalf("metadata mutated through returned info")
	}
	_, rc2, _ := s.Get(ctx, "k")
	b2, _ := io.ReadAll(rc2)
	if string(b2) != "abc" {
		t.Fatalf("content mutated through returned reader: %q", b2)
	}
}

func TestImportTakesOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "scan.nii")
	if err := os.WriteFile(src, []byte("voxels"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := s.Import(ctx, "funcdata/f1/data/scan.nii", src, core.PutOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if info.Size != 6 || s.Len() != 1 {
		t.Fatalf("info %+v len %d", info, s.Len())
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err=%v", err)
	}
}

func TestRejectsEmptyKeyAndPresign(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	if _, err := s.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
