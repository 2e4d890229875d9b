package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scodata/internal/blob/blobtest"
	"scodata/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return newTempStore(t) })
}

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "../x", "/abs", "a/../../b"} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if k, err := sanitizeKey("a//b/./c"); err != nil || k != "a/b/c" {
		t.Fatalf("unexpected clean key %q %v", k, err)
	}
}

func TestSidecarLookalikeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	keys := []string{"m/a", "m/a.meta", "m/a.meta~", "m/dir.meta/b", "m/dir"}
	for _, k := range keys {
		if _, err := store.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	infos, err := store.List(ctx, "m/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, info := range infos {
		got = append(got, info.Key)
	}
	want := []string{"m/a", "m/a.meta", "m/a.meta~", "m/dir", "m/dir.meta/b"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("keys %v, want %v", got, want)
	}
	for _, k := range keys {
		_, rc, err := store.Get(ctx, k)
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(b) != k {
			t.Fatalf("%s holds %q", k, b)
		}
	}
}

func TestPutWritesSidecarAndChecksum(t *testing.T) {
	store := newTempStore(t)
	info, err := store.Put(context.Background(), "x/y.txt", strings.NewReader("hello"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	// sha256("hello")
	if info.ETag != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected etag %s", info.ETag)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "x", "y.txt.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(store.Root(), "x"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestDeletePrunesEmptyDirectories(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "subjects/s1/members/t1.mgz", bytes.NewReader([]byte("1")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, err := store.Delete(ctx, "subjects/s1/members/t1.mgz"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "subjects")); !os.IsNotExist(err) {
		t.Fatalf("expected empty directories to be pruned, stat err %v", err)
	}
	if _, err := os.Stat(store.Root()); err != nil {
		t.Fatalf("root must survive pruning: %v", err)
	}
}

func TestImportRejectsExistingKey(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("a"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	src := filepath.Join(t.TempDir(), "src")
	if err := os.WriteFile(src, []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Import(ctx, "k", src, core.PutOptions{}); err == nil {
		t.Fatalf("expected import onto existing key to fail")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("failed import must leave the source in place: %v", err)
	}
}

func TestPresignURL(t *testing.T) {
	store := newTempStore(t)
	u, err := store.PresignURL(context.Background(), "a/b", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(u, "file://") {
		t.Fatalf("unexpected url %q %v", u, err)
	}
	if _, err := store.PresignURL(context.Background(), "a/b", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
