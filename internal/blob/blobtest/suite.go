// Package blobtest holds the contract tests every blob driver must pass.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scodata/internal/blob/core"
)

// Run exercises store against the core.Store contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()
	t.Run("PutGetHead", func(t *testing.T) { testPutGetHead(t, newStore(t)) })
	t.Run("CreateOnly", func(t *testing.T) { testCreateOnly(t, newStore(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("DeleteReportsExistence", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListByPrefix", func(t *testing.T) { testList(t, newStore(t)) })
	if _, ok := newStore(t).(core.Importer); ok {
		t.Run("ImportMovesFile", func(t *testing.T) { testImport(t, newStore(t)) })
	}
}

func put(t *testing.T, s core.Store, key, body string, opts core.PutOptions) core.Info {
	t.Helper()
	info, err := s.Put(context.Background(), key, strings.NewReader(body), opts)
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return info
}

func read(t *testing.T, s core.Store, key string) string {
	t.Helper()
	_, rc, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(b)
}

func testPutGetHead(t *testing.T, s core.Store) {
	info := put(t, s, "images/i1/data/cat.png", "meow", core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"owner": "i1"}})
	if info.Size != 4 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if got := read(t, s, "images/i1/data/cat.png"); got != "meow" {
		t.Fatalf("unexpected body %q", got)
	}
	h, err := s.Head(context.Background(), "images/i1/data/cat.png")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "image/png" || h.Size != 4 {
		t.Fatalf("unexpected head %+v", h)
	}
}

func testCreateOnly(t *testing.T, s core.Store) {
	put(t, s, "a/b.txt", "first", core.PutOptions{})
	_, err := s.Put(context.Background(), "a/b.txt", strings.NewReader("second"), core.PutOptions{})
	if !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if got := read(t, s, "a/b.txt"); got != "first" {
		t.Fatalf("create-only put changed content: %q", got)
	}
	put(t, s, "a/b.txt", "third", core.PutOptions{Overwrite: true})
	if got := read(t, s, "a/b.txt"); got != "third" {
		t.Fatalf("overwrite not applied: %q", got)
	}
}

func testMissing(t *testing.T, s core.Store) {
	if _, _, err := s.Get(context.Background(), "nope/x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(context.Background(), "nope/x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, s core.Store) {
	put(t, s, "d/x", "1", core.PutOptions{})
	ok, err := s.Delete(context.Background(), "d/x")
	if err != nil || !ok {
		t.Fatalf("delete existing: %v %v", ok, err)
	}
	ok, err = s.Delete(context.Background(), "d/x")
	if err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if _, err := s.Head(context.Background(), "d/x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected deleted key to be gone, got %v", err)
	}
}

func testList(t *testing.T, s core.Store) {
	for _, k := range []string{"funcdata/f1/members/b.txt", "funcdata/f1/members/a.txt", "funcdata/f2/data/x.nii"} {
		put(t, s, k, "x", core.PutOptions{})
	}
	infos, err := s.List(context.Background(), "funcdata/f1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "funcdata/f1/members/a.txt" || infos[1].Key != "funcdata/f1/members/b.txt" {
		t.Fatalf("unexpected list %+v", infos)
	}
	all, err := s.List(context.Background(), "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
}

func testImport(t *testing.T, s core.Store) {
	src := filepath.Join(t.TempDir(), "scan.nii")
	payload := []byte("nifti-bytes")
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	info, err := s.(core.Importer).Import(context.Background(), "funcdata/f1/data/scan.nii", src, core.PutOptions{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source should be gone after import, stat err %v", err)
	}
	if got := read(t, s, "funcdata/f1/data/scan.nii"); !bytes.Equal([]byte(got), payload) {
		t.Fatalf("imported content mismatch")
	}
}
