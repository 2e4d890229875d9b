// Package metadatatest holds the contract tests every metadata driver must pass.
package metadatatest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scodata/internal/metadata/core"
)

// Run exercises the core.Store contract. newStore must return a store with
// empty collections; drivers sharing a backend should namespace collections.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("OverwriteKeepsOrder", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListFilterRestart", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ListEarlyStop", func(t *testing.T) { testEarlyStop(t, newStore(t)) })
	t.Run("ClearIsScoped", func(t *testing.T) { testClear(t, newStore(t)) })
	t.Run("RejectsNonObject", func(t *testing.T) { testReject(t, newStore(t)) })
}

func doc(t *testing.T, id, state string) core.Document {
	t.Helper()
	d, err := core.Encode(map[string]any{"_id": id, "state": state, "properties": map[string]any{"name": "n-" + id}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return d
}

func ids(t *testing.T, s core.Store, collection string, f core.Filter) []string {
	t.Helper()
	docs, err := core.Collect(s.List(context.Background(), collection, f))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		var v struct {
			ID string `json:"_id"`
		}
		if err := d.Decode(&v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, v.ID)
	}
	return out
}

func put(t *testing.T, s core.Store, collection, id, state string) {
	t.Helper()
	if err := s.Put(context.Background(), collection, id, doc(t, id, state)); err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func testPutGet(t *testing.T, s core.Store) {
	put(t, s, "experiments", "e1", "x")
	got, err := s.Get(context.Background(), "experiments", "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	f, err := got.Fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if f["_id"] != "e1" || f["properties"].(map[string]any)["name"] != "n-e1" {
		t.Fatalf("unexpected document %s", got)
	}
}

func testGetMissing(t *testing.T, s core.Store) {
	if _, err := s.Get(context.Background(), "experiments", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testOverwrite(t *testing.T, s core.Store) {
	put(t, s, "modelruns", "a", "CREATED")
	put(t, s, "modelruns", "b", "CREATED")
	put(t, s, "modelruns", "a", "RUNNING")
	if got := fmt.Sprint(ids(t, s, "modelruns", nil)); got != "[a b]" {
		t.Fatalf("unexpected order %s", got)
	}
	d, err := s.Get(context.Background(), "modelruns", "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	f, _ := d.Fields()
	if f["state"] != "RUNNING" {
		t.Fatalf("overwrite not applied: %s", d)
	}
}

func testDelete(t *testing.T, s core.Store) {
	put(t, s, "images", "i1", "")
	ok, err := s.Delete(context.Background(), "images", "i1")
	if err != nil || !ok {
		t.Fatalf("delete existing: %v %v", ok, err)
	}
	ok, err = s.Delete(context.Background(), "images", "i1")
	if err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if _, err := s.Get(context.Background(), "images", "i1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func testList(t *testing.T, s core.Store) {
	for i, st := range []string{"CREATED", "RUNNING", "CREATED", "FAILED", "CREATED"} {
		put(t, s, "modelruns", fmt.Sprintf("r%d", i), st)
	}
	put(t, s, "experiments", "e1", "CREATED")
	seq := s.List(context.Background(), "modelruns", core.Filter{"state": "CREATED"})
	for pass := 0; pass < 2; pass++ {
		docs, err := core.Collect(seq)
		if err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if len(docs) != 3 {
			t.Fatalf("pass %d: expected 3 documents, got %d", pass, len(docs))
		}
	}
	if got := fmt.Sprint(ids(t, s, "modelruns", core.Filter{"properties.name": "n-r3"})); got != "[r3]" {
		t.Fatalf("nested filter: %s", got)
	}
	if got := len(ids(t, s, "empty", nil)); got != 0 {
		t.Fatalf("expected empty collection, got %d", got)
	}
}

func testEarlyStop(t *testing.T, s core.Store) {
	for i := 0; i < 5; i++ {
		put(t, s, "subjects", fmt.Sprintf("s%d", i), "")
	}
	n := 0
	for _, err := range s.List(context.Background(), "subjects", nil) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2, got %d", n)
	}
}

func testClear(t *testing.T, s core.Store) {
	put(t, s, "images", "i1", "")
	put(t, s, "imagegroups", "g1", "")
	if err := s.Clear(context.Background(), "images"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := len(ids(t, s, "images", nil)); got != 0 {
		t.Fatalf("expected images cleared, got %d", got)
	}
	if got := len(ids(t, s, "imagegroups", nil)); got != 1 {
		t.Fatalf("clear leaked into other collection")
	}
	put(t, s, "images", "i2", "")
	if got := len(ids(t, s, "images", nil)); got != 1 {
		t.Fatalf("collection unusable after clear")
	}
}

func testReject(t *testing.T, s core.Store) {
	if err := s.Put(context.Background(), "images", "bad", core.Document(`[1,2]`)); err == nil {
		t.Fatalf("expected non-object document to be rejected")
	}
}
