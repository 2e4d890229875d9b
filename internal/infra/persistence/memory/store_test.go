package memory

import (
	"context"
	"errors"
	"testing"

	"scodata/internal/metadata/core"
	"scodata/internal/metadata/metadatatest"
)

func TestStoreContract(t *testing.T) {
	metadatatest.Run(t, func(t *testing.T) core.Store { return NewStore() })
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.Put(ctx, "c", "a", core.Document(`{"x":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	d, _ := s.Get(ctx, "c", "a")
	d[1] = 'y'
	again, _ := s.Get(ctx, "c", "a")
	if string(again) != `{"x":1}` {
		t.Fatalf("stored document mutated: %s", again)
	}
}

func TestListSurvivesConcurrentClear(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := s.Put(ctx, "c", id, core.Document(`{}`)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	n := 0
	for _, err := range s.List(ctx, "c", nil) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		n++
		_ = s.Clear(ctx, "c")
	}
	if n != 1 {
		t.Fatalf("expected iteration to stop yielding after clear, got %d", n)
	}
}

func TestListHonoursContext(t *testing.T) {
	s := NewStore()
	_ = s.Put(context.Background(), "c", "a", core.Document(`{}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range s.List(ctx, "c", nil) {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context error, got %v", err)
		}
	}
}
