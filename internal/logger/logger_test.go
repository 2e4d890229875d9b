package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))
	log.Debug("operation completed", "op", "experiments.create", "id", "e1")
	log.Error("operation failed", "op", "modelruns.start", "error", errors.New("boom"))
	log.With("component", "ingest").Warn("dangling", "key")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["op"]; got != "experiments.create" {
		t.Fatalf("op field = %v", got)
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("error entry %+v", entries[1])
	}
	ctx := entries[2].ContextMap()
	if ctx["component"] != "ingest" || ctx["key"] != "<missing>" {
		t.Fatalf("with/dangling fields %v", ctx)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "nop"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		l.Info("hello", "mode", mode)
	}
}
