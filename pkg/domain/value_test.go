package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValueJSONVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind ValueKind
	}{
		{"string", `"abc"`, KindString},
		{"number", `0.75`, KindNumber},
		{"integer", `8`, KindNumber},
		{"list", `[1, "a", 2.5]`, KindList},
		{"empty list", `[]`, KindList},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tc.in), &v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if v.Kind() != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, v.Kind())
			}
			out, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var back Value
			if err := json.Unmarshal(out, &back); err != nil {
				t.Fatalf("re-unmarshal: %v", err)
			}
			if !back.Equal(v) {
				t.Fatalf("value changed: %s vs %s", out, tc.in)
			}
		})
	}
}

func TestValueRejectsUnsupportedShapes(t *testing.T) {
	for _, in := range []string{`true`, `{"a":1}`, `[[1,2]]`, `[true]`} {
		var v Value
		if err := json.Unmarshal([]byte(in), &v); err == nil {
			t.Fatalf("expected %s to be rejected", in)
		}
	}
}

func TestValueHelpers(t *testing.T) {
	if !Int(8).IsInteger() || Number(0.5).IsInteger() || String("8").IsInteger() {
		t.Fatalf("unexpected IsInteger results")
	}
	if List(String("a"), List(String("b"))).Valid() {
		t.Fatalf("nested list should be invalid")
	}
	items, ok := List(Int(1), Int(2)).Items()
	if !ok || len(items) != 2 {
		t.Fatalf("unexpected items %v %v", items, ok)
	}
	v, err := ValueOf([]any{"a", 1})
	if err != nil || v.Kind() != KindList {
		t.Fatalf("ValueOf list: %v %v", v, err)
	}
	if _, err := ValueOf(true); err == nil {
		t.Fatalf("expected bool to be rejected")
	}
	p := Properties{PropertyName: String("run"), "b": Int(1)}
	if p.Name() != "run" || strings.Join(p.Keys(), ",") != "b,name" {
		t.Fatalf("unexpected properties helpers")
	}
}

func TestValueFinite(t *testing.T) {
	cases := map[string]struct {
		v    Value
		want bool
	}{
		"string":        {String("x"), true},
		"number":        {Number(1.5), true},
		"nan":           {Number(math.NaN()), false},
		"inf":           {Number(math.Inf(1)), false},
		"list":          {List(Int(1), String("a")), true},
		"list with inf": {List(Int(1), Number(math.Inf(-1))), false},
		"zero":          {Value{}, false},
	}
	for name, tc := range cases {
		if got := tc.v.Finite(); got != tc.want {
			t.Fatalf("%s: Finite() = %v, want %v", name, got, tc.want)
		}
	}
}

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageFailure("create", Ref{Type: TypeImage, ID: "i1"}, cause)
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause to match: %v", err)
	}
	if !strings.Contains(err.Error(), "image i1") {
		t.Fatalf("expected context in message: %s", err)
	}
	unknown := UnknownResource("get", Ref{Type: TypeExperiment, ID: "e1"})
	if again := StorageFailure("get", Ref{}, unknown); !errors.Is(again, ErrUnknownResource) || errors.Is(again, ErrStorageFailure) {
		t.Fatalf("typed errors must pass through unchanged: %v", again)
	}
	if StorageFailure("noop", Ref{}, nil) != nil {
		t.Fatalf("nil cause must yield nil")
	}
	tr := InvalidTransition("start", "r1", RunSuccess, RunRunning)
	if !errors.Is(tr, ErrInvalidStateTransition) {
		t.Fatalf("expected transition kind")
	}
}

func TestRunStateTerminal(t *testing.T) {
	for _, s := range []RunState{RunSuccess, RunFailed, RunCanceled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []RunState{RunCreated, RunRunning} {
		if s.Terminal() || !s.Valid() {
			t.Fatalf("%s should be valid and non-terminal", s)
		}
	}
	if RunState("IDLE").Valid() {
		t.Fatalf("unknown state should be invalid")
	}
}
