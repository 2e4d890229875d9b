package attribute

import (
	"errors"
	"math"
	"testing"

	"scodata/pkg/domain"
)

func testSet(t *testing.T) Set {
	t.Helper()
	unit, err := Expr(`value >= 0 && value <= 1`)
	if err != nil {
		t.Fatalf("compile expr: %v", err)
	}
	def := domain.Int(8)
	return NewSet(
		Definition{Name: "stimulus_pixels", Default: &def, Constraint: IntType()},
		Definition{Name: "stimulus_edge_value", Constraint: unit},
		Definition{Name: "tags"},
		Definition{Name: "mode", Constraint: EnumType("fast", "slow")},
	)
}

func TestValidateRejectsUnknownName(t *testing.T) {
	_, err := Validate([]Attribute{New("unknown", "x")}, testSet(t))
	if !errors.Is(err, domain.ErrInvalidAttribute) {
		t.Fatalf("expected ErrInvalidAttribute, got %v", err)
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	_, err := Validate([]Attribute{New("tags", "a"), New("tags", "b")}, testSet(t))
	if !errors.Is(err, domain.ErrInvalidAttribute) {
		t.Fatalf("expected ErrInvalidAttribute, got %v", err)
	}
}

func TestValidateAcceptsAnyShapeWithoutConstraint(t *testing.T) {
	set := testSet(t)
	for _, v := range []any{"scalar", 3.5, []any{"a", 1, 2.5}, []string{}} {
		got, err := Validate([]Attribute{New("tags", v)}, set)
		if err != nil {
			t.Fatalf("value %v rejected: %v", v, err)
		}
		if _, ok := got["tags"]; !ok {
			t.Fatalf("missing validated value")
		}
	}
}

func TestValidateRejectsNonFiniteNumbers(t *testing.T) {
	set := testSet(t)
	for _, v := range []domain.Value{
		domain.Number(math.NaN()),
		domain.Number(math.Inf(1)),
		domain.List(domain.String("a"), domain.Number(math.Inf(-1))),
	} {
		_, err := Validate([]Attribute{{Name: "tags", Value: v}}, set)
		if !errors.Is(err, domain.ErrInvalidAttributeValue) {
			t.Fatalf("value %#v: expected ErrInvalidAttributeValue, got %v", v, err)
		}
	}
}

func TestValidateConstraints(t *testing.T) {
	set := testSet(t)
	cases := []struct {
		name string
		attr Attribute
		ok   bool
	}{
		{"int ok", New("stimulus_pixels", 16), true},
		{"int rejects fraction", New("stimulus_pixels", 1.5), false},
		{"int rejects string", New("stimulus_pixels", "16"), false},
		{"expr ok", New("stimulus_edge_value", 0.75), true},
		{"expr out of range", New("stimulus_edge_value", 2), false},
		{"expr wrong type", New("stimulus_edge_value", "high"), false},
		{"enum ok", New("mode", "fast"), true},
		{"enum rejects", New("mode", "medium"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate([]Attribute{tc.attr}, set)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidAttributeValue) {
				t.Fatalf("expected ErrInvalidAttributeValue, got %v", err)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	set := testSet(t)
	got := WithDefaults(map[string]domain.Value{"mode": domain.String("slow")}, set)
	if n, _ := got["stimulus_pixels"].Num(); n != 8 {
		t.Fatalf("expected default 8, got %v", got["stimulus_pixels"])
	}
	got = WithDefaults(map[string]domain.Value{"stimulus_pixels": domain.Int(4)}, set)
	if n, _ := got["stimulus_pixels"].Num(); n != 4 {
		t.Fatalf("explicit value overwritten: %v", got["stimulus_pixels"])
	}
}

func TestParseType(t *testing.T) {
	if c, err := ParseType("any", nil); err != nil || c != nil {
		t.Fatalf("any should yield nil constraint")
	}
	if _, err := ParseType("enum", nil); err == nil {
		t.Fatalf("enum without values should fail")
	}
	if _, err := ParseType("bogus", nil); err == nil {
		t.Fatalf("unknown type should fail")
	}
	c, err := ParseType("list", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if c.Check(domain.String("x")) == nil {
		t.Fatalf("list constraint accepted a scalar")
	}
}

func TestExprRequiresBool(t *testing.T) {
	c, err := Expr(`value + 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if c.Check(domain.Int(1)) == nil {
		t.Fatalf("non-bool expression should fail the check")
	}
	if _, err := Expr(`value >=`); err == nil {
		t.Fatalf("expected compile error")
	}
}
