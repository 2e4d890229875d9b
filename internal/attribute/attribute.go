// Package attribute validates caller-supplied (name, value) pairs against a
// set of recognised attribute definitions. There is no built-in type system:
// each definition may carry a pluggable constraint, and definitions without
// one accept any scalar or list value.
package attribute

import (
	"fmt"
	"sort"

	"scodata/pkg/domain"
)

// Attribute is a single named value supplied by a caller.
type Attribute struct {
	Name  string       `json:"name" yaml:"name"`
	Value domain.Value `json:"value" yaml:"-"`
}

// New is shorthand for building an Attribute from plain Go data. It panics on
// unsupported value types and is meant for literals in callers and tests.
func New(name string, value any) Attribute {
	v, err := domain.ValueOf(value)
	if err != nil {
		panic(fmt.Errorf("attribute %s: %w", name, err))
	}
	return Attribute{Name: name, Value: v}
}

// Definition describes one recognised attribute.
type Definition struct {
	Name        string
	Description string
	Default     *domain.Value
	Constraint  Constraint
}

// Set is an immutable collection of definitions keyed by name.
type Set struct {
	defs  map[string]Definition
	order []string
}

// NewSet builds a Set. Later definitions replace earlier ones with the same name.
func NewSet(defs ...Definition) Set {
	s := Set{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, seen := s.defs[d.Name]; !seen {
			s.order = append(s.order, d.Name)
		}
		s.defs[d.Name] = d
	}
	return s
}

// Lookup returns the definition for name.
func (s Set) Lookup(name string) (Definition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Len returns the number of definitions.
func (s Set) Len() int { return len(s.defs) }

// Empty reports whether the set has no definitions.
func (s Set) Empty() bool { return len(s.defs) == 0 }

// Definitions returns the definitions in registration order.
func (s Set) Definitions() []Definition {
	out := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

// Names returns the sorted definition names.
func (s Set) Names() []string {
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}

// FromMap converts a value map into attributes sorted by name.
func FromMap(values map[string]domain.Value) []Attribute {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]Attribute, 0, len(names))
	for _, n := range names {
		out = append(out, Attribute{Name: n, Value: values[n]})
	}
	return out
}
