package attribute

import (
	"fmt"

	"scodata/pkg/domain"
)

// Validate checks attrs against set and returns them as a map. It fails with
// domain.ErrInvalidAttribute for unknown or repeated names and with
// domain.ErrInvalidAttributeValue when a constraint rejects a value.
func Validate(attrs []Attribute, set Set) (map[string]domain.Value, error) {
	out := make(map[string]domain.Value, len(attrs))
	for _, a := range attrs {
		def, ok := set.Lookup(a.Name)
		if !ok {
			return nil, invalid(domain.ErrInvalidAttribute, a.Name, "not a recognised attribute")
		}
		if _, dup := out[a.Name]; dup {
			return nil, invalid(domain.ErrInvalidAttribute, a.Name, "given more than once")
		}
		if !a.Value.Valid() {
			return nil, invalid(domain.ErrInvalidAttributeValue, a.Name, "value must be a scalar or a list of scalars")
		}
		if !a.Value.Finite() {
			return nil, invalid(domain.ErrInvalidAttributeValue, a.Name, "numbers must be finite")
		}
		if def.Constraint != nil {
			if err := def.Constraint.Check(a.Value); err != nil {
				e := invalid(domain.ErrInvalidAttributeValue, a.Name, "")
				e.Err = err
				return nil, e
			}
		}
		out[a.Name] = a.Value
	}
	return out, nil
}

// ValidateMap is Validate over a map.
func ValidateMap(values map[string]domain.Value, set Set) (map[string]domain.Value, error) {
	return Validate(FromMap(values), set)
}

// WithDefaults returns a copy of values where every definition with a default
// that is missing from values is filled in.
func WithDefaults(values map[string]domain.Value, set Set) map[string]domain.Value {
	out := make(map[string]domain.Value, len(values)+set.Len())
	for k, v := range values {
		out[k] = v
	}
	for _, d := range set.Definitions() {
		if d.Default == nil {
			continue
		}
		if _, ok := out[d.Name]; !ok {
			out[d.Name] = *d.Default
		}
	}
	return out
}

func invalid(kind error, name, detail string) *domain.Error {
	e := domain.NewError(kind, "validate", domain.Ref{}, fmt.Sprintf("%q", name))
	if detail != "" {
		e.Detail += " " + detail
	}
	return e
}
