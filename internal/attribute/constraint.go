package attribute

import (
	"fmt"
	"strings"

	"scodata/pkg/domain"
)

// Constraint checks a value for a single definition.
type Constraint interface {
	Check(v domain.Value) error
}

// ConstraintFunc adapts a function to Constraint.
type ConstraintFunc func(v domain.Value) error

// Check implements Constraint.
func (f ConstraintFunc) Check(v domain.Value) error { return f(v) }

// IntType accepts integral numbers.
func IntType() Constraint {
	return ConstraintFunc(func(v domain.Value) error {
		if !v.IsInteger() {
			return fmt.Errorf("expected integer, got %#v", v)
		}
		return nil
	})
}

// FloatType accepts any number.
func FloatType() Constraint {
	return ConstraintFunc(func(v domain.Value) error {
		if _, ok := v.Num(); !ok {
			return fmt.Errorf("expected number, got %#v", v)
		}
		return nil
	})
}

// StringType accepts any string.
func StringType() Constraint {
	return ConstraintFunc(func(v domain.Value) error {
		if _, ok := v.Str(); !ok {
			return fmt.Errorf("expected string, got %#v", v)
		}
		return nil
	})
}

// EnumType accepts one of the listed strings.
func EnumType(values ...string) Constraint {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return ConstraintFunc(func(v domain.Value) error {
		s, ok := v.Str()
		if !ok {
			return fmt.Errorf("expected one of %s, got %#v", strings.Join(values, ","), v)
		}
		if _, ok := allowed[s]; !ok {
			return fmt.Errorf("expected one of %s, got %q", strings.Join(values, ","), s)
		}
		return nil
	})
}

// ListType accepts lists whose items all satisfy item (nil accepts any item).
func ListType(item Constraint) Constraint {
	return ConstraintFunc(func(v domain.Value) error {
		items, ok := v.Items()
		if !ok {
			return fmt.Errorf("expected list, got %#v", v)
		}
		if item == nil {
			return nil
		}
		for i, it := range items {
			if err := item.Check(it); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	})
}

// All combines constraints; every one must pass.
func All(cs ...Constraint) Constraint {
	return ConstraintFunc(func(v domain.Value) error {
		for _, c := range cs {
			if c == nil {
				continue
			}
			if err := c.Check(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ParseType maps a configured type name onto a constraint. The empty name and
// "any" yield no constraint.
func ParseType(name string, values []string) (Constraint, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return nil, nil
	case "int", "integer":
		return IntType(), nil
	case "float", "number":
		return FloatType(), nil
	case "string":
		return StringType(), nil
	case "enum":
		if len(values) == 0 {
			return nil, fmt.Errorf("enum type requires values")
		}
		return EnumType(values...), nil
	case "list":
		return ListType(nil), nil
	default:
		return nil, fmt.Errorf("unknown attribute type %q", name)
	}
}
