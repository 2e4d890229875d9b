package attribute

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"scodata/pkg/domain"
)

// Expr compiles a CEL predicate over the variable `value` into a Constraint,
// e.g. `value >= 0.0 && value <= 1.0` or `size(value) == 3`. The expression
// must evaluate to a bool.
func Expr(expression string) (Constraint, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	env, err := celgo.NewEnv(
		celgo.Variable("value", celgo.DynType),
		celgo.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return ConstraintFunc(func(v domain.Value) error {
		out, _, err := prg.Eval(map[string]any{"value": v.Interface()})
		if err != nil {
			return fmt.Errorf("evaluate %q: %w", expression, err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return fmt.Errorf("expression %q did not yield a bool", expression)
		}
		if !ok {
			return fmt.Errorf("%#v does not satisfy %q", v, expression)
		}
		return nil
	}), nil
}
