package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zoobzio/wirez"
)

// ErrUnknownOp is returned for a transform op that has no builder.
var ErrUnknownOp = errors.New("unknown op")

type builder func(args []any) (wirez.Transform, error)

var builders = map[string]builder{
	"add":     arithmetic("add", func(acc, n float64) float64 { return acc + n }),
	"mul":     arithmetic("mul", func(acc, n float64) float64 { return acc * n }),
	"const":   constant,
	"default": fallback,
	"upper":   text(strings.ToUpper),
	"lower":   text(strings.ToLower),
}

// Ops lists the supported transform ops.
func Ops() []string {
	ops := make([]string, 0, len(builders))
	for op := range builders {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Build returns the pipeline stage the transform describes.
func (t Transform) Build() (wirez.Transform, error) {
	build, ok := builders[t.Op]
	if !ok {
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownOp, t.Op, strings.Join(Ops(), ", "))
	}
	return build(t.Args)
}

// arithmetic folds the static args, then any numeric trailing arguments of
// the event or query, into the value. A nil value starts from the
// operation's identity, so "add" on a missing counter counts from zero.
func arithmetic(name string, op func(acc, n float64) float64) builder {
	return func(args []any) (wirez.Transform, error) {
		operands := make([]float64, len(args))
		for i, arg := range args {
			n, ok := number(arg)
			if !ok {
				return nil, fmt.Errorf("%s: argument %d is %T, not a number", name, i, arg)
			}
			operands[i] = n
		}
		identity := 0.0
		if name == "mul" {
			identity = 1
		}

		return func(_ context.Context, value any, rest ...any) (any, error) {
			acc := identity
			if value != nil {
				n, ok := number(value)
				if !ok {
					return nil, fmt.Errorf("%s: value is %T, not a number", name, value)
				}
				acc = n
			}
			for _, n := range operands {
				acc = op(acc, n)
			}
			for _, r := range rest {
				if n, ok := number(r); ok {
					acc = op(acc, n)
				}
			}
			return acc, nil
		}, nil
	}
}

func constant(args []any) (wirez.Transform, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("const: want 1 argument, got %d", len(args))
	}
	v := args[0]
	return func(context.Context, any, ...any) (any, error) {
		return v, nil
	}, nil
}

func fallback(args []any) (wirez.Transform, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("default: want 1 argument, got %d", len(args))
	}
	v := args[0]
	return func(_ context.Context, value any, _ ...any) (any, error) {
		if value == nil {
			return v, nil
		}
		return value, nil
	}, nil
}

func text(fn func(string) string) builder {
	return func(args []any) (wirez.Transform, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("takes no arguments, got %d", len(args))
		}
		return func(_ context.Context, value any, _ ...any) (any, error) {
			switch s := value.(type) {
			case nil:
				return nil, nil
			case string:
				return fn(s), nil
			}
			return nil, fmt.Errorf("value is %T, not a string", value)
		}, nil
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
