package wirez

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ApplyConstructor calls ctor with an argument list built at runtime. When
// the last argument is a []any it is spread into the call, so
//
//	ApplyConstructor(NewPoint, 1, []any{2, 3})
//
// calls NewPoint(1, 2, 3). Nil arguments become the zero value of the
// parameter, and arguments convertible to the parameter type are converted.
// Variadic constructors are supported.
//
// The first result is returned as the instance. When the last result is an
// error it is returned as the error. A constructor with several other
// results returns them as a []any.
func ApplyConstructor(ctor any, args ...any) (any, error) {
	if n := len(args); n > 0 {
		if spread, ok := args[n-1].([]any); ok {
			args = append(args[:n-1:n-1], spread...)
		}
	}
	return invoke(ctor, args)
}

func invoke(fn any, args []any) (any, error) {
	if !callable(fn) {
		return nil, fmt.Errorf("%T: %w", fn, ErrNotCallable)
	}
	v := reflect.ValueOf(fn)
	in, err := callArgs(v.Type(), args)
	if err != nil {
		return nil, err
	}
	return results(v.Type(), v.Call(in))
}

func callArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	switch {
	case t.IsVariadic() && len(args) < n-1:
		return nil, fmt.Errorf("want at least %d arguments, got %d: %w", n-1, len(args), ErrArgument)
	case !t.IsVariadic() && len(args) != n:
		return nil, fmt.Errorf("want %d arguments, got %d: %w", n, len(args), ErrArgument)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := paramType(t, i)
		val, err := argValue(arg, want)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = val
	}
	return in, nil
}

func paramType(t reflect.Type, i int) reflect.Type {
	last := t.NumIn() - 1
	if t.IsVariadic() && i >= last {
		return t.In(last).Elem()
	}
	return t.In(i)
}

func argValue(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}

	v := reflect.ValueOf(arg)
	switch {
	case v.Type().AssignableTo(want):
		return v, nil
	case want.Kind() == reflect.String && v.Kind() != reflect.String:
		// integer to string conversion yields a rune, never what a caller means
	case v.Type().ConvertibleTo(want):
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not usable as %s: %w", arg, want, ErrArgument)
}

func results(t reflect.Type, out []reflect.Value) (any, error) {
	var err error
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	}
	vals := make([]any, len(out))
	for i, o := range out {
		vals[i] = o.Interface()
	}
	return vals, err
}
