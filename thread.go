package wirez

import (
	"context"
	"reflect"

	"github.com/zoobzio/wirez/promise"
)

// Style selects how a value is threaded through a chain of forms.
type Style int

// Threading styles.
const (
	// First passes the value as the first argument of every form.
	First Style = iota
	// Last passes the value as the last argument of every form.
	Last
	// SomeFirst is First, stopping with nil as soon as the value is nil.
	SomeFirst
	// SomeLast is Last, stopping with nil as soon as the value is nil.
	SomeLast
	// CondFirst is First, skipping forms whose predicate does not hold.
	CondFirst
	// CondLast is Last, skipping forms whose predicate does not hold.
	CondLast
)

func (s Style) String() string {
	switch s {
	case First:
		return "first"
	case Last:
		return "last"
	case SomeFirst:
		return "some-first"
	case SomeLast:
		return "some-last"
	case CondFirst:
		return "cond-first"
	case CondLast:
		return "cond-last"
	default:
		return "unknown"
	}
}

func (s Style) last() bool {
	return s == Last || s == SomeLast || s == CondLast
}

func (s Style) some() bool {
	return s == SomeFirst || s == SomeLast
}

func (s Style) cond() bool {
	return s == CondFirst || s == CondLast
}

// Form is one step of a threading chain.
type Form struct {
	call func(ctx context.Context, value any, last bool) (any, error)
	pred func(value any) bool
}

// F builds a form calling fn with args and the threaded value, placed first
// or last depending on the style. fn may have any signature; a trailing
// error result fails the chain.
func F(fn any, args ...any) Form {
	return Form{
		call: func(_ context.Context, value any, last bool) (any, error) {
			in := make([]any, 0, len(args)+1)
			if last {
				in = append(append(in, args...), value)
			} else {
				in = append(append(in, value), args...)
			}
			return invoke(fn, in)
		},
	}
}

// Fn builds a form from a plain step function. Its argument position does
// not depend on the style.
func Fn(fn func(ctx context.Context, value any) (any, error)) Form {
	return Form{
		call: func(ctx context.Context, value any, _ bool) (any, error) {
			return fn(ctx, value)
		},
	}
}

// When guards form with pred, which sees the value threaded so far. Only the
// cond styles evaluate predicates; the others apply every form.
func When(pred func(value any) bool, form Form) Form {
	form.pred = pred
	return form
}

// PointFunc is a single-argument function produced by Point.
type PointFunc func(ctx context.Context, value any) (any, error)

// Point returns a function threading its argument through forms in style.
func Point(style Style, forms ...Form) PointFunc {
	return func(ctx context.Context, value any) (any, error) {
		acc := value
		for _, form := range forms {
			if style.some() && isNil(acc) {
				return nil, nil
			}
			if style.cond() && form.pred != nil && !form.pred(acc) {
				continue
			}
			next, err := form.call(ctx, acc, style.last())
			if err != nil {
				return nil, err
			}
			acc = next
		}
		if style.some() && isNil(acc) {
			return nil, nil
		}
		return acc, nil
	}
}

// Then attaches pf to p as its fulfillment continuation. Rejections pass
// through untouched.
func (pf PointFunc) Then(p *promise.Promise) *promise.Promise {
	return p.Then(func(ctx context.Context, value any) (any, error) {
		return pf(ctx, value)
	}, nil)
}

// ThreadFirst is Point(First, forms...).
func ThreadFirst(forms ...Form) PointFunc { return Point(First, forms...) }

// ThreadLast is Point(Last, forms...).
func ThreadLast(forms ...Form) PointFunc { return Point(Last, forms...) }

// ThreadSomeFirst is Point(SomeFirst, forms...).
func ThreadSomeFirst(forms ...Form) PointFunc { return Point(SomeFirst, forms...) }

// ThreadSomeLast is Point(SomeLast, forms...).
func ThreadSomeLast(forms ...Form) PointFunc { return Point(SomeLast, forms...) }

// ThreadCondFirst is Point(CondFirst, forms...).
func ThreadCondFirst(forms ...Form) PointFunc { return Point(CondFirst, forms...) }

// ThreadCondLast is Point(CondLast, forms...).
func ThreadCondLast(forms ...Form) PointFunc { return Point(CondLast, forms...) }

// ThenFirst threads the value p fulfills with through forms, first position.
func ThenFirst(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadFirst(forms...).Then(p)
}

// ThenLast threads the value p fulfills with through forms, last position.
func ThenLast(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadLast(forms...).Then(p)
}

// ThenSomeFirst is ThenFirst stopping at the first nil.
func ThenSomeFirst(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadSomeFirst(forms...).Then(p)
}

// ThenSomeLast is ThenLast stopping at the first nil.
func ThenSomeLast(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadSomeLast(forms...).Then(p)
}

// ThenCondFirst is ThenFirst honouring When predicates.
func ThenCondFirst(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadCondFirst(forms...).Then(p)
}

// ThenCondLast is ThenLast honouring When predicates.
func ThenCondLast(p *promise.Promise, forms ...Form) *promise.Promise {
	return ThreadCondLast(forms...).Then(p)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
