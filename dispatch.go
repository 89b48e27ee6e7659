package wirez

import (
	"context"

	"github.com/zoobzio/wirez/frame"
	"github.com/zoobzio/wirez/promise"
)

// Result is the outcome of a promise, delivered as the first argument of the
// event ThenDispatch sends.
type Result struct {
	Value any
	Err   error
}

// OK reports whether the promise was fulfilled.
func (r Result) OK() bool {
	return r.Err == nil
}

// ThenDispatch dispatches an event once p settles. The target is either an
// event vector ([id, args...] as a frame.Event or []any) or the ID followed
// by extra arguments. The dispatched event is [id, Result, args...]. When
// the first target is a vector, any further targets are ignored: the
// vector alone supplies the ID and the arguments.
//
// Without a usable ID (no target, a nil ID or an empty one) nothing is
// attached and p is returned as is. Otherwise the derived promise is
// returned; it settles once the event has been dispatched.
func ThenDispatch(d frame.Dispatcher, p *promise.Promise, target ...any) *promise.Promise {
	id, args, ok := dispatchTarget(target)
	if !ok || d == nil {
		return p
	}

	send := func(result Result) {
		event := make(frame.Event, 0, len(args)+2)
		event = append(event, id, result)
		d.Dispatch(append(event, args...))
	}

	return p.Then(
		func(_ context.Context, v any) (any, error) {
			send(Result{Value: v})
			return v, nil
		},
		func(_ context.Context, err error) (any, error) {
			send(Result{Err: err})
			return nil, nil
		},
	)
}

func dispatchTarget(target []any) (frame.ID, []any, bool) {
	if len(target) == 0 {
		return "", nil, false
	}

	vector := target
	switch t := target[0].(type) {
	case frame.Event:
		vector = t
	case []any:
		vector = t
	}
	if len(vector) == 0 {
		return "", nil, false
	}

	id, ok := vector[0].(string)
	if !ok || id == "" {
		return "", nil, false
	}
	return id, vector[1:], true
}
