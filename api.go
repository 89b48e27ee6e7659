// Package wirez composes event and query handler logic for an event-driven
// state framework out of small transform functions contributed by
// independent modules, at any time.
//
// # Overview
//
// A Registry holds ordered pipelines of transforms keyed by kind (setter,
// getter or fx) and by handler ID. Handlers registered through wirez look
// their pipeline up every time they run, so a module loaded after a handler
// was registered can still extend it:
//
//	store := frame.NewStore(frame.DB{"counter": 0})
//	wirez.RegisterSetter(store, "inc", frame.Path{"counter"})
//
//	// later, from another package
//	wirez.RegisterSetterTransform("inc", "clamp", func(_ context.Context, v any, _ ...any) (any, error) {
//	    return min(v.(int), 10), nil
//	})
//
//	store.Dispatch(frame.NewEvent("inc", 42))
//
// # Pipelines
//
// Setter and getter transforms share the Transform shape: the accumulated
// value first, then the same trailing arguments for every stage. Fx
// transforms receive the effects map and the coeffects of the event being
// handled and are run by the effects interceptor (see NewFxInterceptor).
//
// Registering a nil function under an existing key removes that stage.
// Re-registering a key keeps its position; removing and re-adding moves it
// to the end.
//
// # Promises
//
// ThenDispatch turns the outcome of a promise into an event carrying a
// Result, and the threading helpers (ThreadFirst, ThenFirst, ...) build
// single-argument point functions that plug into promise continuations.
//
// # Observability
//
// Registry exposes metricz counters, tracez spans for every pipeline fold and
// hookz events for registrations and removals.
package wirez

import (
	"context"
	"errors"

	"github.com/zoobzio/wirez/frame"
)

// ID identifies the event or query a pipeline belongs to.
type ID = frame.ID

// Name identifies a transform inside a pipeline.
//
// Using this type encourages storing names as constants:
//
//	const ClampName wirez.Name = "clamp"
type Name = string

// Kind selects which calling convention a pipeline follows.
type Kind string

// Pipeline kinds.
const (
	KindSetter Kind = "setter"
	KindGetter Kind = "getter"
	KindFx     Kind = "fx"
)

// Kinds lists every pipeline kind in reporting order.
var Kinds = []Kind{KindSetter, KindGetter, KindFx}

// Transform is a setter or getter pipeline stage. It receives the value
// accumulated so far followed by the trailing arguments of the event or
// query, which are identical for every stage.
type Transform func(ctx context.Context, value any, args ...any) (any, error)

// FxTransform is an effects pipeline stage. It receives the accumulated
// effects and the coeffects of the event being handled.
type FxTransform func(ctx context.Context, fx frame.Effects, cofx frame.Coeffects) (frame.Effects, error)

// Path identifies one registered transform.
type Path struct {
	Kind Kind
	ID   ID
	Key  Name
}

// Errors.
var (
	ErrTransformShape = errors.New("transform has an unsupported signature")
	ErrNotCallable    = errors.New("value is not callable")
	ErrArgument       = errors.New("argument cannot be used")
)
