package wirez

import (
	"context"

	"github.com/zoobzio/wirez/frame"
)

// Option configures RegisterSetter, RegisterGetter and RegisterEventFx.
type Option func(*options)

type options struct {
	transform    Composed
	registry     *Registry
	interceptors []frame.Interceptor
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = Default
	}
	return o
}

// pipeline returns the explicit transform when one was given, otherwise the
// late-bound (kind, id) pipeline of the configured registry.
func (o *options) pipeline(kind Kind, id ID) Composed {
	if o.transform != nil {
		return o.transform
	}
	return o.registry.Compose(kind, id)
}

// WithTransform uses fn instead of the registry pipeline. The registry is
// not consulted at all, so transforms registered under the handler's ID are
// ignored.
func WithTransform(fn Transform) Option {
	return func(o *options) {
		if fn != nil {
			o.transform = Composed(fn)
		}
	}
}

// WithRegistry looks pipelines up in r instead of Default.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithInterceptors passes interceptors through to the framework unchanged.
func WithInterceptors(interceptors ...frame.Interceptor) Option {
	return func(o *options) {
		o.interceptors = append(o.interceptors, interceptors...)
	}
}

// RegisterSetter registers a db event handler for id that writes at path.
// For an event [id, value, rest...] the handler computes
// transform(value, rest...) and stores the result at path, creating
// intermediate maps as needed. A missing value is nil.
//
// Without WithTransform the transform is the setter pipeline registered
// under id, resolved each time the event is handled.
func RegisterSetter(f frame.Frame, id ID, path frame.Path, opts ...Option) {
	o := buildOptions(opts)
	transform := o.pipeline(KindSetter, id)

	f.RegisterEventDB(id, o.interceptors, func(ctx context.Context, db frame.DB, event frame.Event) (frame.DB, error) {
		var value any
		var rest []any
		if args := event.Args(); len(args) > 0 {
			value, rest = args[0], args[1:]
		}

		output, err := transform(ctx, value, rest...)
		if err != nil {
			return nil, err
		}
		return frame.AssocIn(db, path, output), nil
	})
}

// RegisterGetter registers a subscription for id that reads path. For a
// query [id, rest...] it returns transform(GetIn(db, path), rest...). The db
// is never written.
//
// Without WithTransform the transform is the getter pipeline registered
// under id, resolved on every query.
func RegisterGetter(f frame.Frame, id ID, path frame.Path, opts ...Option) {
	o := buildOptions(opts)
	transform := o.pipeline(KindGetter, id)

	f.RegisterSubscription(id, func(ctx context.Context, db frame.DB, query frame.Query) (any, error) {
		return transform(ctx, frame.GetIn(db, path), query.Args()...)
	})
}

// RegisterEventFx registers an effects handler for id with the effects
// pipeline of the configured registry placed outermost in its chain, so the
// pipeline sees the effects the handler and every other interceptor
// produced.
func RegisterEventFx(f frame.Frame, id ID, handler frame.FxHandler, opts ...Option) {
	o := buildOptions(opts)
	chain := make([]frame.Interceptor, 0, len(o.interceptors)+1)
	chain = append(chain, NewFxInterceptor(FxInterceptorName, o.registry))
	chain = append(chain, o.interceptors...)
	f.RegisterEventFx(id, chain, handler)
}
