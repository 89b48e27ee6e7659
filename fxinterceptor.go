package wirez

import (
	"context"

	"github.com/zoobzio/wirez/frame"
)

// FxInterceptorName is the interceptor ID used by FxPipeline.
const FxInterceptorName Name = "wirez-fx"

// NewFxInterceptor returns an interceptor whose After phase replaces the
// effects of the event being handled with the result of the fx pipeline
// registered in r under that event's ID. With no fx transforms registered
// the effects pass through untouched.
//
// After phases run in reverse chain order, so place the interceptor first to
// have it see the handler's effects last.
func NewFxInterceptor(name Name, r *Registry) frame.Interceptor {
	if r == nil {
		r = Default
	}
	return frame.Interceptor{
		ID: name,
		After: func(ctx context.Context, c *frame.Context) error {
			id := c.Coeffects.Event().ID()
			fx, err := r.ComposeFx(id)(ctx, c.Effects, c.Coeffects)
			if err != nil {
				return err
			}
			if fx == nil {
				fx = frame.Effects{}
			}
			c.Effects = fx
			return nil
		},
	}
}

// FxPipeline runs the fx pipelines registered in Default.
var FxPipeline = NewFxInterceptor(FxInterceptorName, Default)
