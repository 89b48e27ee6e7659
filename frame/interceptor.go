package frame

import (
	"context"

	"github.com/zoobzio/clockz"
)

// Interceptor wraps a handler with work done before and after it. Before
// phases run in chain order; After phases run in reverse once the queue is
// exhausted. Either phase may be nil.
type Interceptor struct {
	ID     Name
	Before func(ctx context.Context, c *Context) error
	After  func(ctx context.Context, c *Context) error
}

// Context is threaded through an interceptor chain. Coeffects hold the
// inputs (event, db snapshot), Effects collect the outputs.
type Context struct {
	Coeffects Coeffects
	Effects   Effects
	queue     []Interceptor
	stack     []Interceptor
}

// Enqueue appends interceptors to the pending queue.
func (c *Context) Enqueue(interceptors ...Interceptor) {
	c.queue = append(c.queue, interceptors...)
}

// Terminate drops every interceptor still waiting in the queue. After phases
// of interceptors already entered still run.
func (c *Context) Terminate() {
	c.queue = nil
}

// Queue returns the interceptors not yet entered.
func (c *Context) Queue() []Interceptor {
	return c.queue
}

// Stack returns the interceptors entered so far, innermost last.
func (c *Context) Stack() []Interceptor {
	return c.stack
}

// Execute runs event through chain. The returned context holds the final
// effects. The first failing phase stops execution and is reported as an
// *Error whose Path is the event ID followed by the interceptor ID. Error
// timestamps come from clock; a nil clock is clockz.RealClock.
func Execute(ctx context.Context, clock clockz.Clock, event Event, chain []Interceptor, cofx Coeffects) (*Context, error) {
	if clock == nil {
		clock = clockz.RealClock
	}
	start := clock.Now()
	c := &Context{
		Coeffects: make(Coeffects, len(cofx)+2),
		Effects:   Effects{},
		queue:     append([]Interceptor(nil), chain...),
	}
	for k, v := range cofx {
		c.Coeffects[k] = v
	}
	c.Coeffects[KeyEvent] = event
	if _, ok := c.Coeffects[KeyOriginalEvent]; !ok {
		c.Coeffects[KeyOriginalEvent] = event
	}

	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.stack = append(c.stack, next)
		if err := callPhase(ctx, next.Before, c); err != nil {
			return c, newError(err, event, []Name{event.ID(), next.ID}, start, clock.Now())
		}
	}

	for len(c.stack) > 0 {
		last := len(c.stack) - 1
		next := c.stack[last]
		c.stack = c.stack[:last]
		if err := callPhase(ctx, next.After, c); err != nil {
			return c, newError(err, event, []Name{event.ID(), next.ID}, start, clock.Now())
		}
	}
	return c, nil
}

func callPhase(ctx context.Context, phase func(context.Context, *Context) error, c *Context) (err error) {
	if phase == nil {
		return nil
	}
	defer recoverFromPanic(&err)
	return phase(ctx, c)
}

// DBHandlerInterceptor adapts a DBHandler into the innermost interceptor of
// a chain. The handler's result becomes the db effect.
func DBHandlerInterceptor(handler DBHandler) Interceptor {
	return Interceptor{
		ID: "db-handler",
		Before: func(ctx context.Context, c *Context) error {
			db, err := handler(ctx, c.Coeffects.DB(), c.Coeffects.Event())
			if err != nil {
				return err
			}
			c.Effects[KeyDB] = db
			return nil
		},
	}
}

// FxHandlerInterceptor adapts an FxHandler into the innermost interceptor of
// a chain. The handler's result replaces the effects map.
func FxHandlerInterceptor(handler FxHandler) Interceptor {
	return Interceptor{
		ID: "fx-handler",
		Before: func(ctx context.Context, c *Context) error {
			fx, err := handler(ctx, c.Coeffects, c.Coeffects.Event())
			if err != nil {
				return err
			}
			if fx == nil {
				fx = Effects{}
			}
			c.Effects = fx
			return nil
		},
	}
}
