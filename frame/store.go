package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"golang.org/x/time/rate"
)

// Observability constants for the Store.
const (
	// Metrics.
	StoreDispatchedTotal    = metricz.Key("store.dispatched.total")
	StoreHandledTotal       = metricz.Key("store.handled.total")
	StoreFailedTotal        = metricz.Key("store.failed.total")
	StoreSubscriptionsTotal = metricz.Key("store.subscriptions.total")
	StoreQueueDepth         = metricz.Key("store.queue.depth")
	StoreThrottledTotal     = metricz.Key("store.throttled.total")
	StoreDurationMs         = metricz.Key("store.duration.ms")

	// Spans.
	StoreHandleSpan    = tracez.Key("store.handle")
	StoreSubscribeSpan = tracez.Key("store.subscribe")

	// Tags.
	StoreTagEvent   = tracez.Tag("store.event")
	StoreTagSuccess = tracez.Tag("store.success")
	StoreTagError   = tracez.Tag("store.error")

	// Hook event keys.
	StoreEventHandled = hookz.Key("store.handled")
	StoreEventFailed  = hookz.Key("store.failed")
)

// StoreEvent describes the outcome of handling one event.
type StoreEvent struct {
	EventID   ID            // Identifier of the handled event
	Event     Event         // The full event vector
	Success   bool          // Whether handling and effect application succeeded
	Error     error         // Failure, if any
	Duration  time.Duration // Time spent in the interceptor chain and effects
	Timestamp time.Time     // When handling finished
}

// Store is an in-process Frame. It owns the db, the handler tables and a FIFO
// event queue. Dispatch never blocks and may be called from any goroutine;
// handlers themselves run one at a time, either from Run, Drain or
// DispatchSync, so a handler never observes another handler's partial work.
//
// Effects produced by a handler are applied after its interceptor chain
// completes: the db effect first, then the remaining keys in sorted order.
// "dispatch" takes one event, "dispatch-n" a list of events; any other key
// must have been registered with RegisterFx.
type Store struct {
	db       DB
	events   map[ID][]Interceptor
	subs     map[ID]SubHandler
	fx       map[Name]FxEffect
	queue    []Event
	wake     chan struct{}
	clock    clockz.Clock
	logger   *slog.Logger
	limiter  *rate.Limiter
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	hooks    *hookz.Hooks[StoreEvent]
	mu       sync.RWMutex
	queueMu  sync.Mutex
	handleMu sync.Mutex
}

var _ Frame = (*Store)(nil)

// NewStore creates a Store seeded with db. A nil db starts empty.
func NewStore(db DB) *Store {
	if db == nil {
		db = DB{}
	}

	metrics := metricz.New()
	metrics.Counter(StoreDispatchedTotal)
	metrics.Counter(StoreHandledTotal)
	metrics.Counter(StoreFailedTotal)
	metrics.Counter(StoreSubscriptionsTotal)
	metrics.Gauge(StoreQueueDepth)
	metrics.Counter(StoreThrottledTotal)

	return &Store{
		db:      db,
		events:  make(map[ID][]Interceptor),
		subs:    make(map[ID]SubHandler),
		fx:      make(map[Name]FxEffect),
		wake:    make(chan struct{}, 1),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[StoreEvent](),
	}
}

// WithClock sets a custom clock for testing.
func (s *Store) WithClock(clock clockz.Clock) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// WithLogger sets the logger used for handler failures and unknown effects.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	return s
}

// WithRateLimit caps how fast Run and Drain take events off the queue.
// A non-positive perSecond removes the limit. Dispatch and DispatchSync
// are never throttled.
func (s *Store) WithRateLimit(perSecond float64, burst int) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perSecond <= 0 {
		s.limiter = nil
		return s
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return s
}

// throttle blocks until the limiter admits the next event.
func (s *Store) throttle(ctx context.Context) error {
	s.mu.RLock()
	limiter := s.limiter
	s.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	if !limiter.Allow() {
		s.metrics.Counter(StoreThrottledTotal).Inc()
		return limiter.Wait(ctx)
	}
	return nil
}

func (s *Store) getClock() clockz.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clock == nil {
		return clockz.RealClock
	}
	return s.clock
}

func (s *Store) getLogger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// RegisterEventDB registers a handler that returns the next db. Registering
// the same id again replaces the previous chain.
func (s *Store) RegisterEventDB(id ID, interceptors []Interceptor, handler DBHandler) {
	s.register(id, interceptors, DBHandlerInterceptor(handler))
}

// RegisterEventFx registers a handler that returns an effects map.
func (s *Store) RegisterEventFx(id ID, interceptors []Interceptor, handler FxHandler) {
	s.register(id, interceptors, FxHandlerInterceptor(handler))
}

func (s *Store) register(id ID, interceptors []Interceptor, handler Interceptor) {
	chain := make([]Interceptor, 0, len(interceptors)+1)
	chain = append(chain, interceptors...)
	chain = append(chain, handler)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = chain
}

// RegisterSubscription registers a query handler.
func (s *Store) RegisterSubscription(id ID, handler SubHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = handler
}

// RegisterFx registers a named effect.
func (s *Store) RegisterFx(name Name, effect FxEffect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fx[name] = effect
}

// Dispatch appends event to the queue. It is processed by Run or Drain.
func (s *Store) Dispatch(event Event) {
	s.queueMu.Lock()
	s.queue = append(s.queue, event)
	depth := len(s.queue)
	s.queueMu.Unlock()

	s.metrics.Counter(StoreDispatchedTotal).Inc()
	s.metrics.Gauge(StoreQueueDepth).Set(float64(depth))

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// QueueLen returns the number of events waiting to be handled.
func (s *Store) QueueLen() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

func (s *Store) next() (Event, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	event := s.queue[0]
	s.queue = s.queue[1:]
	s.metrics.Gauge(StoreQueueDepth).Set(float64(len(s.queue)))
	return event, true
}

// Run handles queued events until ctx is done. Handler failures are logged
// and reported through OnFailed; they do not stop the loop.
func (s *Store) Run(ctx context.Context) error {
	for {
		_ = s.Drain(ctx) //nolint:errcheck // failures are already logged and emitted
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Drain handles queued events, including the ones dispatched while
// draining, until the queue is empty or ctx is done. Every failure is
// returned, joined.
func (s *Store) Drain(ctx context.Context) error {
	var errs []error
	for ctx.Err() == nil && s.QueueLen() > 0 {
		if err := s.throttle(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		event, ok := s.next()
		if !ok {
			break
		}
		if err := s.handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchSync handles event immediately, bypassing the queue. It must not
// be called from inside a handler or interceptor; dispatch from there instead.
func (s *Store) DispatchSync(ctx context.Context, event Event) error {
	return s.handle(ctx, event)
}

func (s *Store) handle(ctx context.Context, event Event) (err error) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	clock := s.getClock()
	start := clock.Now()
	id := event.ID()

	ctx, span := s.tracer.StartSpan(ctx, StoreHandleSpan)
	span.SetTag(StoreTagEvent, id)
	defer func() {
		elapsed := clock.Since(start)
		s.metrics.Gauge(StoreDurationMs).Set(float64(elapsed.Milliseconds()))

		outcome := StoreEvent{
			EventID:   id,
			Event:     event,
			Success:   err == nil,
			Error:     err,
			Duration:  elapsed,
			Timestamp: clock.Now(),
		}
		if err == nil {
			span.SetTag(StoreTagSuccess, "true")
			s.metrics.Counter(StoreHandledTotal).Inc()
			_ = s.hooks.Emit(ctx, StoreEventHandled, outcome) //nolint:errcheck
		} else {
			span.SetTag(StoreTagSuccess, "false")
			span.SetTag(StoreTagError, err.Error())
			s.metrics.Counter(StoreFailedTotal).Inc()
			s.getLogger().Error("event handling failed", "event", id, "error", err)
			_ = s.hooks.Emit(ctx, StoreEventFailed, outcome) //nolint:errcheck
		}
		span.Finish()
	}()

	s.mu.RLock()
	chain, ok := s.events[id]
	db := s.db
	s.mu.RUnlock()

	if !ok {
		return newError(fmt.Errorf("%w for event %q", ErrNoHandler, id), event, []Name{id}, start, clock.Now())
	}

	c, err := Execute(ctx, clock, event, chain, Coeffects{KeyDB: db})
	if err != nil {
		return err
	}
	return s.applyEffects(ctx, event, c.Effects, start)
}

func (s *Store) applyEffects(ctx context.Context, event Event, fx Effects, start time.Time) error {
	id := event.ID()
	clock := s.getClock()

	if raw, present := fx[KeyDB]; present {
		db, ok := fx.DB()
		if !ok {
			return newError(fmt.Errorf("%w: %s is %T", ErrBadEffect, KeyDB, raw), event, []Name{id, KeyDB}, start, clock.Now())
		}
		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
	}

	keys := make([]string, 0, len(fx))
	for key := range fx {
		if key != KeyDB {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := s.applyEffect(ctx, key, fx[key]); err != nil {
			return newError(err, event, []Name{id, key}, start, clock.Now())
		}
	}
	return nil
}

func (s *Store) applyEffect(ctx context.Context, key string, value any) (err error) {
	switch key {
	case KeyDispatch:
		event, ok := asEvent(value)
		if !ok {
			return fmt.Errorf("%w: %s is %T", ErrBadEffect, key, value)
		}
		s.Dispatch(event)
		return nil
	case KeyDispatchN:
		events, ok := asEvents(value)
		if !ok {
			return fmt.Errorf("%w: %s is %T", ErrBadEffect, key, value)
		}
		for _, event := range events {
			s.Dispatch(event)
		}
		return nil
	}

	s.mu.RLock()
	effect, ok := s.fx[key]
	s.mu.RUnlock()
	if !ok {
		s.getLogger().Warn("no effect handler registered", "effect", key)
		return nil
	}
	defer recoverFromPanic(&err)
	return effect(ctx, value)
}

func asEvent(value any) (Event, bool) {
	switch v := value.(type) {
	case Event:
		return v, len(v) > 0
	case []any:
		return Event(v), len(v) > 0
	}
	return nil, false
}

func asEvents(value any) ([]Event, bool) {
	switch v := value.(type) {
	case []Event:
		return v, true
	case []any:
		events := make([]Event, 0, len(v))
		for _, item := range v {
			event, ok := asEvent(item)
			if !ok {
				return nil, false
			}
			events = append(events, event)
		}
		return events, true
	}
	return nil, false
}

// Subscribe computes the current value of a query.
func (s *Store) Subscribe(ctx context.Context, query Query) (result any, err error) {
	clock := s.getClock()
	start := clock.Now()
	id := query.ID()
	s.metrics.Counter(StoreSubscriptionsTotal).Inc()

	ctx, span := s.tracer.StartSpan(ctx, StoreSubscribeSpan)
	span.SetTag(StoreTagEvent, id)
	defer span.Finish()

	s.mu.RLock()
	handler, ok := s.subs[id]
	db := s.db
	s.mu.RUnlock()

	if !ok {
		return nil, newError(fmt.Errorf("%w for query %q", ErrNoHandler, id), query, []Name{id}, start, clock.Now())
	}

	result, err = callSub(ctx, handler, db, query)
	if err != nil {
		span.SetTag(StoreTagError, err.Error())
		return nil, newError(err, query, []Name{id}, start, clock.Now())
	}
	return result, nil
}

func callSub(ctx context.Context, handler SubHandler, db DB, query Query) (result any, err error) {
	defer recoverFromPanic(&err)
	return handler(ctx, db, query)
}

// DB returns the current db.
func (s *Store) DB() DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Reset replaces the db.
func (s *Store) Reset(db DB) {
	if db == nil {
		db = DB{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
}

// Metrics returns the metrics registry for this store.
func (s *Store) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the tracer for this store.
func (s *Store) Tracer() *tracez.Tracer {
	return s.tracer
}

// Close gracefully shuts down observability components.
func (s *Store) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	s.hooks.Close()
	return nil
}

// OnHandled registers a handler called after an event is handled successfully.
// The handler runs asynchronously.
func (s *Store) OnHandled(handler func(context.Context, StoreEvent) error) error {
	_, err := s.hooks.Hook(StoreEventHandled, handler)
	return err
}

// OnFailed registers a handler called after an event fails.
// The handler runs asynchronously.
func (s *Store) OnFailed(handler func(context.Context, StoreEvent) error) error {
	_, err := s.hooks.Hook(StoreEventFailed, handler)
	return err
}
