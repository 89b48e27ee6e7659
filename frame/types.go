package frame

import "context"

// ID identifies an event or a query. It is shared between the framework and
// everything that registers against it.
type ID = string

// Name is used for interceptor and effect identifiers.
type Name = string

// Coeffect and effect keys understood by the Store.
const (
	KeyDB            = "db"
	KeyEvent         = "event"
	KeyOriginalEvent = "original-event"
	KeyDispatch      = "dispatch"
	KeyDispatchN     = "dispatch-n"
)

// DB is the application state. Handlers treat it as immutable and return a
// new value instead of writing into the one they were given.
type DB = map[string]any

// Path addresses a value nested inside a DB.
type Path []string

// Event is an event vector: the event ID followed by its arguments.
type Event []any

// NewEvent builds an event vector.
func NewEvent(id ID, args ...any) Event {
	e := make(Event, 0, len(args)+1)
	e = append(e, id)
	return append(e, args...)
}

// ID returns the event identifier, or "" when the vector is empty or the
// first element is not a string.
func (e Event) ID() ID {
	if len(e) == 0 {
		return ""
	}
	id, _ := e[0].(string)
	return id
}

// Args returns everything after the identifier.
func (e Event) Args() []any {
	if len(e) < 2 {
		return nil
	}
	return e[1:]
}

// Arg returns the i-th argument or nil.
func (e Event) Arg(i int) any {
	args := e.Args()
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// Query is a subscription vector: the query ID followed by its arguments.
type Query = Event

// Coeffects is the read-only input bundle a handler receives.
type Coeffects map[string]any

// DB returns the db snapshot taken before the handler ran.
func (c Coeffects) DB() DB {
	db, _ := c[KeyDB].(DB)
	return db
}

// Event returns the event being handled.
func (c Coeffects) Event() Event {
	e, _ := c[KeyEvent].(Event)
	return e
}

// Effects is the output bundle of a handler, applied by the Store after the
// interceptor chain completes.
type Effects map[string]any

// DB returns the new db effect when one is present.
func (e Effects) DB() (DB, bool) {
	if e == nil {
		return nil, false
	}
	db, ok := e[KeyDB].(DB)
	return db, ok
}

// DBHandler computes a new db from the current one and an event.
type DBHandler func(ctx context.Context, db DB, event Event) (DB, error)

// FxHandler computes an effects map from coeffects and an event.
type FxHandler func(ctx context.Context, cofx Coeffects, event Event) (Effects, error)

// SubHandler computes a subscription value from the db and a query.
type SubHandler func(ctx context.Context, db DB, query Query) (any, error)

// FxEffect performs a named side effect with the value found in an effects map.
type FxEffect func(ctx context.Context, value any) error

// Dispatcher enqueues events for asynchronous processing.
type Dispatcher interface {
	Dispatch(event Event)
}

// Frame is the surface of the state framework that wirez registers against.
type Frame interface {
	Dispatcher
	RegisterEventDB(id ID, interceptors []Interceptor, handler DBHandler)
	RegisterEventFx(id ID, interceptors []Interceptor, handler FxHandler)
	RegisterSubscription(id ID, handler SubHandler)
}
