package wirez

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Registry.
const (
	// Metrics.
	RegistryRegisteredTotal = metricz.Key("registry.registered.total")
	RegistryRemovedTotal    = metricz.Key("registry.removed.total")
	RegistrySwapRetries     = metricz.Key("registry.swap.retries")
	RegistryTransformsCount = metricz.Key("registry.transforms")

	// Hook event keys.
	RegistryEventRegistered = hookz.Key("registry.registered")
	RegistryEventRemoved    = hookz.Key("registry.removed")
)

// RegistryEvent describes a change to one pipeline slot.
type RegistryEvent struct {
	Kind      Kind      // Pipeline kind
	ID        ID        // Handler the pipeline belongs to
	Key       Name      // Transform that was added, replaced or removed
	Position  int       // Index of the key after the change, -1 when removed
	Replaced  bool      // True when an existing key received a new function
	Timestamp time.Time // When the change was installed
}

// table is never mutated once installed in a Registry.
type table map[Kind]map[ID]*Transforms

// Registry holds every pipeline, keyed by kind and handler ID. Updates
// build a new table and install it with compare-and-swap, so concurrent
// writers are serialized and readers never see a partial update. Composed
// pipelines read the current table on every call.
//
// # Observability
//
// Metrics:
//   - registry.registered.total: Counter of inserts and replacements
//   - registry.removed.total: Counter of removals
//   - registry.swap.retries: Counter of lost compare-and-swap races
//   - registry.transforms: Gauge of transforms across all pipelines
//   - pipeline.* metrics recorded by composed pipelines (see Compose)
//
// Events (via hooks):
//   - registry.registered: Fired when a transform is added or replaced
//   - registry.removed: Fired when a transform is removed
type Registry struct {
	state   atomic.Pointer[table]
	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[RegistryEvent]
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry. Use a dedicated registry instead
// of Default to isolate pipelines, for example in tests.
func NewRegistry() *Registry {
	metrics := metricz.New()
	metrics.Counter(RegistryRegisteredTotal)
	metrics.Counter(RegistryRemovedTotal)
	metrics.Counter(RegistrySwapRetries)
	metrics.Gauge(RegistryTransformsCount)
	metrics.Counter(PipelineFoldsTotal)
	metrics.Counter(PipelineFailuresTotal)

	r := &Registry{
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[RegistryEvent](),
	}
	r.state.Store(&table{})
	return r
}

// Default is the registry used by the package-level helpers and by
// handlers registered without WithRegistry.
var Default = NewRegistry()

// WithClock sets a custom clock for testing.
func (r *Registry) WithClock(clock clockz.Clock) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

func (r *Registry) getClock() clockz.Clock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.clock == nil {
		return clockz.RealClock
	}
	return r.clock
}

func (r *Registry) load() table {
	return *r.state.Load()
}

// update applies fn to the (kind, id) slot and installs the result. It
// returns the slot before and after the change.
func (r *Registry) update(kind Kind, id ID, fn func(*Transforms) *Transforms) (before, after *Transforms) {
	for {
		old := r.state.Load()
		current := (*old)[kind][id]
		next := fn(current)
		if next == current {
			return current, current
		}

		swapped := (*old).with(kind, id, next)
		if r.state.CompareAndSwap(old, &swapped) {
			r.metrics.Gauge(RegistryTransformsCount).Set(float64(swapped.count()))
			return current, next
		}
		r.metrics.Counter(RegistrySwapRetries).Inc()
	}
}

// with returns a copy of t with the (kind, id) slot replaced. Empty slots
// and empty kinds are pruned.
func (t table) with(kind Kind, id ID, slot *Transforms) table {
	next := make(table, len(t)+1)
	for k, ids := range t {
		next[k] = ids
	}

	ids := make(map[ID]*Transforms, len(t[kind])+1)
	for i, transforms := range t[kind] {
		ids[i] = transforms
	}
	if slot.IsEmpty() {
		delete(ids, id)
	} else {
		ids[id] = slot
	}

	if len(ids) == 0 {
		delete(next, kind)
	} else {
		next[kind] = ids
	}
	return next
}

func (t table) count() int {
	n := 0
	for _, ids := range t {
		for _, transforms := range ids {
			n += transforms.Len()
		}
	}
	return n
}

// Register adds, replaces or removes the transform key in the (kind, id)
// pipeline. When fn is a non-nil function it is inserted at the end, or
// replaces the existing entry in place. Anything else, nil included,
// removes key. Register may be called at any time, before or after the
// handler that uses the pipeline is registered or run.
func (r *Registry) Register(kind Kind, id ID, key Name, fn any) {
	before, after := r.update(kind, id, func(t *Transforms) *Transforms {
		return t.With(key, fn)
	})

	_, had := before.Get(key)
	_, has := after.Get(key)
	switch {
	case has:
		r.metrics.Counter(RegistryRegisteredTotal).Inc()
		_ = r.hooks.Emit(context.Background(), RegistryEventRegistered, RegistryEvent{ //nolint:errcheck
			Kind:      kind,
			ID:        id,
			Key:       key,
			Position:  after.Index(key),
			Replaced:  had,
			Timestamp: r.getClock().Now(),
		})
	case had:
		r.metrics.Counter(RegistryRemovedTotal).Inc()
		_ = r.hooks.Emit(context.Background(), RegistryEventRemoved, RegistryEvent{ //nolint:errcheck
			Kind:      kind,
			ID:        id,
			Key:       key,
			Position:  -1,
			Timestamp: r.getClock().Now(),
		})
	}
}

// RegisterSetter registers a setter transform. A nil fn removes key.
func (r *Registry) RegisterSetter(id ID, key Name, fn Transform) {
	r.Register(KindSetter, id, key, fn)
}

// RegisterGetter registers a getter transform. A nil fn removes key.
func (r *Registry) RegisterGetter(id ID, key Name, fn Transform) {
	r.Register(KindGetter, id, key, fn)
}

// RegisterFx registers an effects transform. A nil fn removes key.
func (r *Registry) RegisterFx(id ID, key Name, fn FxTransform) {
	r.Register(KindFx, id, key, fn)
}

// Remove removes key from the (kind, id) pipeline.
func (r *Registry) Remove(kind Kind, id ID, key Name) {
	r.Register(kind, id, key, nil)
}

// Transforms returns the current (kind, id) pipeline. The result is a
// snapshot: later registrations do not change it.
func (r *Registry) Transforms(kind Kind, id ID) *Transforms {
	return r.load()[kind][id]
}

// Paths lists every registered transform: kinds in Kinds order, IDs sorted,
// keys in pipeline order.
func (r *Registry) Paths() []Path {
	t := r.load()
	var paths []Path
	for _, kind := range Kinds {
		ids := make([]ID, 0, len(t[kind]))
		for id := range t[kind] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, key := range t[kind][id].Keys() {
				paths = append(paths, Path{Kind: kind, ID: id, Key: key})
			}
		}
	}
	return paths
}

// Clear removes every pipeline.
func (r *Registry) Clear() {
	r.state.Store(&table{})
	r.metrics.Gauge(RegistryTransformsCount).Set(0)
}

// Metrics returns the metrics registry for this registry and the pipelines
// composed from it.
func (r *Registry) Metrics() *metricz.Registry {
	return r.metrics
}

// Tracer returns the tracer used by pipelines composed from this registry.
func (r *Registry) Tracer() *tracez.Tracer {
	return r.tracer
}

// Close gracefully shuts down observability components.
func (r *Registry) Close() error {
	if r.tracer != nil {
		r.tracer.Close()
	}
	r.hooks.Close()
	return nil
}

// OnRegistered registers a handler for added or replaced transforms.
// The handler is called asynchronously.
func (r *Registry) OnRegistered(handler func(context.Context, RegistryEvent) error) error {
	_, err := r.hooks.Hook(RegistryEventRegistered, handler)
	return err
}

// OnRemoved registers a handler for removed transforms.
// The handler is called asynchronously.
func (r *Registry) OnRemoved(handler func(context.Context, RegistryEvent) error) error {
	_, err := r.hooks.Hook(RegistryEventRemoved, handler)
	return err
}

// RegisterTransform registers fn under (kind, id, key) in Default.
func RegisterTransform(kind Kind, id ID, key Name, fn any) {
	Default.Register(kind, id, key, fn)
}

// RegisterSetterTransform registers a setter transform in Default.
func RegisterSetterTransform(id ID, key Name, fn Transform) {
	Default.RegisterSetter(id, key, fn)
}

// RegisterGetterTransform registers a getter transform in Default.
func RegisterGetterTransform(id ID, key Name, fn Transform) {
	Default.RegisterGetter(id, key, fn)
}

// RegisterFxTransform registers an effects transform in Default.
func RegisterFxTransform(id ID, key Name, fn FxTransform) {
	Default.RegisterFx(id, key, fn)
}

// RegisteredPaths lists every transform registered in Default.
func RegisteredPaths() []Path {
	return Default.Paths()
}
