package wirez

import (
	"reflect"
	"slices"
)

// Transforms is an insertion-ordered map from Name to transform function.
// It is immutable: With and Without return a new value and leave the
// receiver untouched, so a snapshot can be read without locking while the
// registry moves on. A nil *Transforms is an empty map.
type Transforms struct {
	keys  []Name
	funcs map[Name]any
}

// NewTransforms returns an empty Transforms.
func NewTransforms() *Transforms {
	return &Transforms{funcs: make(map[Name]any)}
}

// With inserts or replaces key. A new key goes to the end; an existing key
// keeps its position. When fn is not a non-nil function the key is removed
// instead.
func (t *Transforms) With(key Name, fn any) *Transforms {
	if !callable(fn) {
		return t.Without(key)
	}

	next := t.clone()
	if _, exists := next.funcs[key]; !exists {
		next.keys = append(next.keys, key)
	}
	next.funcs[key] = fn
	return next
}

// Without removes key. It returns the receiver when key is absent.
func (t *Transforms) Without(key Name) *Transforms {
	if _, exists := t.Get(key); !exists {
		return t
	}

	next := t.clone()
	delete(next.funcs, key)
	next.keys = slices.DeleteFunc(next.keys, func(k Name) bool { return k == key })
	return next
}

// Get returns the function registered under key.
func (t *Transforms) Get(key Name) (any, bool) {
	if t == nil {
		return nil, false
	}
	fn, ok := t.funcs[key]
	return fn, ok
}

// Keys returns the keys in pipeline order.
func (t *Transforms) Keys() []Name {
	if t == nil {
		return nil
	}
	return slices.Clone(t.keys)
}

// Funcs returns the functions in pipeline order.
func (t *Transforms) Funcs() []any {
	if t == nil {
		return nil
	}
	funcs := make([]any, len(t.keys))
	for i, key := range t.keys {
		funcs[i] = t.funcs[key]
	}
	return funcs
}

// Len returns the number of transforms.
func (t *Transforms) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// IsEmpty returns true if there are no transforms.
func (t *Transforms) IsEmpty() bool {
	return t.Len() == 0
}

// Index returns the position of key, or -1.
func (t *Transforms) Index(key Name) int {
	if t == nil {
		return -1
	}
	return slices.Index(t.keys, key)
}

func (t *Transforms) clone() *Transforms {
	next := NewTransforms()
	if t == nil {
		return next
	}
	next.keys = slices.Clone(t.keys)
	for k, v := range t.funcs {
		next.funcs[k] = v
	}
	return next
}

func callable(fn any) bool {
	if fn == nil {
		return false
	}
	v := reflect.ValueOf(fn)
	return v.Kind() == reflect.Func && !v.IsNil()
}
