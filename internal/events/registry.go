package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle identifies a registered callback.
type Handle string

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// Registry holds callbacks invoked synchronously on the dispatching goroutine.
// The callback list is copy-on-write: Register and Deregister never race with an in-progress Notify,
// a Notify that already started keeps using the list it loaded.
type Registry[T any] struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]entry[T]]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	r := &Registry[T]{}
	empty := make([]entry[T], 0)
	r.entries.Store(&empty)
	return r
}

// Register adds fn and returns the handle needed to deregister it.
func (r *Registry[T]) Register(fn func(T)) Handle {
	h := Handle(uuid.New().String())

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.entries.Load()
	next := make([]entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[T]{handle: h, fn: fn})
	r.entries.Store(&next)

	return h
}

// Deregister removes the callback. It reports false when the handle is unknown.
func (r *Registry[T]) Deregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.entries.Load()
	next := make([]entry[T], 0, len(cur))
	found := false
	for _, e := range cur {
		if e.handle == h {
			found = true
			continue
		}
		next = append(next, e)
	}
	if found {
		r.entries.Store(&next)
	}

	return found
}

// Len returns the number of registered callbacks.
func (r *Registry[T]) Len() int {
	return len(*r.entries.Load())
}

// Notify calls every registered callback in registration order.
func (r *Registry[T]) Notify(v T) {
	for _, e := range *r.entries.Load() {
		e.fn(v)
	}
}
