// Package handle provides the arena backing foreign-function bindings.
// Bindings hand out opaque integer handles instead of pointers, so a
// caller can never produce a dangling dereference:  freeing a handle
// invalidates the index rather than memory the caller might still hold.
package handle

import (
	"io"
	"sync"

	qnet "github.com/lthibault/qnet/pkg"
)

// Handle is an opaque reference to a core object.  Handles are never
// reused, so a stale handle stays invalid forever.
type Handle uint64

// Nil is never issued by a Registry.
const Nil Handle = 0

// Registry is a handle-indexed arena.  The zero value is not usable; use
// New.  All methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	next  Handle
	limit int
	tab   map[Handle]interface{}
}

// New Registry
func New(opt ...Option) *Registry {
	r := &Registry{tab: make(map[Handle]interface{})}
	for _, o := range opt {
		o(r)
	}
	return r
}

// Put issues a fresh handle for v.  Fails with ErrResourceExhausted when
// the registry is at its configured capacity.
func (r *Registry) Put(v interface{}) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && len(r.tab) >= r.limit {
		return Nil, qnet.ErrResourceExhausted
	}

	r.next++
	r.tab[r.next] = v
	return r.next, nil
}

// Conn resolves h to a connection, reporting whether the handle is live
// and of the right kind.
func (r *Registry) Conn(h Handle) (qnet.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.tab[h].(qnet.Conn)
	return c, ok
}

// Stream resolves h to a stream, reporting whether the handle is live and
// of the right kind.
func (r *Registry) Stream(h Handle) (qnet.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.tab[h].(qnet.Stream)
	return s, ok
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tab)
}

// Free invalidates h and closes the underlying object.  Always safe to
// call:  freeing an unknown or already-freed handle is a no-op, so a
// careless binding caller cannot trigger a double release.
func (r *Registry) Free(h Handle) {
	r.mu.Lock()
	v, ok := r.tab[h]
	delete(r.tab, h)
	r.mu.Unlock()

	if !ok {
		return
	}

	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

// Option for a Registry
type Option func(*Registry)

// OptLimit caps the number of live handles.
func OptLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}
