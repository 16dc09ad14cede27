package kvlookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// OpenFunc produces the store for a key. It runs outside the registry lock
// and must not call back into the registry.
type OpenFunc func() (Store, error)

// Handle is the shared, refcounted view of an open store. At most one live
// Handle exists per ResourceKey within a Registry.
type Handle struct {
	key    ResourceKey
	store  Store
	closed atomic.Bool
}

// Key returns the resource key the handle was opened for.
func (h *Handle) Key() ResourceKey { return h.key }

// Store returns the underlying store.
func (h *Handle) Store() Store { return h.store }

// Closed reports whether the store was physically closed.
func (h *Handle) Closed() bool { return h.closed.Load() }

// close physically closes the store. Only the opener may do so, once.
func (h *Handle) close(opener bool) error {
	if !opener {
		return ErrNotOpener
	}
	if h.closed.Swap(true) {
		return ErrClosed
	}
	return h.store.Close()
}

type entry struct {
	refs   int
	handle *Handle
	err    *StoreOpenError
	ready  chan struct{} // closed when the open finished
	idle   chan struct{} // closed when refs reached zero
	done   chan struct{} // closed once a closing handle is closed

	// closer is set while the opener waits to close the handle; closing once
	// refs reached zero with a closer waiting. An idle entry without a closer
	// keeps its live handle until the next Acquire or Registry.Close.
	closer  bool
	closing bool
}

// Registry shares open stores between the duplicates of a stage.
//
// The mutex guards only the entry map and refcounts. The open itself runs
// without the lock; callers racing for the same key block on the in-flight
// entry until the open finished and then share its handle or its error.
// An entry stays in the map until its handle is closed, so a key never has
// two live handles.
type Registry struct {
	mu      sync.Mutex
	entries map[ResourceKey]*entry
	live    map[*Handle]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ResourceKey]*entry),
		live:    make(map[*Handle]struct{}),
	}
}

// Acquire returns the handle for key, calling open only if no entry exists.
// Every caller that receives a handle holds one reference and must Release it.
// If the open fails, the entry is removed and every caller that waited on
// that open receives the same *StoreOpenError. A key whose handle is being
// closed is reopened only after the close finished.
func (r *Registry) Acquire(key ResourceKey, open OpenFunc) (*Handle, error) {
	r.mu.Lock()
	for {
		e, ok := r.entries[key]
		if !ok {
			break
		}
		if e.closing {
			done := e.done
			r.mu.Unlock()
			<-done
			r.mu.Lock()
			continue
		}
		if e.refs == 0 {
			e.idle = make(chan struct{})
		}
		e.refs++
		r.mu.Unlock()

		<-e.ready
		if e.err != nil {
			return nil, e.err
		}
		return e.handle, nil
	}

	e := &entry{
		refs:  1,
		ready: make(chan struct{}),
		idle:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	r.entries[key] = e
	r.mu.Unlock()

	store, err := callOpen(open)

	r.mu.Lock()
	if err != nil {
		e.err = asStoreOpenError(key, err)
		if r.entries[key] == e {
			delete(r.entries, key)
		}
	} else {
		e.handle = &Handle{key: key, store: store}
		r.live[e.handle] = struct{}{}
	}
	r.mu.Unlock()
	close(e.ready)

	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

// callOpen runs open, turning a panic into an error so waiters are released.
func callOpen(open OpenFunc) (store Store, err error) {
	defer func() {
		if p := recover(); p != nil {
			store, err = nil, fmt.Errorf("open panicked: %v", p)
		}
	}()
	return open()
}

// Release drops one reference to key. Non-openers never close. The opener
// waits until every other reference is gone, then closes the handle and
// removes the entry; if ctx ends first the handle is left to Close.
func (r *Registry) Release(ctx context.Context, key ResourceKey, opener bool) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.handle == nil || e.refs == 0 || e.closing {
		r.mu.Unlock()
		return ErrNotAcquired
	}
	e.refs--
	if opener {
		e.closer = true
	}
	idle := e.idle
	if e.refs == 0 {
		e.closing = e.closer
		close(idle)
	}
	r.mu.Unlock()

	if !opener {
		return nil
	}

	select {
	case <-idle:
	case <-ctx.Done():
		r.mu.Lock()
		if !e.closing {
			e.closer = false
			r.mu.Unlock()
			return ctx.Err()
		}
		r.mu.Unlock()
	}

	err := e.handle.close(true)
	r.mu.Lock()
	delete(r.live, e.handle)
	if r.entries[key] == e {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	close(e.done)
	return err
}

// Len returns the number of entries that are open, being opened or being
// closed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Refs returns the reference count of key, 0 if absent.
func (r *Registry) Refs(key ResourceKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Close closes every handle that no opener closed, e.g. because the opener
// failed to start or gave up waiting. Entries still referenced are dropped.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.live))
	for h := range r.live {
		handles = append(handles, h)
	}
	clear(r.live)
	clear(r.entries)
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.close(true); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
