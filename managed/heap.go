package managed

import (
	"sync"
)

// Heap is a reference-counted object store with slot reuse. Objects are
// allocated with a count of one; DecRef destroys the object when the
// count reaches zero, running the finalizer so objects can release
// handles they hold. Immortal objects ignore reference-count operations.
type Heap struct {
	finalize func(h Handle, value any)
	observer Observer
	entries  []heapEntry
	freeList []Handle
	mu       sync.Mutex
	closed   bool
}

type heapEntry struct {
	value    any
	refs     int
	immortal bool
	valid    bool
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithFinalizer sets a hook that runs when an object's reference count
// reaches zero, after its slot is recycled. Runs without the heap lock,
// so it may release further handles the object held.
func WithFinalizer(fn func(h Handle, value any)) HeapOption {
	return func(h *Heap) { h.finalize = fn }
}

// WithObserver attaches a lifecycle observer to the heap.
func WithObserver(o Observer) HeapOption {
	return func(h *Heap) { h.observer = o }
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		entries:  make([]heapEntry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Alloc stores a value with a reference count of one and returns its
// handle. The caller owns the reference.
func (h *Heap) Alloc(value any) Handle {
	return h.alloc(value, false)
}

// AllocImmortal stores a value whose reference count never changes.
// IncRef and DecRef on the returned handle are no-ops.
func (h *Heap) AllocImmortal(value any) Handle {
	return h.alloc(value, true)
}

func (h *Heap) alloc(value any, immortal bool) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	e := heapEntry{
		value:    value,
		refs:     1,
		immortal: immortal,
		valid:    true,
	}

	var handle Handle
	if len(h.freeList) > 0 {
		handle = h.freeList[len(h.freeList)-1]
		h.freeList = h.freeList[:len(h.freeList)-1]
		h.entries[handle-1] = e
	} else {
		h.entries = append(h.entries, e)
		handle = Handle(len(h.entries))
	}

	h.notify(Event{Type: EventAlloc, Handle: handle, Refs: 1})
	return handle
}

// Get retrieves a live object's value by handle.
func (h *Heap) Get(handle Handle) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// IncRef increments an object's reference count. Returns false for
// invalid handles. No-op (but true) for immortal objects.
func (h *Heap) IncRef(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(handle)
	if e == nil {
		return false
	}
	if e.immortal {
		return true
	}

	e.refs++
	h.notify(Event{Type: EventIncRef, Handle: handle, Refs: e.refs})
	return true
}

// DecRef decrements an object's reference count, destroying the object
// when it reaches zero. Reports whether the object was destroyed.
func (h *Heap) DecRef(handle Handle) bool {
	h.mu.Lock()

	e := h.entry(handle)
	if e == nil || e.immortal {
		h.mu.Unlock()
		return false
	}

	e.refs--
	h.notify(Event{Type: EventDecRef, Handle: handle, Refs: e.refs})
	if e.refs > 0 {
		h.mu.Unlock()
		return false
	}

	value := e.value
	e.valid = false
	e.value = nil
	h.freeList = append(h.freeList, handle)
	h.notify(Event{Type: EventFree, Handle: handle})
	h.mu.Unlock()

	if h.finalize != nil {
		h.finalize(handle, value)
	}
	return true
}

// Refs reports an object's reference count, or 0 for invalid handles.
func (h *Heap) Refs(handle Handle) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(handle)
	if e == nil {
		return 0
	}
	return e.refs
}

// Live returns the number of live objects, immortals included.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for i := range h.entries {
		if h.entries[i].valid {
			count++
		}
	}
	return count
}

// Close destroys all live objects. Finalizers do not run; teardown
// ordering relative to other process-wide state is not guaranteed.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for i := range h.entries {
		h.entries[i].valid = false
		h.entries[i].value = nil
	}
	h.entries = nil
	h.freeList = nil
	return nil
}

// entry returns the live entry for a handle, or nil. Caller holds h.mu.
func (h *Heap) entry(handle Handle) *heapEntry {
	if handle == 0 || int(handle) > len(h.entries) {
		return nil
	}
	e := &h.entries[handle-1]
	if !e.valid {
		return nil
	}
	return e
}

func (h *Heap) notify(ev Event) {
	if h.observer != nil {
		h.observer.OnHeapEvent(ev)
	}
}
