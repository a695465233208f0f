package managed

import (
	"sync"
)

// EventType identifies a heap lifecycle event.
type EventType uint8

const (
	EventAlloc EventType = iota
	EventIncRef
	EventDecRef
	EventFree
)

// Event describes one heap lifecycle event. Refs is the reference count
// after the event applied.
type Event struct {
	Handle Handle
	Refs   int
	Type   EventType
}

// Observer receives heap lifecycle events. Called with the heap lock
// held; implementations must not call back into the heap.
type Observer interface {
	OnHeapEvent(Event)
}

// Tracker is an Observer that records reference-count history per
// handle. It backs leak diagnostics and the refcount-delta assertions in
// tests: Delta reports the net count change for a handle since tracking
// began, and Live the number of tracked objects not yet freed.
type Tracker struct {
	deltas map[Handle]int
	live   map[Handle]bool
	events []Event
	mu     sync.Mutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		deltas: make(map[Handle]int),
		live:   make(map[Handle]bool),
	}
}

// OnHeapEvent implements Observer.
func (t *Tracker) OnHeapEvent(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, ev)
	switch ev.Type {
	case EventAlloc:
		t.deltas[ev.Handle] = 1
		t.live[ev.Handle] = true
	case EventIncRef:
		t.deltas[ev.Handle]++
	case EventDecRef:
		t.deltas[ev.Handle]--
	case EventFree:
		delete(t.live, ev.Handle)
	}
}

// Delta reports the net reference-count change for a handle since its
// allocation (or since tracking began). Zero for a fully released object.
func (t *Tracker) Delta(h Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deltas[h]
}

// Live returns the number of tracked objects that have not been freed.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Events returns a copy of the recorded event history.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Reset discards all recorded state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.deltas = make(map[Handle]int)
	t.live = make(map[Handle]bool)
}
