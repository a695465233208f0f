package managed

import (
	"testing"
)

func TestHeap_Basic(t *testing.T) {
	h := NewHeap()

	handle := h.Alloc("test value")
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := h.Get(handle)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if refs := h.Refs(handle); refs != 1 {
		t.Fatalf("Expected 1 ref, got %d", refs)
	}

	if !h.DecRef(handle) {
		t.Fatal("DecRef should destroy the object")
	}

	if _, ok := h.Get(handle); ok {
		t.Fatal("Expected Get to fail after final DecRef")
	}
}

func TestHeap_RefCounting(t *testing.T) {
	h := NewHeap()

	handle := h.Alloc(42)
	if !h.IncRef(handle) {
		t.Fatal("IncRef failed")
	}
	if refs := h.Refs(handle); refs != 2 {
		t.Fatalf("Expected 2 refs, got %d", refs)
	}

	if h.DecRef(handle) {
		t.Fatal("First DecRef should not destroy")
	}
	if _, ok := h.Get(handle); !ok {
		t.Fatal("Object should still be live")
	}

	if !h.DecRef(handle) {
		t.Fatal("Second DecRef should destroy")
	}
}

func TestHeap_SlotReuse(t *testing.T) {
	h := NewHeap()

	a := h.Alloc("a")
	h.DecRef(a)

	b := h.Alloc("b")
	if b != a {
		t.Fatalf("Expected freed slot %d to be reused, got %d", a, b)
	}

	val, ok := h.Get(b)
	if !ok || val != "b" {
		t.Fatalf("Expected 'b', got %v", val)
	}
}

func TestHeap_Immortal(t *testing.T) {
	h := NewHeap()

	none := h.AllocImmortal("none")
	h.DecRef(none)
	h.DecRef(none)

	if _, ok := h.Get(none); !ok {
		t.Fatal("Immortal object should survive DecRef")
	}

	h.IncRef(none)
	if refs := h.Refs(none); refs != 1 {
		t.Fatalf("Expected refs to stay at 1, got %d", refs)
	}
}

func TestHeap_InvalidHandle(t *testing.T) {
	h := NewHeap()

	if _, ok := h.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := h.Get(99); ok {
		t.Fatal("Out-of-range handle should be invalid")
	}
	if h.IncRef(0) {
		t.Fatal("IncRef on handle 0 should fail")
	}
	if h.DecRef(99) {
		t.Fatal("DecRef on out-of-range handle should fail")
	}
}

func TestHeap_Finalizer(t *testing.T) {
	var finalized []Handle
	var h *Heap
	h = NewHeap(WithFinalizer(func(handle Handle, value any) {
		finalized = append(finalized, handle)
		// Cascaded release must be legal from a finalizer.
		if inner, ok := value.(Handle); ok {
			h.DecRef(inner)
		}
	}))

	inner := h.Alloc("inner")
	outer := h.Alloc(inner)

	h.DecRef(outer)
	if len(finalized) != 2 {
		t.Fatalf("Expected 2 finalized objects, got %d", len(finalized))
	}
	if finalized[0] != outer || finalized[1] != inner {
		t.Fatalf("Expected finalize order [%d %d], got %v", outer, inner, finalized)
	}
	if h.Live() != 0 {
		t.Fatalf("Expected empty heap, got %d live", h.Live())
	}
}

func TestHeap_Close(t *testing.T) {
	h := NewHeap()
	h.Alloc("x")

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if handle := h.Alloc("y"); handle != 0 {
		t.Fatal("Alloc after Close should return 0")
	}
}

func TestTracker_Deltas(t *testing.T) {
	tr := NewTracker()
	h := NewHeap(WithObserver(tr))

	handle := h.Alloc("x")
	h.IncRef(handle)
	h.DecRef(handle)

	if d := tr.Delta(handle); d != 1 {
		t.Fatalf("Expected delta 1, got %d", d)
	}
	if live := tr.Live(); live != 1 {
		t.Fatalf("Expected 1 live, got %d", live)
	}

	h.DecRef(handle)
	if d := tr.Delta(handle); d != 0 {
		t.Fatalf("Expected delta 0, got %d", d)
	}
	if live := tr.Live(); live != 0 {
		t.Fatalf("Expected 0 live, got %d", live)
	}

	events := tr.Events()
	if len(events) != 5 {
		t.Fatalf("Expected 5 events (alloc, incref, decref, decref, free), got %d", len(events))
	}
}
