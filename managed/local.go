package managed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/tensor"
)

// Object kinds living in a LocalRuntime's heap. The concrete types stay
// confined to this file; everything outside sees only Handles.
type noneObject struct{}

type arrayObject struct {
	val *tensor.Value
}

type tupleObject struct {
	items []Handle
}

type contextObject struct {
	funcName string
	saved    []*tensor.Value
	consumed bool
}

type callableObject struct {
	name string
	fn   Function
}

// LocalRuntime is an in-process reference implementation of Runtime. It
// hosts Go-implemented differentiable functions behind the same entry
// lock, heap and handle discipline an external interpreter would impose,
// which makes lifetime and mutual-exclusion properties observable in
// tests.
type LocalRuntime struct {
	heap *Heap
	none Handle

	entry sync.Mutex

	// Invocation instrumentation, deliberately independent of the entry
	// lock so a caller that skips Enter is detectable.
	inside      atomic.Int32
	maxInside   atomic.Int32
	invocations atomic.Int64

	closed atomic.Bool
}

// LocalOption configures a LocalRuntime.
type LocalOption func(*localConfig)

type localConfig struct {
	observer Observer
}

// WithTracker attaches a heap lifecycle observer, typically a *Tracker.
func WithTracker(o Observer) LocalOption {
	return func(c *localConfig) { c.observer = o }
}

// NewLocalRuntime creates a runtime with an empty heap and an immortal
// None object.
func NewLocalRuntime(opts ...LocalOption) *LocalRuntime {
	var cfg localConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := &LocalRuntime{}
	heapOpts := []HeapOption{WithFinalizer(rt.finalizeObject)}
	if cfg.observer != nil {
		heapOpts = append(heapOpts, WithObserver(cfg.observer))
	}
	rt.heap = NewHeap(heapOpts...)
	rt.none = rt.heap.AllocImmortal(noneObject{})
	return rt
}

// finalizeObject releases the handles a destroyed object held.
func (rt *LocalRuntime) finalizeObject(_ Handle, value any) {
	if t, ok := value.(*tupleObject); ok {
		for _, item := range t.items {
			rt.heap.DecRef(item)
		}
	}
}

// Enter implements Runtime. Not reentrant.
func (rt *LocalRuntime) Enter() {
	rt.entry.Lock()
}

// Exit implements Runtime.
func (rt *LocalRuntime) Exit() {
	rt.entry.Unlock()
}

// IncRef implements Runtime.
func (rt *LocalRuntime) IncRef(h Handle) {
	rt.heap.IncRef(h)
}

// DecRef implements Runtime.
func (rt *LocalRuntime) DecRef(h Handle) {
	rt.heap.DecRef(h)
}

// RefCount implements Runtime.
func (rt *LocalRuntime) RefCount(h Handle) int {
	return rt.heap.Refs(h)
}

// None implements Runtime.
func (rt *LocalRuntime) None() Handle {
	return rt.none
}

// NewCallable hosts a function as a callable object and returns an owned
// handle to it.
func (rt *LocalRuntime) NewCallable(name string, fn Function) Handle {
	return rt.heap.Alloc(&callableObject{name: name, fn: fn})
}

// FromTensor implements Runtime. The tensor is cloned so the array
// object's storage is independent of the caller's.
func (rt *LocalRuntime) FromTensor(v *tensor.Value) (Handle, error) {
	if v == nil {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "cannot create an array from a nil tensor")
	}
	return rt.heap.Alloc(&arrayObject{val: v.Clone()}), nil
}

// ToTensor implements Runtime. None converts to nil.
func (rt *LocalRuntime) ToTensor(h Handle) (*tensor.Value, error) {
	value, ok := rt.heap.Get(h)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseRuntime, uint64(h))
	}
	switch obj := value.(type) {
	case noneObject:
		return nil, nil
	case *arrayObject:
		return obj.val.Clone(), nil
	default:
		return nil, errors.TypeMismatch(errors.PhaseRuntime, fmt.Sprintf("object %d is %T, not an array", h, value))
	}
}

// TupleLen implements Runtime.
func (rt *LocalRuntime) TupleLen(h Handle) (int, error) {
	t, err := rt.tuple(h)
	if err != nil {
		return 0, err
	}
	return len(t.items), nil
}

// TupleItem implements Runtime. The returned handle is borrowed from the
// tuple.
func (rt *LocalRuntime) TupleItem(h Handle, i int) (Handle, error) {
	t, err := rt.tuple(h)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(t.items) {
		return 0, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("tuple index %d out of range [0, %d)", i, len(t.items)))
	}
	return t.items[i], nil
}

func (rt *LocalRuntime) tuple(h Handle) (*tupleObject, error) {
	value, ok := rt.heap.Get(h)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseRuntime, uint64(h))
	}
	t, ok := value.(*tupleObject)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, fmt.Sprintf("object %d is %T, not a tuple", h, value))
	}
	return t, nil
}

// Invoke implements Runtime. The caller must hold entry.
func (rt *LocalRuntime) Invoke(target Handle, entry Entry, frame *Frame) (Handle, error) {
	if rt.closed.Load() {
		return 0, errors.Closed(errors.PhaseRuntime, "runtime")
	}

	rt.invocations.Add(1)
	depth := rt.inside.Add(1)
	defer rt.inside.Add(-1)
	for {
		prev := rt.maxInside.Load()
		if depth <= prev || rt.maxInside.CompareAndSwap(prev, depth) {
			break
		}
	}

	value, ok := rt.heap.Get(target)
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseRuntime, uint64(target))
	}
	callable, ok := value.(*callableObject)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseRuntime, fmt.Sprintf("object %d is %T, not callable", target, value))
	}

	if entry == EntryBackward {
		return rt.invokeBackward(callable, frame)
	}
	return rt.invokeForward(callable, frame)
}

func (rt *LocalRuntime) invokeForward(callable *callableObject, frame *Frame) (Handle, error) {
	inputs, objects, _, err := rt.decodeArgs(frame)
	if err != nil {
		return 0, err
	}

	fc := &FunctionContext{
		Objects:      objects,
		RequiresGrad: frame.RequiresGrad,
		TrainingMode: frame.TrainingMode,
		InplaceMap:   frame.InplaceMap,
	}

	outs, err := callable.fn.Forward(fc, inputs)
	if err != nil {
		return 0, err
	}

	ctx := rt.none
	if frame.TrainingMode {
		ctx = rt.heap.Alloc(&contextObject{funcName: callable.name, saved: fc.saved})
	}
	return rt.newResultTuple(ctx, outs), nil
}

func (rt *LocalRuntime) invokeBackward(callable *callableObject, frame *Frame) (Handle, error) {
	inputs, objects, ctx, err := rt.decodeArgs(frame)
	if err != nil {
		return 0, err
	}
	if ctx == nil {
		return 0, errors.StaleContext(fmt.Sprintf("backward %q received no differentiation context", callable.name))
	}
	if ctx.consumed {
		return 0, errors.StaleContext(fmt.Sprintf("context for %q was already consumed by a prior backward", ctx.funcName))
	}

	fc := &FunctionContext{
		Objects:    objects,
		InplaceMap: frame.InplaceMap,
		saved:      ctx.saved,
	}

	outs, err := callable.fn.Backward(fc, inputs)
	if err != nil {
		return 0, err
	}

	ctx.consumed = true
	return rt.newResultTuple(0, outs), nil
}

// decodeArgs splits a frame's positional handles into tensor inputs (in
// tensor-slot order, nil for None), non-tensor objects keyed by position,
// and the differentiation context if one was passed. At most one context
// may appear. When the frame carries TensorSlots the inputs are placed by
// tensor-slot ordinal, so unsorted slot positions still present inputs
// aligned with RequiresGrad; a nil TensorSlots keeps position order.
func (rt *LocalRuntime) decodeArgs(frame *Frame) ([]*tensor.Value, map[int]Handle, *contextObject, error) {
	ordinal := make(map[int]int, len(frame.TensorSlots))
	for ord, pos := range frame.TensorSlots {
		if pos < 0 || pos >= int64(len(frame.Args)) {
			return nil, nil, nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("tensor slot %d out of range [0, %d)", pos, len(frame.Args)))
		}
		if _, dup := ordinal[int(pos)]; dup {
			return nil, nil, nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("tensor slot %d listed twice", pos))
		}
		ordinal[int(pos)] = ord
	}

	var inputs []*tensor.Value
	if frame.TensorSlots != nil {
		inputs = make([]*tensor.Value, len(frame.TensorSlots))
	}
	place := func(pos int, v *tensor.Value) error {
		if frame.TensorSlots == nil {
			inputs = append(inputs, v)
			return nil
		}
		ord, ok := ordinal[pos]
		if !ok {
			return errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("slot %d carries a tensor but is not a tensor slot", pos))
		}
		inputs[ord] = v
		return nil
	}

	var ctx *contextObject
	objects := make(map[int]Handle)

	for i, h := range frame.Args {
		value, ok := rt.heap.Get(h)
		if !ok {
			return nil, nil, nil, errors.InvalidHandle(errors.PhaseRuntime, uint64(h))
		}
		switch obj := value.(type) {
		case noneObject:
			if err := place(i, nil); err != nil {
				return nil, nil, nil, err
			}
		case *arrayObject:
			if err := place(i, obj.val.Clone()); err != nil {
				return nil, nil, nil, err
			}
		case *contextObject:
			if ctx != nil {
				return nil, nil, nil, errors.StaleContext("more than one differentiation context in argument list")
			}
			ctx = obj
		default:
			objects[i] = h
		}
	}
	return inputs, objects, ctx, nil
}

// newResultTuple builds the owned result tuple for an invocation. The
// tuple steals the freshly allocated references of its items; None items
// are immortal so no adjustment applies. A zero first handle means the
// tuple has no context slot (backward results).
func (rt *LocalRuntime) newResultTuple(first Handle, outs []*tensor.Value) Handle {
	var items []Handle
	if first != 0 {
		items = append(items, first)
	}
	for _, out := range outs {
		if out == nil {
			items = append(items, rt.none)
			continue
		}
		items = append(items, rt.heap.Alloc(&arrayObject{val: out}))
	}
	return rt.heap.Alloc(&tupleObject{items: items})
}

// Invocations reports how many Invoke calls the runtime has served.
func (rt *LocalRuntime) Invocations() int64 {
	return rt.invocations.Load()
}

// MaxEntryDepth reports the highest number of invocations observed
// executing simultaneously. Greater than 1 means a caller entered
// without holding the entry lock.
func (rt *LocalRuntime) MaxEntryDepth() int32 {
	return rt.maxInside.Load()
}

// LiveObjects reports the number of live heap objects, None included.
func (rt *LocalRuntime) LiveObjects() int {
	return rt.heap.Live()
}

// Close implements Runtime.
func (rt *LocalRuntime) Close() error {
	if !rt.closed.CompareAndSwap(false, true) {
		return nil
	}
	return rt.heap.Close()
}
