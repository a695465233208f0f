package managed

import (
	stderrors "errors"

	"github.com/wippyai/torch-bridge/tensor"
)

// Handle is an opaque reference to an object in a managed runtime's heap.
// Handle 0 is reserved and always invalid.
type Handle uint64

// Entry selects which entry point of a callable an invocation targets.
type Entry uint8

const (
	EntryForward Entry = iota
	EntryBackward
)

func (e Entry) String() string {
	if e == EntryBackward {
		return "backward"
	}
	return "forward"
}

// Frame is a marshaled call frame: the positional argument handles plus
// the per-call flags a callable entry point receives. Frames are built by
// the bridge on the calling thread and consumed synchronously by Invoke;
// they are never retained by the runtime.
type Frame struct {
	FuncName string
	InvokeID string

	// Args holds one handle per positional slot, in combined slot order.
	// Tensor slots are array objects (or the None handle for absent
	// slots); object slots are caller-supplied handles passed through
	// borrowed.
	Args []Handle

	// TensorSlots lists the positional slots that carry tensors, in
	// tensor-slot order. It need not be ascending; the runtime presents
	// inputs to the callable in this order so RequiresGrad stays aligned.
	// Nil means every slot is decoded by object kind in position order.
	TensorSlots []int64

	// RequiresGrad is aligned with tensor slot order, not combined slot
	// order. Nil on backward frames.
	RequiresGrad []bool

	TrainingMode bool
	InplaceMap   []int64
}

// Runtime is the capability surface a managed runtime exposes to the
// bridge. All methods except Enter and Exit must only be called while the
// calling thread holds runtime entry.
type Runtime interface {
	// Enter blocks until the caller holds exclusive entry into the
	// runtime. Entry is not reentrant; acquiring twice from the same
	// goroutine deadlocks.
	Enter()

	// Exit releases exclusive entry.
	Exit()

	// IncRef increments an object's reference count. No-op on the None
	// handle and on invalid handles.
	IncRef(h Handle)

	// DecRef decrements an object's reference count, destroying the
	// object when it reaches zero. No-op on the None handle and on
	// invalid handles.
	DecRef(h Handle)

	// RefCount reports an object's current reference count, or 0 for
	// invalid handles.
	RefCount(h Handle) int

	// None returns the runtime's well-defined "no value" handle. It is
	// immortal: IncRef and DecRef on it are no-ops.
	None() Handle

	// FromTensor converts a native tensor into a runtime array object.
	// The returned handle is owned by the caller (reference count 1).
	FromTensor(v *tensor.Value) (Handle, error)

	// ToTensor converts a runtime array object back into a native
	// tensor. The handle is borrowed; the None handle converts to nil.
	ToTensor(h Handle) (*tensor.Value, error)

	// Invoke calls the selected entry point of a callable object with a
	// marshaled frame and returns an owned handle to the result tuple.
	Invoke(target Handle, entry Entry, frame *Frame) (Handle, error)

	// TupleLen reports the number of items in a tuple object.
	TupleLen(h Handle) (int, error)

	// TupleItem returns a borrowed handle to a tuple item. The item is
	// only valid while the tuple is alive.
	TupleItem(h Handle, i int) (Handle, error)

	// Close tears the runtime down, releasing all live objects.
	Close() error
}

// Function is a differentiable function hosted by a runtime. Forward
// receives the tensor arguments in tensor-slot order (nil marks an absent
// slot) and returns the outputs; Backward receives the output gradients
// and returns the input gradients. Both run with runtime entry held, so
// implementations must not call back into the runtime's public surface.
type Function interface {
	Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error)
	Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error)
}

// FunctionFunc adapts plain functions to the Function interface. A nil
// entry fails the corresponding invocation.
type FunctionFunc struct {
	ForwardFn  func(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error)
	BackwardFn func(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error)
}

func (f FunctionFunc) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	if f.ForwardFn == nil {
		return nil, stderrors.New("function has no forward entry point")
	}
	return f.ForwardFn(fc, inputs)
}

func (f FunctionFunc) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	if f.BackwardFn == nil {
		return nil, stderrors.New("function has no backward entry point")
	}
	return f.BackwardFn(fc, grads)
}

// FunctionContext is the per-invocation state a Function sees: the call
// flags from the frame, the non-tensor object arguments by position, and
// the values the forward pass saved for its backward pass.
type FunctionContext struct {
	// Objects maps positional slot index to the object handle passed in
	// that slot. Differentiation-context slots are filtered out before
	// the callable runs.
	Objects map[int]Handle

	// RequiresGrad is aligned with tensor slot order. Nil on backward.
	RequiresGrad []bool

	TrainingMode bool
	InplaceMap   []int64

	saved []*tensor.Value
}

// SaveForBackward stores tensors the backward pass will need. Only
// meaningful during Forward in training mode; saved values travel inside
// the differentiation context.
func (fc *FunctionContext) SaveForBackward(vals ...*tensor.Value) {
	fc.saved = append(fc.saved, vals...)
}

// Saved returns the tensors the forward pass stored.
func (fc *FunctionContext) Saved() []*tensor.Value {
	return fc.saved
}
