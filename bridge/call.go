package bridge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/managed"
	"github.com/wippyai/torch-bridge/tensor"
)

// Call describes one invocation of a registered custom function. Tensor
// and object arguments share a flat positional slot space: TensorIndices
// and ObjIndices say which slot each argument occupies, and together they
// must partition [0, N) exactly. A Call is built on the calling
// goroutine, consumed synchronously, and never retained by the bridge.
type Call struct {
	FuncName string

	// Target is the callable handle resolved by the caller (typically
	// through a registry.Pool lookup).
	Target managed.Handle

	// TensorArgs are the tensor slots in tensor-slot order; nil marks an
	// absent value. TensorIndices gives each one's position.
	TensorArgs    []*tensor.Value
	TensorIndices []int64

	// ObjArgs are opaque handles passed through borrowed; the bridge
	// never adjusts their reference counts. ObjIndices gives positions.
	ObjArgs    []managed.Handle
	ObjIndices []int64

	// RequiresGrad is aligned with TensorArgs, not with positions.
	// Forward only.
	RequiresGrad []bool

	// TrainingMode selects whether the forward pass builds a
	// differentiation context. Forward only.
	TrainingMode bool

	// InplaceMap lists positions the callable may mutate in place. Those
	// side effects are not undone on failure.
	InplaceMap []int64

	// InvokeID correlates this call across logs and errors.
	InvokeID string
}

// NewInvokeID returns a fresh correlation id.
func NewInvokeID() string {
	return uuid.NewString()
}

// validate checks the positional slot partition and alignment invariants
// locally, before anything crosses into the managed runtime.
func (c *Call) validate(forward bool) error {
	if c.Target == 0 {
		return errors.ArgumentLayout(c.FuncName, c.InvokeID, "target callable handle is zero")
	}
	if len(c.TensorArgs) != len(c.TensorIndices) {
		return errors.ArgumentLayout(c.FuncName, c.InvokeID,
			fmt.Sprintf("%d tensor args but %d tensor indices", len(c.TensorArgs), len(c.TensorIndices)))
	}
	if len(c.ObjArgs) != len(c.ObjIndices) {
		return errors.ArgumentLayout(c.FuncName, c.InvokeID,
			fmt.Sprintf("%d obj args but %d obj indices", len(c.ObjArgs), len(c.ObjIndices)))
	}
	if forward && c.RequiresGrad != nil && len(c.RequiresGrad) != len(c.TensorArgs) {
		return errors.ArgumentLayout(c.FuncName, c.InvokeID,
			fmt.Sprintf("%d requires-grad flags for %d tensor args", len(c.RequiresGrad), len(c.TensorArgs)))
	}

	n := len(c.TensorIndices) + len(c.ObjIndices)
	seen := make([]bool, n)
	for _, group := range [][]int64{c.TensorIndices, c.ObjIndices} {
		for _, idx := range group {
			if idx < 0 || idx >= int64(n) {
				return errors.ArgumentLayout(c.FuncName, c.InvokeID,
					fmt.Sprintf("index %d outside [0, %d)", idx, n))
			}
			if seen[idx] {
				return errors.ArgumentLayout(c.FuncName, c.InvokeID,
					fmt.Sprintf("index %d claimed by more than one slot", idx))
			}
			seen[idx] = true
		}
	}
	// Counts match and no slot is claimed twice, so every slot is covered.

	for i, h := range c.ObjArgs {
		if h == 0 {
			return errors.ArgumentLayout(c.FuncName, c.InvokeID,
				fmt.Sprintf("obj arg %d is the invalid zero handle", i))
		}
	}
	return nil
}
