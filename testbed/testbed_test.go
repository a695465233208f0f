// Package testbed holds integration tests that exercise the bridge,
// registry and runtime implementations together.
package testbed

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/torch-bridge/bridge"
	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/managed"
	"github.com/wippyai/torch-bridge/registry"
	"github.com/wippyai/torch-bridge/tensor"
)

func mustTensor(t *testing.T, vals ...float32) *tensor.Value {
	t.Helper()
	v, err := tensor.FromFloat32s([]int64{int64(len(vals))}, vals)
	if err != nil {
		t.Fatalf("FromFloat32s failed: %v", err)
	}
	return v
}

// setup builds a runtime with a tracker, registers all builtins in a
// pool, and returns both.
func setup(t *testing.T) (*managed.LocalRuntime, *registry.Pool, *managed.Tracker) {
	t.Helper()
	tr := managed.NewTracker()
	rt := managed.NewLocalRuntime(managed.WithTracker(tr))
	t.Cleanup(func() { rt.Close() })

	pool := registry.NewPool(rt)
	t.Cleanup(func() { pool.Close() })
	for name, fn := range managed.Builtins() {
		h := rt.NewCallable(name, fn)
		if err := pool.Register(name, h); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
		// The pool holds its own reference now.
		rt.Enter()
		rt.DecRef(h)
		rt.Exit()
	}
	return rt, pool, tr
}

func TestEndToEnd_TrainingStep(t *testing.T) {
	rt, pool, _ := setup(t)

	target, err := pool.Lookup("square")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	ctx, out, err := bridge.Forward(rt, &bridge.Call{
		FuncName:      "square",
		Target:        target,
		TensorArgs:    []*tensor.Value{mustTensor(t, 2, -3)},
		TensorIndices: []int64{0},
		RequiresGrad:  []bool{true},
		TrainingMode:  true,
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !tensor.Equal(out[0], mustTensor(t, 4, 9)) {
		t.Fatalf("Expected [4 9], got %v", out[0])
	}

	grads, err := bridge.Backward(rt, &bridge.Call{
		FuncName:      "square",
		Target:        target,
		TensorArgs:    []*tensor.Value{mustTensor(t, 1, 1)},
		TensorIndices: []int64{1},
		ObjArgs:       []managed.Handle{ctx},
		ObjIndices:    []int64{0},
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if !tensor.Equal(grads[0], mustTensor(t, 4, -6)) {
		t.Fatalf("Expected [4 -6], got %v", grads[0])
	}

	rt.Enter()
	rt.DecRef(ctx)
	rt.Exit()
}

func TestEndToEnd_LookupSuggestion(t *testing.T) {
	_, pool, _ := setup(t)

	_, err := pool.Lookup("sqaure")
	if !stderrors.Is(err, errors.NotFound(errors.PhaseRegistry, "", "")) {
		t.Fatalf("Expected not-found error, got %v", err)
	}
}

func TestEndToEnd_RefcountBalance(t *testing.T) {
	rt, pool, _ := setup(t)

	target, _ := pool.Lookup("square")
	baseline := rt.LiveObjects()

	// Success path: only the retained context survives, and releasing
	// it restores the baseline.
	ctx, _, err := bridge.Forward(rt, &bridge.Call{
		FuncName:      "square",
		Target:        target,
		TensorArgs:    []*tensor.Value{mustTensor(t, 2)},
		TensorIndices: []int64{0},
		TrainingMode:  true,
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if got := rt.LiveObjects(); got != baseline+1 {
		t.Fatalf("Expected %d live objects, got %d", baseline+1, got)
	}
	rt.Enter()
	rt.DecRef(ctx)
	rt.Exit()
	if got := rt.LiveObjects(); got != baseline {
		t.Fatalf("Expected %d live objects after release, got %d", baseline, got)
	}

	// Forced-error path: nothing survives.
	failTarget, _ := pool.Lookup("fail")
	_, _, err = bridge.Forward(rt, &bridge.Call{
		FuncName:      "fail",
		Target:        failTarget,
		TensorArgs:    []*tensor.Value{mustTensor(t, 1)},
		TensorIndices: []int64{0},
		TrainingMode:  true,
		InvokeID:      bridge.NewInvokeID(),
	})
	if err == nil {
		t.Fatal("Expected failure")
	}
	if got := rt.LiveObjects(); got != baseline {
		t.Fatalf("Expected %d live objects after failed call, got %d", baseline, got)
	}
}

func TestEndToEnd_InplaceMapReachesFunction(t *testing.T) {
	rt, _, _ := setup(t)

	seen := make(chan []int64, 1)
	probe := managed.FunctionFunc{
		ForwardFn: func(fc *managed.FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
			seen <- fc.InplaceMap
			return inputs, nil
		},
	}
	target := rt.NewCallable("probe", probe)

	_, _, err := bridge.Forward(rt, &bridge.Call{
		FuncName:      "probe",
		Target:        target,
		TensorArgs:    []*tensor.Value{mustTensor(t, 1)},
		TensorIndices: []int64{0},
		InplaceMap:    []int64{0},
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	got := <-seen
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("Expected inplace map [0], got %v", got)
	}
}

func TestEndToEnd_RequiresGradReachesFunction(t *testing.T) {
	rt, _, _ := setup(t)

	seen := make(chan []bool, 1)
	probe := managed.FunctionFunc{
		ForwardFn: func(fc *managed.FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
			seen <- fc.RequiresGrad
			return inputs, nil
		},
	}
	target := rt.NewCallable("probe", probe)

	_, _, err := bridge.Forward(rt, &bridge.Call{
		FuncName:      "probe",
		Target:        target,
		TensorArgs:    []*tensor.Value{mustTensor(t, 1), mustTensor(t, 2)},
		TensorIndices: []int64{0, 1},
		RequiresGrad:  []bool{true, false},
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	got := <-seen
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("Expected requires-grad [true false], got %v", got)
	}
}
