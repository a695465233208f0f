// Package torchbridge provides a call bridge between native tensor
// kernels and differentiable functions hosted in a managed runtime, an
// environment with reference-counted object lifetime and a single global
// execution lock.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	torchbridge/
//	├── bridge/          Forward/Backward invocation core: marshaling,
//	│                    entry serialization, handle lifetime guards
//	├── managed/         Runtime capability surface, refcounted heap,
//	│                    lifecycle tracker and the local reference runtime
//	├── registry/        Name -> callable handle pool with retained refs
//	├── wasmfn/          WebAssembly guest runtime (wazero) hosting kernels
//	├── tensor/          Native tensor container and dtype conversion
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Host a function and run one training step:
//
//	rt := managed.NewLocalRuntime()
//	defer rt.Close()
//
//	target := rt.NewCallable("square", &managed.SquareFunction{})
//
//	x, _ := tensor.FromFloat32s([]int64{2}, []float32{2, 3})
//	ctx, out, err := bridge.Forward(rt, &bridge.Call{
//	    FuncName:      "square",
//	    Target:        target,
//	    TensorArgs:    []*tensor.Value{x},
//	    TensorIndices: []int64{0},
//	    RequiresGrad:  []bool{true},
//	    TrainingMode:  true,
//	    InvokeID:      bridge.NewInvokeID(),
//	})
//
// The returned ctx links this forward call to its backward call; pass it
// back through an object slot and release it when done.
//
// # Thread Safety
//
// Any number of goroutines may call Forward/Backward concurrently; the
// bridge serializes them through the runtime's entry lock, so exactly
// one call frame executes inside the runtime at a time. There is no
// fairness guarantee and no timeout: a hang inside the managed runtime
// hangs the calling goroutine.
//
// # Handle Lifetime
//
// Caller-supplied object handles cross the boundary borrowed and are
// never reference-count adjusted. Handles the bridge creates during a
// call are released exactly once when the call exits, on every path.
// The differentiation context returned by Forward is the one exception:
// ownership transfers to the caller, who must release it.
package torchbridge
