package wasmfn

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/managed"
	"github.com/wippyai/torch-bridge/tensor"
)

// Runtime is a managed runtime whose differentiable kernels execute in a
// WebAssembly guest. Objects live in the same heap discipline as the
// local runtime; only the arithmetic crosses into the guest, one scalar
// at a time. A wasm instance is single-threaded, so the inherited entry
// lock is what makes guest calls safe, the same property the global
// lock models for an interpreter.
type Runtime struct {
	*managed.LocalRuntime

	wazero  wazero.Runtime
	mod     api.Module
	callCtx context.Context
}

// Option configures a Runtime.
type Option func(*config)

type config struct {
	tracker managed.Observer
}

// WithTracker attaches a heap lifecycle observer.
func WithTracker(o managed.Observer) Option {
	return func(c *config) { c.tracker = o }
}

// New compiles and instantiates the guest module.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, GuestModule())
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "guest module instantiation failed")
	}

	var localOpts []managed.LocalOption
	if cfg.tracker != nil {
		localOpts = append(localOpts, managed.WithTracker(cfg.tracker))
	}

	return &Runtime{
		LocalRuntime: managed.NewLocalRuntime(localOpts...),
		wazero:       r,
		mod:          mod,
		callCtx:      ctx,
	}, nil
}

// NewKernelCallable hosts the guest kernel pair "name"/"name_grad" as a
// callable object and returns an owned handle to it.
func (rt *Runtime) NewKernelCallable(name string) (managed.Handle, error) {
	fwd := rt.mod.ExportedFunction(name)
	if fwd == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "guest kernel", name)
	}
	bwd := rt.mod.ExportedFunction(name + "_grad")
	if bwd == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "guest kernel", name+"_grad")
	}
	return rt.NewCallable(name, &kernelFunction{
		name: name,
		ctx:  rt.callCtx,
		fwd:  fwd,
		bwd:  bwd,
	}), nil
}

// Kernels returns the names of the guest's forward kernels.
func (rt *Runtime) Kernels() []string {
	var names []string
	for _, k := range guestKernels() {
		if k.params == 1 {
			names = append(names, k.name)
		}
	}
	return names
}

// Close tears down the guest instance and the heap.
func (rt *Runtime) Close() error {
	err := rt.wazero.Close(rt.callCtx)
	if lerr := rt.LocalRuntime.Close(); err == nil {
		err = lerr
	}
	return err
}

// kernelFunction applies a scalar guest kernel elementwise. Runs with
// runtime entry held, which also serializes access to the single
// wasm instance.
type kernelFunction struct {
	name string
	ctx  context.Context
	fwd  api.Function
	bwd  api.Function
}

func (k *kernelFunction) Forward(fc *managed.FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, k.name+": expects exactly one present tensor argument")
	}
	x := inputs[0]
	vals, err := x.Float64s()
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(vals))
	for i, v := range vals {
		res, err := k.fwd.Call(k.ctx, api.EncodeF64(v))
		if err != nil {
			return nil, fmt.Errorf("guest %s at element %d: %w", k.name, i, err)
		}
		out[i] = api.DecodeF64(res[0])
	}

	if fc.TrainingMode {
		fc.SaveForBackward(x)
	}
	y, err := tensor.FromFloat64s(x.DType(), x.Shape(), out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{y}, nil
}

func (k *kernelFunction) Backward(fc *managed.FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	if len(grads) != 1 || grads[0] == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, k.name+" backward: expects exactly one present gradient")
	}
	saved := fc.Saved()
	if len(saved) != 1 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, k.name+" backward: no saved input")
	}

	x, err := saved[0].Float64s()
	if err != nil {
		return nil, err
	}
	g, err := grads[0].Float64s()
	if err != nil {
		return nil, err
	}
	if len(x) != len(g) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindShapeMismatch).
			Detail("%s backward: %d saved elements vs %d gradient elements", k.name, len(x), len(g)).
			Build()
	}

	out := make([]float64, len(x))
	for i := range x {
		res, err := k.bwd.Call(k.ctx, api.EncodeF64(x[i]), api.EncodeF64(g[i]))
		if err != nil {
			return nil, fmt.Errorf("guest %s_grad at element %d: %w", k.name, i, err)
		}
		out[i] = api.DecodeF64(res[0])
	}

	dx, err := tensor.FromFloat64s(grads[0].DType(), grads[0].Shape(), out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{dx}, nil
}
