package managed

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	bridgeerrors "github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/tensor"
)

// Builtins returns the sample differentiable functions the reference
// runtime ships: elementwise square, scale and add, an echo function that
// returns its inputs unchanged, and a function that always fails.
func Builtins() map[string]Function {
	return map[string]Function{
		"square": &SquareFunction{},
		"scale":  &ScaleFunction{Factor: 2},
		"add":    &AddFunction{},
		"echo":   &EchoFunction{},
		"fail":   &FailFunction{Message: "intentional failure"},
	}
}

// SquareFunction computes y = x*x elementwise. Backward is dx = 2*x*g,
// using the input saved during forward.
type SquareFunction struct{}

func (f *SquareFunction) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	x, err := singleInput("square", inputs)
	if err != nil {
		return nil, err
	}
	vals, err := x.Float64s()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	floats.MulTo(out, vals, vals)

	if fc.TrainingMode {
		fc.SaveForBackward(x)
	}
	y, err := tensor.FromFloat64s(x.DType(), x.Shape(), out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{y}, nil
}

func (f *SquareFunction) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	g, err := singleInput("square backward", grads)
	if err != nil {
		return nil, err
	}
	saved := fc.Saved()
	if len(saved) != 1 {
		return nil, errors.New("square backward: no saved input")
	}
	x, err := saved[0].Float64s()
	if err != nil {
		return nil, err
	}
	gv, err := g.Float64s()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	floats.MulTo(out, x, gv)
	floats.Scale(2, out)

	dx, err := tensor.FromFloat64s(g.DType(), g.Shape(), out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{dx}, nil
}

// ScaleFunction computes y = Factor*x elementwise.
type ScaleFunction struct {
	Factor float64
}

func (f *ScaleFunction) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	x, err := singleInput("scale", inputs)
	if err != nil {
		return nil, err
	}
	vals, err := x.Float64s()
	if err != nil {
		return nil, err
	}
	floats.Scale(f.Factor, vals)
	y, err := tensor.FromFloat64s(x.DType(), x.Shape(), vals)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{y}, nil
}

func (f *ScaleFunction) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	g, err := singleInput("scale backward", grads)
	if err != nil {
		return nil, err
	}
	vals, err := g.Float64s()
	if err != nil {
		return nil, err
	}
	floats.Scale(f.Factor, vals)
	dx, err := tensor.FromFloat64s(g.DType(), g.Shape(), vals)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{dx}, nil
}

// AddFunction computes y = a + b elementwise. Backward passes the output
// gradient through to both inputs.
type AddFunction struct{}

func (f *AddFunction) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	if len(inputs) != 2 || inputs[0] == nil || inputs[1] == nil {
		return nil, errors.New("add: expects exactly two present tensor arguments")
	}
	a, err := inputs[0].Float64s()
	if err != nil {
		return nil, err
	}
	b, err := inputs[1].Float64s()
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, bridgeerrors.New(bridgeerrors.PhaseRuntime, bridgeerrors.KindShapeMismatch).
			Detail("add: %d elements vs %d", len(a), len(b)).
			Build()
	}
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	y, err := tensor.FromFloat64s(inputs[0].DType(), inputs[0].Shape(), out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{y}, nil
}

func (f *AddFunction) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	g, err := singleInput("add backward", grads)
	if err != nil {
		return nil, err
	}
	return []*tensor.Value{g.Clone(), g.Clone()}, nil
}

// EchoFunction returns its tensor inputs unchanged, absent slots
// included. Used to verify the marshaling round trip.
type EchoFunction struct{}

func (f *EchoFunction) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	return inputs, nil
}

func (f *EchoFunction) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	return grads, nil
}

// FailFunction fails every invocation. Used to verify error propagation
// and lock release on the failure path.
type FailFunction struct {
	Message string
}

func (f *FailFunction) Forward(fc *FunctionContext, inputs []*tensor.Value) ([]*tensor.Value, error) {
	return nil, errors.New(f.Message)
}

func (f *FailFunction) Backward(fc *FunctionContext, grads []*tensor.Value) ([]*tensor.Value, error) {
	return nil, errors.New(f.Message)
}

func singleInput(what string, vals []*tensor.Value) (*tensor.Value, error) {
	if len(vals) != 1 || vals[0] == nil {
		return nil, bridgeerrors.InvalidInput(bridgeerrors.PhaseRuntime, what+": expects exactly one present tensor argument")
	}
	return vals[0], nil
}
