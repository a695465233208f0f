package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/managed"
	"github.com/wippyai/torch-bridge/tensor"
)

// Bridge invokes custom functions hosted by a managed runtime. It is
// stateless between calls: every invocation marshals its own frame under
// runtime entry, invokes, unmarshals, and releases everything it created
// before returning. Safe for concurrent use; concurrent calls serialize
// through the runtime's entry lock. Not reentrant: a callable must not
// call back into the bridge on the same runtime.
type Bridge struct {
	log *zap.Logger
}

// Config configures a Bridge.
type Config struct {
	// Logger overrides the package logger for this instance.
	Logger *zap.Logger
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	return &Bridge{log: log}
}

var (
	defaultBridge *Bridge
	defaultOnce   sync.Once
)

// Default returns the process-wide bridge, created on first use. There
// is no teardown; ordering against other process-wide state at shutdown
// is not guaranteed.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = New(Config{})
	})
	return defaultBridge
}

// Forward invokes a function's forward entry point on the default
// bridge.
func Forward(rt managed.Runtime, call *Call) (managed.Handle, []*tensor.Value, error) {
	return Default().Forward(rt, call)
}

// Backward invokes a function's backward entry point on the default
// bridge.
func Backward(rt managed.Runtime, call *Call) ([]*tensor.Value, error) {
	return Default().Backward(rt, call)
}

// Forward marshals the call, invokes the forward entry point under
// runtime entry, and returns the differentiation context plus the
// outputs. The returned context handle is owned by the caller, who must
// release it (or pass it to Backward and then release it). In eval mode
// the context is the runtime's None handle.
func (b *Bridge) Forward(rt managed.Runtime, call *Call) (managed.Handle, []*tensor.Value, error) {
	if err := call.validate(true); err != nil {
		return 0, nil, err
	}
	b.log.Debug("forward",
		zap.String("func", call.FuncName),
		zap.String("invoke_id", call.InvokeID))

	rt.Enter()
	defer rt.Exit()

	g := newGuard(rt)
	defer g.release()

	frame, err := b.marshal(rt, g, call, true)
	if err != nil {
		return 0, nil, err
	}

	ret, err := rt.Invoke(call.Target, managed.EntryForward, frame)
	if err != nil {
		b.log.Debug("forward failed",
			zap.String("func", call.FuncName),
			zap.String("invoke_id", call.InvokeID),
			zap.Error(err))
		return 0, nil, errors.Invocation(call.FuncName, call.InvokeID, err)
	}
	g.own(ret)

	n, err := rt.TupleLen(ret)
	if err != nil || n < 1 {
		return 0, nil, errors.ResultConversion(call.FuncName, call.InvokeID, -1,
			errors.Wrap(errors.PhaseUnmarshal, errors.KindResultConversion, err,
				"forward result carries no context slot"))
	}

	out := make([]*tensor.Value, 0, n-1)
	for i := 1; i < n; i++ {
		item, err := rt.TupleItem(ret, i)
		if err != nil {
			return 0, nil, errors.ResultConversion(call.FuncName, call.InvokeID, i-1, err)
		}
		v, err := rt.ToTensor(item)
		if err != nil {
			return 0, nil, errors.ResultConversion(call.FuncName, call.InvokeID, i-1, err)
		}
		out = append(out, v)
	}

	ctx, err := rt.TupleItem(ret, 0)
	if err != nil {
		return 0, nil, errors.ResultConversion(call.FuncName, call.InvokeID, -1, err)
	}
	// Transfer context ownership to the caller before the guard drops
	// the result tuple.
	rt.IncRef(ctx)
	return ctx, out, nil
}

// Backward marshals the call, invokes the backward entry point under
// runtime entry, and returns the gradient outputs. The matching
// differentiation context travels in the call's object slots; the bridge
// holds no state between a Forward and its Backward.
func (b *Bridge) Backward(rt managed.Runtime, call *Call) ([]*tensor.Value, error) {
	if err := call.validate(false); err != nil {
		return nil, err
	}
	b.log.Debug("backward",
		zap.String("func", call.FuncName),
		zap.String("invoke_id", call.InvokeID))

	rt.Enter()
	defer rt.Exit()

	g := newGuard(rt)
	defer g.release()

	frame, err := b.marshal(rt, g, call, false)
	if err != nil {
		return nil, err
	}

	ret, err := rt.Invoke(call.Target, managed.EntryBackward, frame)
	if err != nil {
		b.log.Debug("backward failed",
			zap.String("func", call.FuncName),
			zap.String("invoke_id", call.InvokeID),
			zap.Error(err))
		return nil, errors.Invocation(call.FuncName, call.InvokeID, err)
	}
	g.own(ret)

	n, err := rt.TupleLen(ret)
	if err != nil {
		return nil, errors.ResultConversion(call.FuncName, call.InvokeID, -1, err)
	}

	out := make([]*tensor.Value, 0, n)
	for i := 0; i < n; i++ {
		item, err := rt.TupleItem(ret, i)
		if err != nil {
			return nil, errors.ResultConversion(call.FuncName, call.InvokeID, i, err)
		}
		v, err := rt.ToTensor(item)
		if err != nil {
			return nil, errors.ResultConversion(call.FuncName, call.InvokeID, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// marshal projects the call's flat positional slots into a frame, in a
// single pass over the combined index space. Tensor slots become array
// objects owned by the guard (absent slots become None); object slots
// pass through borrowed. The caller holds runtime entry.
func (b *Bridge) marshal(rt managed.Runtime, g *guard, call *Call, forward bool) (*managed.Frame, error) {
	n := len(call.TensorIndices) + len(call.ObjIndices)

	tensorAt := make(map[int64]int, len(call.TensorIndices))
	for ord, idx := range call.TensorIndices {
		tensorAt[idx] = ord
	}
	objAt := make(map[int64]int, len(call.ObjIndices))
	for ord, idx := range call.ObjIndices {
		objAt[idx] = ord
	}

	args := make([]managed.Handle, n)
	for i := int64(0); i < int64(n); i++ {
		if ord, ok := tensorAt[i]; ok {
			v := call.TensorArgs[ord]
			if v == nil {
				args[i] = rt.None()
				continue
			}
			h, err := rt.FromTensor(v)
			if err != nil {
				return nil, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
					Func(call.FuncName).
					InvokeID(call.InvokeID).
					Index(int(i)).
					Cause(err).
					Detail("tensor slot rejected by runtime").
					Build()
			}
			args[i] = g.own(h)
			continue
		}
		args[i] = call.ObjArgs[objAt[i]]
	}

	frame := &managed.Frame{
		FuncName:    call.FuncName,
		InvokeID:    call.InvokeID,
		Args:        args,
		TensorSlots: call.TensorIndices,
		InplaceMap:  call.InplaceMap,
	}
	if forward {
		frame.RequiresGrad = call.RequiresGrad
		frame.TrainingMode = call.TrainingMode
	}
	return frame, nil
}
