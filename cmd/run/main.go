package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/torch-bridge/bridge"
	"github.com/wippyai/torch-bridge/managed"
	"github.com/wippyai/torch-bridge/registry"
	"github.com/wippyai/torch-bridge/tensor"
	"github.com/wippyai/torch-bridge/wasmfn"
)

func main() {
	var (
		backend     = flag.String("backend", "local", "Runtime backend: local or wasm")
		funcName    = flag.String("func", "", "Function to call")
		inputs      = flag.String("in", "", "Comma-separated input values")
		grads       = flag.String("grad", "", "Comma-separated output gradients (defaults to ones)")
		evalMode    = flag.Bool("eval", false, "Run forward in eval mode (no backward)")
		list        = flag.Bool("list", false, "List registered functions and exit")
		stress      = flag.Int("stress", 0, "Drive N concurrent workers through the selected function")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	if *verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		bridge.SetLogger(log)
	}

	rt, pool, err := buildRuntime(*backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s runtime: %v\n", *backend, err)
		os.Exit(1)
	}
	defer rt.Close()
	defer pool.Close()

	if *list {
		for _, name := range pool.Names() {
			fmt.Println(name)
		}
		return
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(rt, pool); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *funcName == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -func <name> -in 1,2,3 [-grad 1,1,1] [-backend local|wasm] [-stress N] [-list] [-i]")
		os.Exit(1)
	}

	in, err := parseValues(*inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad -in: %v\n", err)
		os.Exit(1)
	}

	if *stress > 0 {
		if err := runStress(rt, pool, *funcName, in, *stress); err != nil {
			fmt.Fprintf(os.Stderr, "Stress run failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	out, grad, err := roundTrip(rt, pool, *funcName, in, *grads, !*evalMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("forward:  %s\n", formatOutputs(out))
	if grad != nil {
		fmt.Printf("backward: %s\n", formatOutputs(grad))
	}
}

// runtimeHandle is the common surface of the two backends.
type runtimeHandle interface {
	managed.Runtime
	MaxEntryDepth() int32
}

func buildRuntime(backend string) (runtimeHandle, *registry.Pool, error) {
	switch backend {
	case "local":
		rt := managed.NewLocalRuntime()
		pool := registry.NewPool(rt)
		for name, fn := range managed.Builtins() {
			h := rt.NewCallable(name, fn)
			if err := pool.Register(name, h); err != nil {
				return nil, nil, err
			}
			rt.Enter()
			rt.DecRef(h)
			rt.Exit()
		}
		return rt, pool, nil

	case "wasm":
		rt, err := wasmfn.New(context.Background())
		if err != nil {
			return nil, nil, err
		}
		pool := registry.NewPool(rt)
		for _, name := range rt.Kernels() {
			h, err := rt.NewKernelCallable(name)
			if err != nil {
				return nil, nil, err
			}
			if err := pool.Register(name, h); err != nil {
				return nil, nil, err
			}
			rt.Enter()
			rt.DecRef(h)
			rt.Exit()
		}
		return rt, pool, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want local or wasm)", backend)
	}
}

// roundTrip runs a forward call and, in training mode, the matching
// backward with the supplied (or all-ones) output gradient.
func roundTrip(rt managed.Runtime, pool *registry.Pool, funcName string, in []float32, gradSpec string, training bool) ([]*tensor.Value, []*tensor.Value, error) {
	target, err := pool.Lookup(funcName)
	if err != nil {
		return nil, nil, err
	}

	x, err := tensor.FromFloat32s([]int64{int64(len(in))}, in)
	if err != nil {
		return nil, nil, err
	}

	ctx, out, err := bridge.Forward(rt, &bridge.Call{
		FuncName:      funcName,
		Target:        target,
		TensorArgs:    []*tensor.Value{x},
		TensorIndices: []int64{0},
		RequiresGrad:  []bool{true},
		TrainingMode:  training,
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		return nil, nil, err
	}
	if !training {
		return out, nil, nil
	}
	defer func() {
		rt.Enter()
		rt.DecRef(ctx)
		rt.Exit()
	}()

	gvals := make([]float32, len(in))
	for i := range gvals {
		gvals[i] = 1
	}
	if gradSpec != "" {
		if gvals, err = parseValues(gradSpec); err != nil {
			return nil, nil, fmt.Errorf("bad gradient: %w", err)
		}
	}
	g, err := tensor.FromFloat32s([]int64{int64(len(gvals))}, gvals)
	if err != nil {
		return nil, nil, err
	}

	grad, err := bridge.Backward(rt, &bridge.Call{
		FuncName:      funcName,
		Target:        target,
		TensorArgs:    []*tensor.Value{g},
		TensorIndices: []int64{1},
		ObjArgs:       []managed.Handle{ctx},
		ObjIndices:    []int64{0},
		InvokeID:      bridge.NewInvokeID(),
	})
	if err != nil {
		return nil, nil, err
	}
	return out, grad, nil
}

func runStress(rt runtimeHandle, pool *registry.Pool, funcName string, in []float32, workers int) error {
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				if _, _, err := roundTrip(rt, pool, funcName, in, "", true); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("%d workers x 100 round trips ok, max entry depth %d\n", workers, rt.MaxEntryDepth())
	return nil
}

func parseValues(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no values given")
	}
	parts := strings.Split(s, ",")
	vals := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		vals[i] = float32(f)
	}
	return vals, nil
}

func formatOutputs(outs []*tensor.Value) string {
	parts := make([]string, len(outs))
	for i, out := range outs {
		if out == nil {
			parts[i] = "<absent>"
			continue
		}
		vals, err := out.Float32s()
		if err != nil {
			parts[i] = out.String()
			continue
		}
		strs := make([]string, len(vals))
		for j, v := range vals {
			strs[j] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		parts[i] = "[" + strings.Join(strs, " ") + "]"
	}
	return strings.Join(parts, " ")
}
