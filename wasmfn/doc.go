// Package wasmfn hosts differentiable scalar kernels in a WebAssembly
// guest behind the managed.Runtime surface. It demonstrates that the
// bridge is runtime-agnostic: the same marshaling, entry-lock and
// handle-lifetime contract drives a genuinely foreign execution
// environment instead of Go functions.
//
// The guest module is assembled in-process (see GuestModule) and run
// with wazero. Each kernel is a pair of exports, "name" computing the
// forward value and "name_grad" the input gradient, applied elementwise
// over f64-widened tensor storage.
package wasmfn
