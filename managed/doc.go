// Package managed defines the capability surface of a managed runtime,
// the external, single-threaded, reference-counted environment that hosts
// user-defined differentiable functions, and provides a reference
// implementation of it.
//
// The Runtime interface is what the bridge programs against: exclusive
// entry (Enter/Exit), reference-count operations, tensor/array
// conversion, callable invocation and tuple unpacking. Handles are the
// only currency that crosses the boundary; the concrete object types
// stay inside the runtime implementation.
//
// LocalRuntime is the in-process reference runtime. It keeps objects in
// a Heap (reference-counted slots with free-list reuse), serializes
// entry through a single mutex, and hosts Go Function implementations as
// callable objects. A Tracker can be attached to record every
// allocation and reference-count change, which is how the tests assert
// leak-freedom across success and failure paths.
package managed
