// Package bridge is the cross-runtime call boundary: it lets native
// callers invoke differentiable functions hosted by a managed runtime
// with reference-counted objects and a single global entry lock.
//
// Two operations exist. Forward invokes a function's forward entry
// point and returns a differentiation context plus the output tensors;
// Backward consumes that context (passed back through the call's object
// slots) and returns the gradients. All entry into the runtime is
// serialized: the bridge acquires exclusive entry before touching any
// managed object and releases it on every exit path.
//
// Arguments occupy a flat positional slot space shared by tensors and
// opaque object handles; TensorIndices and ObjIndices must partition it
// exactly, which is checked locally before anything crosses the
// boundary. Absent tensor slots marshal as the runtime's None, never as
// a zero tensor. Handles the bridge creates during a call are released
// exactly once when the call exits; caller-supplied object handles are
// borrowed and never adjusted.
//
// The bridge never retries: a failed call surfaces after the entry lock
// is released, and any in-place mutation the callable performed stands.
// There is no timeout either: a hang inside the managed runtime hangs
// the calling goroutine.
package bridge
