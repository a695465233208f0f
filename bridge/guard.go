package bridge

import (
	"github.com/wippyai/torch-bridge/managed"
)

// guard scopes the lifetime of handles the bridge itself creates during
// one call. Every owned handle is released exactly once when the guard
// releases, regardless of how the call exits. A guard must only be used
// while the calling goroutine holds runtime entry, since reference-count
// mutation is only safe inside the protected region.
type guard struct {
	rt    managed.Runtime
	owned []managed.Handle
}

func newGuard(rt managed.Runtime) *guard {
	return &guard{rt: rt}
}

// own takes responsibility for releasing a handle at scope end.
func (g *guard) own(h managed.Handle) managed.Handle {
	g.owned = append(g.owned, h)
	return h
}

// release drops all owned handles in reverse acquisition order. Safe to
// call once; the guard is dead afterwards.
func (g *guard) release() {
	for i := len(g.owned) - 1; i >= 0; i-- {
		g.rt.DecRef(g.owned[i])
	}
	g.owned = nil
}
