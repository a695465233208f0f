// Package registry implements the custom-function pool: the mapping from
// function names to the callable handles that implement them inside a
// managed runtime. The pool retains a reference on every stored handle
// and releases it on unregistration or close.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/wippyai/torch-bridge/errors"
	"github.com/wippyai/torch-bridge/managed"
)

// Pool maps function names to callable handles. Safe for concurrent use.
type Pool struct {
	rt    managed.Runtime
	funcs map[string]managed.Handle
	mu    sync.RWMutex
}

// NewPool creates an empty pool bound to a runtime. The pool uses the
// runtime only for reference-count management of stored handles.
func NewPool(rt managed.Runtime) *Pool {
	return &Pool{
		rt:    rt,
		funcs: make(map[string]managed.Handle),
	}
}

// Register stores a callable handle under a name, retaining a reference.
// Duplicate names are rejected.
func (p *Pool) Register(name string, callable managed.Handle) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegistry, "function name cannot be empty")
	}
	if callable == 0 {
		return errors.InvalidInput(errors.PhaseRegistry, "callable handle cannot be zero")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.funcs[name]; ok {
		return errors.Duplicate("function", name)
	}

	p.rt.Enter()
	p.rt.IncRef(callable)
	p.rt.Exit()

	p.funcs[name] = callable
	return nil
}

// Lookup resolves a name to its callable handle. A miss suggests the
// closest registered name when one is plausibly a typo.
func (p *Pool) Lookup(name string) (managed.Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if h, ok := p.funcs[name]; ok {
		return h, nil
	}

	err := errors.NotFound(errors.PhaseRegistry, "function", name)
	if suggestion := p.closest(name); suggestion != "" {
		err.Detail = fmt.Sprintf("%s (did you mean %q?)", err.Detail, suggestion)
	}
	return 0, err
}

// Unregister removes a name and releases the pool's reference on its
// handle.
func (p *Pool) Unregister(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.funcs[name]
	if !ok {
		return errors.NotFound(errors.PhaseRegistry, "function", name)
	}
	delete(p.funcs, name)

	p.rt.Enter()
	p.rt.DecRef(h)
	p.rt.Exit()
	return nil
}

// Names returns the registered function names, sorted.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.funcs))
	for name := range p.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.funcs)
}

// Close releases all retained references and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rt.Enter()
	for _, h := range p.funcs {
		p.rt.DecRef(h)
	}
	p.rt.Exit()

	p.funcs = make(map[string]managed.Handle)
	return nil
}

// closest returns the registered name nearest to the query, or "" when
// nothing is within editing distance. Caller holds at least a read lock.
func (p *Pool) closest(name string) string {
	best := ""
	bestDist := 0
	for candidate := range p.funcs {
		d := levenshtein.ComputeDistance(name, candidate)
		if best == "" || d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	// A suggestion further than half the query length is noise.
	if best == "" || bestDist > len(name)/2+1 {
		return ""
	}
	return best
}
