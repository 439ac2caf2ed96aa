// Package scope keeps the stack of active units of work for one logical flow of execution.
//
// The stack travels in a context.Context rather than in goroutine-local state, so a flow
// that hops goroutines keeps its scopes as long as it passes its context along.
// Each Register returns a context holding a new frame that points to its parent, so two
// goroutines that register from the same context grow separate branches and never see
// each other's scopes.
package scope

import (
	"context"
	"slices"
	"sync"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
)

type contextKey struct {
	name string
}

// frame is one registered scope. Frames are never copied; popping only flags them.
type frame struct {
	unit     persistence.UnitOfWork
	parent   *frame
	children []*frame // live frames registered directly on top of this one
	popped   bool
}

// Registry pushes and pops units of work on context-scoped stacks
type Registry struct {
	key *contextKey
	mu  sync.RWMutex
}

// NewRegistry creates a registry with its own context slot.
// Providers that must see each other's scopes have to share one registry.
func NewRegistry() *Registry {
	return &Registry{key: &contextKey{name: "workscope.scope"}}
}

func (r *Registry) frameFrom(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(r.key).(*frame)
	return f
}

// live skips popped frames; caller holds r.mu
func live(f *frame) *frame {
	for f != nil && f.popped {
		f = f.parent
	}
	return f
}

// depthOf counts the live frames from f down; caller holds r.mu
func depthOf(f *frame) int {
	depth := 0
	for f = live(f); f != nil; f = live(f.parent) {
		depth++
	}
	return depth
}

// innermost follows the most recent live child until it reaches a leaf; caller holds r.mu
func innermost(f *frame) *frame {
	for len(f.children) > 0 {
		f = f.children[len(f.children)-1]
	}
	return f
}

// Register pushes u on top of the stack carried by ctx and returns a context carrying the
// new top. ctx itself is left unchanged.
func (r *Registry) Register(ctx context.Context, u persistence.UnitOfWork) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	parent := live(r.frameFrom(ctx))
	f := &frame{unit: u, parent: parent}
	if parent != nil {
		parent.children = append(parent.children, f)
	}
	r.mu.Unlock()

	return context.WithValue(ctx, r.key, f)
}

// Unregister pops u from the stack carried by ctx.
// It fails without touching the stack when scopes registered on top of u are still active.
// After a pop, enclosing scopes whose unit of work was already disposed out of order are
// popped as well, since nothing else can pop them any more.
func (r *Registry) Unregister(ctx context.Context, u persistence.UnitOfWork) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	top := r.frameFrom(ctx)
	f := top
	for f != nil && f.unit != u {
		f = f.parent
	}

	if f == nil || f.popped {
		actual, depth := "", 0
		if t := live(top); t != nil {
			actual, depth = t.unit.ID(), depthOf(t)
		}
		return errs.NewScopeOrderError(u.ID(), actual, depth)
	}

	if len(f.children) > 0 {
		inner := innermost(f)
		return errs.NewScopeOrderError(u.ID(), inner.unit.ID(), depthOf(inner))
	}

	for {
		f.popped = true
		parent := f.parent
		if parent == nil {
			return nil
		}
		parent.children = slices.DeleteFunc(parent.children, func(c *frame) bool { return c == f })
		if parent.popped || len(parent.children) > 0 || !parent.unit.IsDisposed() {
			return nil
		}
		f = parent
	}
}

// Current returns the unit of work level scopes below the top; level 0 is the innermost one
func (r *Registry) Current(ctx context.Context, level int) (persistence.UnitOfWork, bool) {
	if level < 0 {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f := live(r.frameFrom(ctx))
	for ; f != nil && level > 0; level-- {
		f = live(f.parent)
	}
	if f == nil {
		return nil, false
	}
	return f.unit, true
}

// Depth returns the number of active scopes in ctx
func (r *Registry) Depth(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return depthOf(r.frameFrom(ctx))
}
