package unitofwork

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// lifecycle is the state every unit of work shares regardless of its resource:
// identity, after-commit callbacks, disposing callbacks and the disposed flag
type lifecycle struct {
	id   string
	name string

	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
	disposing   []func() error
	disposed    bool
}

func newLifecycle(name string) lifecycle {
	return lifecycle{id: uuid.NewString(), name: name}
}

// ID returns the unique identifier of the unit of work
func (l *lifecycle) ID() string {
	return l.id
}

// Name returns the optional name given at creation
func (l *lifecycle) Name() string {
	return l.name
}

// RegisterAfterCommitAction queues action to run once the work is really committed
func (l *lifecycle) RegisterAfterCommitAction(action func(ctx context.Context)) {
	if action == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.afterCommit = append(l.afterCommit, action)
}

// IsDisposed reports whether Dispose has run
func (l *lifecycle) IsDisposed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disposed
}

func (l *lifecycle) onDisposing(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposing = append(l.disposing, fn)
}

// takeAfterCommit drains the queued after-commit actions
func (l *lifecycle) takeAfterCommit() []func(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	actions := l.afterCommit
	l.afterCommit = nil
	return actions
}

// markDisposed flips the disposed flag and reports whether this call did it
func (l *lifecycle) markDisposed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return false
	}
	l.disposed = true
	return true
}

// runDisposing runs the disposing callbacks, most recent first
func (l *lifecycle) runDisposing() error {
	l.mu.Lock()
	callbacks := l.disposing
	l.disposing = nil
	l.mu.Unlock()

	var failures []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := callbacks[i](); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func runActions(ctx context.Context, actions []func(ctx context.Context)) {
	for _, action := range actions {
		action(ctx)
	}
}
