package unitofwork

import (
	"context"
	"reflect"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/scope"
)

// Provider creates units of work for one kind of resource.
// Units of work created by the same provider share handles; units from different
// providers never do, even when the handle types match.
type Provider[H persistence.ResourceHandle] struct {
	registry    *scope.Registry
	factory     persistence.HandleFactory[H]
	logger      core.Logger
	defaultMode Mode
}

// ProviderOption configures a Provider
type ProviderOption func(*providerOptions)

type providerOptions struct {
	defaultMode Mode
}

// WithDefaultMode sets the mode used when Options.Mode is ModeDefault
func WithDefaultMode(mode Mode) ProviderOption {
	return func(o *providerOptions) {
		if mode != ModeDefault {
			o.defaultMode = mode
		}
	}
}

// NewProvider creates a provider that builds owned handles with factory
func NewProvider[H persistence.ResourceHandle](registry *scope.Registry, factory persistence.HandleFactory[H], logger core.Logger, opts ...ProviderOption) *Provider[H] {
	options := providerOptions{defaultMode: ReuseParentContext}
	for _, opt := range opts {
		opt(&options)
	}

	return &Provider[H]{
		registry:    registry,
		factory:     factory,
		logger:      logger,
		defaultMode: options.defaultMode,
	}
}

// Registry returns the scope registry the provider pushes onto
func (p *Provider[H]) Registry() *scope.Registry {
	return p.registry
}

// Create starts a unit of work in the provider's default mode.
// The returned context carries the new scope and must be used for nested work.
func (p *Provider[H]) Create(ctx context.Context) (context.Context, *UnitOfWork[H]) {
	return p.CreateWithOptions(ctx, Options{})
}

// CreateWithOptions starts a unit of work with explicit options
func (p *Provider[H]) CreateWithOptions(ctx context.Context, options Options) (context.Context, *UnitOfWork[H]) {
	mode := options.Mode
	if mode == ModeDefault {
		mode = p.defaultMode
	}

	u := &UnitOfWork[H]{
		lifecycle: newLifecycle(options.Name),
		provider:  p,
		logger:    p.logger,
	}
	if mode == ReuseParentContext {
		if owner, ok := p.nearest(ctx); ok {
			u.owner = owner.Root()
		}
	}

	scopeCtx := p.registry.Register(ctx, u)
	u.onDisposing(func() error {
		return p.registry.Unregister(scopeCtx, u)
	})

	p.logger.Debug("Unit of work created", map[string]any{
		"unit_of_work": u.id,
		"name":         u.name,
		"mode":         mode.String(),
		"owns":         u.OwnsResource(),
		"depth":        p.registry.Depth(scopeCtx),
	})
	return scopeCtx, u
}

// nearest walks the scope stack for the innermost live unit of work of this provider
func (p *Provider[H]) nearest(ctx context.Context) (*UnitOfWork[H], bool) {
	for level := 0; ; level++ {
		current, ok := p.registry.Current(ctx, level)
		if !ok {
			return nil, false
		}
		u, ok := current.(*UnitOfWork[H])
		if !ok || u.provider != p || u.IsDisposed() {
			continue
		}
		return u, true
	}
}

// Current returns the unit of work level scopes below the innermost one, of any provider
func (p *Provider[H]) Current(ctx context.Context, level int) (persistence.UnitOfWork, bool) {
	return p.registry.Current(ctx, level)
}

// Nearest returns the innermost live unit of work created by this provider
func (p *Provider[H]) Nearest(ctx context.Context) (*UnitOfWork[H], bool) {
	return p.nearest(ctx)
}

// Handle returns the handle of the innermost unit of work created by this provider
//
// Possible errors:
// - ErrOutsideUnitOfWork: If no unit of work of this provider is active in ctx
func (p *Provider[H]) Handle(ctx context.Context) (H, error) {
	u, ok := p.nearest(ctx)
	if !ok {
		var zero H
		return zero, errs.NewOutsideUnitOfWorkError(reflect.TypeFor[H]().String())
	}
	return u.Handle(ctx)
}
