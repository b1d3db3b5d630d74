package container

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the bindings of one subsystem.
//
// Register is called when the provider is added (or, for deferred providers,
// on first use). Boot is called after ALL providers have been registered,
// making it safe to resolve other bindings there.
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("orders", newOrderService, container.DependsOn("db"))
//	}
//
//	func (p *AppServiceProvider) Boot(ctx context.Context, app *container.Container) error {
//	    _, err := app.Make(ctx, "orders")
//	    return err
//	}
type ServiceProvider interface {
	// Register binds services into the container.
	// Do NOT resolve other bindings here; use Boot for that.
	Register(app *Container)

	// Boot is called after all providers are registered.
	Boot(ctx context.Context, app *Container) error

	// Provides returns the names a deferred provider registers.
	Provides() []string

	// IsDeferred returns true if this provider should be loaded lazily,
	// only when one of its Provides() names is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with no-op Boot, Provides and
// IsDeferred.
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }
func (p *BaseProvider) Provides() []string                     { return nil }
func (p *BaseProvider) IsDeferred() bool                       { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred (lazy) providers.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[string]ServiceProvider // name → provider
	registered map[ServiceProvider]bool
	loaded     map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		deferred:   make(map[string]ServiceProvider),
		registered: make(map[ServiceProvider]bool),
		loaded:     make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register method, unless it is
// deferred. A provider added after Boot is booted immediately.
func (r *ProviderRegistry) Register(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, name := range provider.Provides() {
			r.deferred[name] = provider
		}
		r.mu.Unlock()
		r.interceptDeferred(provider)
		return nil
	}
	r.mu.Unlock()

	return r.load(ctx, provider)
}

// interceptDeferred installs a placeholder for each deferred name. The first
// Make of any of them registers the provider for real.
func (r *ProviderRegistry) interceptDeferred(provider ServiceProvider) {
	for _, name := range provider.Provides() {
		abs := name
		r.app.bindDeferred(abs, func(ctx context.Context, c *Container) (any, error) {
			if err := r.load(ctx, provider); err != nil {
				return nil, err
			}
			if c.isDeferredPlaceholder(c.reg.CanonicalName(abs)) {
				return nil, fmt.Errorf("container: deferred provider %T did not register [%s]", provider, abs)
			}
			return c.Make(ctx, abs)
		})
	}
}

// load registers provider once, booting it if the registry already booted.
func (r *ProviderRegistry) load(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	if r.loaded[provider] {
		r.mu.Unlock()
		return nil
	}
	r.loaded[provider] = true
	for _, name := range provider.Provides() {
		delete(r.deferred, name)
	}
	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	provider.Register(r.app)
	if booted {
		return bootProvider(ctx, r.app, provider)
	}
	return nil
}

// Boot calls Boot on every loaded provider. Must be called after ALL
// providers have been registered. Later calls are no-ops.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := append([]ServiceProvider(nil), r.eager...)
	r.mu.Unlock()

	for _, provider := range providers {
		if err := bootProvider(ctx, r.app, provider); err != nil {
			return err
		}
	}
	return nil
}

func bootProvider(ctx context.Context, app *Container, provider ServiceProvider) error {
	if err := provider.Boot(ctx, app); err != nil {
		return fmt.Errorf("container: booting %T: %w", provider, err)
	}
	return nil
}

// Booted returns true if Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the loaded providers in load order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// DeferredServices returns the names still waiting on a deferred provider.
func (r *ProviderRegistry) DeferredServices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deferred))
	for name := range r.deferred {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
