package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-lifecycle/framework/registry"
)

// ProducerPrefix in front of a name asks for the registered Producer itself
// rather than the object it produces.
const ProducerPrefix = "&"

// ── Binding types ─────────────────────────────────────────────────────────────

// Factory builds a value. ctx identifies the construction chain and must be
// passed to every Make the factory performs.
type Factory func(ctx context.Context, c *Container) (any, error)

// WiringFunc completes an instance after its factory allocated it. While it
// runs, the instance is already visible to its own construction chain.
type WiringFunc func(ctx context.Context, c *Container, instance any) error

// Extender decorates a resolved instance.
type Extender func(ctx context.Context, instance any, c *Container) (any, error)

// Disposer is implemented by instances that release resources on shutdown.
type Disposer interface {
	Dispose() error
}

type binding struct {
	factory   Factory
	shared    bool
	dependsOn []string
	wiring    WiringFunc
	destroy   func(any) error

	// placeholder installed for a deferred provider
	deferred bool
}

// BindingOption configures a binding.
type BindingOption func(*binding)

// DependsOn makes the listed names resolve before this binding's factory
// runs. They are torn down after it.
func DependsOn(names ...string) BindingOption {
	return func(b *binding) { b.dependsOn = append(b.dependsOn, names...) }
}

// WithWiring splits construction in two: the factory allocates, then fn
// wires. Two singletons that need each other can be built this way.
func WithWiring(fn WiringFunc) BindingOption {
	return func(b *binding) { b.wiring = fn }
}

// WithDestroy sets the teardown for a singleton, replacing the automatic
// io.Closer / Disposer detection.
func WithDestroy(fn func(instance any) error) BindingOption {
	return func(b *binding) { b.destroy = fn }
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the IoC container.
//
// Shared bindings live in a registry.Registry, which owns their construction,
// aliases, dependency edges and teardown. The container adds named factories,
// tags, extenders, contextual bindings and resolution callbacks on top.
type Container struct {
	mu sync.RWMutex

	reg    *registry.Registry
	logger *slog.Logger

	// whether WithWiring bindings expose early references
	allowCircular bool

	// name → binding
	bindings map[string]*binding

	// name → extender funcs
	extenders map[string][]Extender

	// tag → names
	tags map[string][]string

	// contextual: when[concrete][needs] = factory
	contextual map[string]map[string]Factory

	// name → rebound callbacks
	reboundCallbacks map[string][]func(any)

	afterResolving []func(string, any)
}

// Option configures a Container.
type Option func(*Container)

// WithRegistry makes the container manage its singletons in reg.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Container) { c.reg = reg }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCircularReferences controls whether singletons built WithWiring are
// visible to their own construction chain before wiring completes. When
// disabled, a cycle through such a singleton fails with
// registry.CurrentlyInCreationError. Enabled by default.
func WithCircularReferences(allow bool) Option {
	return func(c *Container) { c.allowCircular = allow }
}

// New creates a container. Unless WithRegistry is given it gets a registry
// of its own.
func New(opts ...Option) *Container {
	c := &Container{
		logger:           slog.Default(),
		allowCircular:    true,
		bindings:         make(map[string]*binding),
		extenders:        make(map[string][]Extender),
		tags:             make(map[string][]string),
		contextual:       make(map[string]map[string]Factory),
		reboundCallbacks: make(map[string][]func(any)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reg == nil {
		c.reg = registry.New(registry.WithLogger(c.logger))
	}
	c.registerSelf()
	return c
}

// registerSelf makes the container resolvable as "container". A registry
// shared with another container already holds that name.
func (c *Container) registerSelf() {
	if err := c.reg.Register("container", c); err != nil {
		c.logger.Warn("container not registered under its own name", "error", err)
	}
}

// Registry returns the lifecycle registry backing the container.
func (c *Container) Registry() *registry.Registry { return c.reg }

// ── Registration ──────────────────────────────────────────────────────────────

// Bind registers a transient factory: every Make builds a new value, and the
// registry never sees it.
//
//	c.Bind("request-id", func(ctx context.Context, c *container.Container) (any, error) {
//	    return uuid.NewString(), nil
//	})
func (c *Container) Bind(abstract string, factory Factory, opts ...BindingOption) {
	c.bind(abstract, &binding{factory: factory}, opts)
}

// Singleton registers a factory whose result is built once and managed by
// the registry until it is disposed.
//
//	c.Singleton("repo", func(ctx context.Context, c *container.Container) (any, error) {
//	    db, err := container.Resolve[*sql.DB](ctx, c, "db")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &Repo{DB: db}, nil
//	}, container.DependsOn("migrations"))
func (c *Container) Singleton(abstract string, factory Factory, opts ...BindingOption) {
	c.bind(abstract, &binding{factory: factory, shared: true}, opts)
}

// Instance registers a pre-built value. The container does not dispose it.
func (c *Container) Instance(abstract string, instance any) error {
	key := c.reg.CanonicalName(abstract)

	c.mu.Lock()
	delete(c.bindings, key)
	cbs := c.reboundCallbacks[key]
	c.mu.Unlock()

	if err := c.reg.Register(key, instance); err != nil {
		return err
	}
	for _, cb := range cbs {
		cb(instance)
	}
	return nil
}

func (c *Container) bind(abstract string, b *binding, opts []BindingOption) {
	if b.factory == nil {
		panic(fmt.Sprintf("container: nil factory for [%s]", abstract))
	}
	for _, opt := range opts {
		opt(b)
	}
	key := c.reg.CanonicalName(abstract)

	c.mu.Lock()
	_, existed := c.bindings[key]
	c.bindings[key] = b
	cbs := c.reboundCallbacks[key]
	c.mu.Unlock()

	if !existed || !c.reg.Contains(key) {
		return
	}

	// Drop the built instance so it's rebuilt with the new factory
	c.reg.DisposeOne(key)
	if len(cbs) == 0 {
		return
	}
	inst, err := c.Make(context.Background(), key)
	if err != nil {
		c.logger.Error("rebuilding rebound singleton failed", "name", key, "error", err)
		return
	}
	for _, cb := range cbs {
		cb(inst)
	}
}

// bindDeferred installs the placeholder that loads a deferred provider.
func (c *Container) bindDeferred(abstract string, factory Factory) {
	c.bind(abstract, &binding{factory: factory, deferred: true}, nil)
}

func (c *Container) isDeferredPlaceholder(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bindings[name]
	return ok && b.deferred
}

// Alias registers an alternative name for an abstract.
func (c *Container) Alias(abstract, alias string) error {
	return c.reg.RegisterAlias(abstract, alias)
}

// ── Contextual Binding ────────────────────────────────────────────────────────

// When starts a contextual binding chain.
//
//	c.When("photos").Needs("storage").Give(func(ctx context.Context, c *container.Container) (any, error) {
//	    return filesystem.NewS3(...), nil
//	})
func (c *Container) When(concrete string) *ContextualBuilder {
	return &ContextualBuilder{container: c, concrete: c.reg.CanonicalName(concrete)}
}

func (c *Container) getContextual(concrete string, needs ...string) Factory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.contextual[concrete]
	if !ok {
		return nil
	}
	for _, n := range needs {
		if f, ok := m[n]; ok {
			return f
		}
	}
	return nil
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extend decorates every instance built for abstract from now on. For a
// producer binding, the produced object is decorated instead of the
// producer. A singleton that is already built keeps its current value until
// it is forgotten or rebound.
//
//	c.Extend("logger", func(ctx context.Context, inst any, c *container.Container) (any, error) {
//	    return inst.(*slog.Logger).With("component", "api"), nil
//	})
func (c *Container) Extend(abstract string, fn Extender) {
	key := c.reg.CanonicalName(abstract)

	c.mu.Lock()
	c.extenders[key] = append(c.extenders[key], fn)
	c.mu.Unlock()

	if c.reg.Contains(key) {
		c.logger.Debug("extender added after resolution", "name", key)
	}
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag associates multiple abstracts under a named group.
func (c *Container) Tag(abstracts []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = append(c.tags[tag], abstracts...)
}

// Tagged resolves all abstracts registered under a tag, in tagging order.
func (c *Container) Tagged(ctx context.Context, tag string) ([]any, error) {
	c.mu.RLock()
	abstracts := append([]string(nil), c.tags[tag]...)
	c.mu.RUnlock()

	result := make([]any, 0, len(abstracts))
	for _, abs := range abstracts {
		inst, err := c.Make(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("container: resolving tag %q: %w", tag, err)
		}
		result = append(result, inst)
	}
	return result, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Make resolves an abstract from the container.
//
// A Make issued from inside another binding's factory records that the
// binding being built depends on abstract.
func (c *Container) Make(ctx context.Context, abstract string) (any, error) {
	raw, deref := strings.CutPrefix(abstract, ProducerPrefix)
	name := c.reg.CanonicalName(raw)

	if caller := building(ctx); caller != "" && caller != name {
		if f := c.getContextual(caller, raw, name); f != nil {
			return c.build(ctx, name, &binding{factory: f})
		}
		c.reg.RegisterDependency(name, caller)
	}

	inst, err := c.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if p, ok := inst.(registry.Producer); ok && !deref {
		return c.reg.GetExposedInstance(ctx, name, p, c.postProcess)
	}
	return inst, nil
}

func (c *Container) resolve(ctx context.Context, name string) (any, error) {
	c.mu.RLock()
	b, bound := c.bindings[name]
	c.mu.RUnlock()

	if bound && !b.shared {
		return c.build(ctx, name, b)
	}
	if inst, ok := c.reg.Get(ctx, name); ok {
		return inst, nil
	}
	if !bound {
		return nil, &BindingNotFoundError{Name: name}
	}
	return c.reg.GetOrCreate(ctx, name, func(ctx context.Context) (any, error) {
		return c.build(ctx, name, b)
	})
}

// build runs a binding's factory and everything around it: depends-on
// resolution, wiring, extenders, disposal registration and callbacks.
func (c *Container) build(ctx context.Context, name string, b *binding) (any, error) {
	ctx = withBuilding(ctx, name)
	if b.deferred {
		return b.factory(ctx, c)
	}

	for _, dep := range b.dependsOn {
		depName := c.reg.CanonicalName(dep)
		if c.reg.IsDependent(name, depName) {
			return nil, &CircularDependsOnError{Name: name, DependsOn: depName}
		}
		c.reg.RegisterDependency(depName, name)
		if _, err := c.Make(ctx, dep); err != nil {
			return nil, fmt.Errorf("container: [%s] depends on [%s]: %w", name, dep, err)
		}
	}

	inst, err := b.factory(ctx, c)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, nil
	}

	var exposed atomic.Bool
	if b.wiring != nil {
		if b.shared && c.allowCircular {
			raw := inst
			c.reg.RegisterEarlyFactory(name, func() any {
				exposed.Store(true)
				return raw
			})
		}
		if err := b.wiring(ctx, c, inst); err != nil {
			return nil, fmt.Errorf("container: wiring [%s]: %w", name, err)
		}
	}

	if _, isProducer := inst.(registry.Producer); !isProducer {
		extended, err := c.applyExtenders(ctx, name, inst)
		if err != nil {
			return nil, err
		}
		if exposed.Load() && !sameInstance(inst, extended) {
			return nil, &registry.CurrentlyInCreationError{
				Name:   name,
				Reason: "its raw instance was handed out as an early reference but an extender replaced it",
			}
		}
		inst = extended
	}

	if b.shared {
		c.registerDisposal(name, inst, b.destroy)
	}
	c.fireAfterResolving(name, inst)
	return inst, nil
}

func (c *Container) postProcess(ctx context.Context, name string, obj any) (any, error) {
	return c.applyExtenders(ctx, name, obj)
}

func (c *Container) applyExtenders(ctx context.Context, name string, instance any) (any, error) {
	c.mu.RLock()
	exts := append([]Extender(nil), c.extenders[name]...)
	c.mu.RUnlock()

	var err error
	for _, ext := range exts {
		instance, err = ext(ctx, instance, c)
		if err != nil {
			return nil, fmt.Errorf("container: extending [%s]: %w", name, err)
		}
	}
	return instance, nil
}

func (c *Container) registerDisposal(name string, instance any, destroy func(any) error) {
	switch v := instance.(type) {
	case nil:
	case Disposer:
		if destroy == nil {
			c.reg.RegisterDisposal(name, v)
			return
		}
	case io.Closer:
		if destroy == nil {
			c.reg.RegisterDisposal(name, registry.CloserAction(v))
			return
		}
	}
	if destroy != nil {
		c.reg.RegisterDisposal(name, registry.DisposalFunc(func() error { return destroy(instance) }))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Bound reports whether abstract has a binding or an instance.
func (c *Container) Bound(abstract string) bool {
	key := c.reg.CanonicalName(abstract)
	c.mu.RLock()
	_, hasBinding := c.bindings[key]
	c.mu.RUnlock()
	return hasBinding || c.reg.Contains(key)
}

// Resolved reports whether abstract currently holds a built instance.
func (c *Container) Resolved(abstract string) bool {
	return c.reg.Contains(c.reg.CanonicalName(abstract))
}

// Forget disposes the built instance of abstract, and every instance that
// depends on it. The binding stays, so the next Make rebuilds it.
func (c *Container) Forget(abstract string) *registry.DisposalReport {
	return c.reg.DisposeOne(c.reg.CanonicalName(abstract))
}

// Shutdown disposes every managed instance, dependents first. The container
// itself stays resolvable as "container".
func (c *Container) Shutdown(ctx context.Context) *registry.DisposalReport {
	report := c.reg.ShutdownAll(ctx)
	c.registerSelf()
	return report
}

// Flush shuts the container down and drops every registration.
func (c *Container) Flush(ctx context.Context) *registry.DisposalReport {
	report := c.reg.ShutdownAll(ctx)
	c.reg.Reset()

	c.mu.Lock()
	c.bindings = make(map[string]*binding)
	c.extenders = make(map[string][]Extender)
	c.tags = make(map[string][]string)
	c.contextual = make(map[string]map[string]Factory)
	c.mu.Unlock()

	c.registerSelf()
	return report
}

// Bindings returns every bound or registered name, sorted.
func (c *Container) Bindings() []string {
	seen := make(map[string]struct{})
	c.mu.RLock()
	for k := range c.bindings {
		seen[k] = struct{}{}
	}
	c.mu.RUnlock()
	for _, k := range c.reg.ListNames() {
		seen[k] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sameInstance compares without panicking on uncomparable types.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}

// ── Build context ─────────────────────────────────────────────────────────────

type buildingKey struct{}

func withBuilding(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, buildingKey{}, name)
}

// building returns the name whose factory is running in ctx.
func building(ctx context.Context) string {
	name, _ := ctx.Value(buildingKey{}).(string)
	return name
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback run with the new instance whenever a built
// singleton is rebound or an instance is registered under abstract.
func (c *Container) Rebinding(abstract string, cb func(any)) {
	key := c.reg.CanonicalName(abstract)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reboundCallbacks[key] = append(c.reboundCallbacks[key], cb)
}

// AfterResolving registers a callback fired after any binding is built.
func (c *Container) AfterResolving(cb func(abstract string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireAfterResolving(abstract string, instance any) {
	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(abstract, instance)
	}
}

// ── Reflect helpers ───────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, useful as a stable
// abstract key when working with interfaces.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "main.UserRepository"
func TypeKey(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Generics helper ───────────────────────────────────────────────────────────

// Resolve calls Make and type-asserts the result. The null marker resolves
// to the zero value of T.
//
//	db, err := container.Resolve[*sql.DB](ctx, c, "db")
func Resolve[T any](ctx context.Context, c *Container, abstract string) (T, error) {
	var zero T
	inst, err := c.Make(ctx, abstract)
	if err != nil {
		return zero, err
	}
	if registry.IsNull(inst) {
		return zero, nil
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Name: abstract,
			Want: reflect.TypeOf((*T)(nil)).Elem(),
			Got:  reflect.TypeOf(inst),
		}
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](ctx context.Context, c *Container, abstract string) T {
	typed, err := Resolve[T](ctx, c, abstract)
	if err != nil {
		panic(err)
	}
	return typed
}
