package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/km-arc/go-lifecycle/framework/metrics"
)

// ObjectFactory produces the instance for a name. The context it receives
// carries the construction chain; pass it to every registry call the factory
// makes so nested lookups are recognised as part of the same construction.
type ObjectFactory func(ctx context.Context) (any, error)

// EarlyFactory produces an early reference to an instance that is still
// under construction.
type EarlyFactory func() any

// ── Registration ──────────────────────────────────────────────────────────────

// Register installs an already constructed instance under name.
func (r *Registry) Register(name string, instance any) error {
	if name == "" {
		return fmt.Errorf("registry: name must not be empty")
	}
	if instance == nil {
		return fmt.Errorf("registry: instance for %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.finished[name]; ok {
		return &DuplicateRegistrationError{Name: name, Existing: existing}
	}
	r.addFinished(name, instance)
	return nil
}

// RegisterEarlyFactory stores a producer for early references to name. It has
// no effect once a finished instance exists.
func (r *Registry) RegisterEarlyFactory(name string, f EarlyFactory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.finished[name]; ok {
		return
	}
	r.earlyFactories[name] = f
	delete(r.earlyInstances, name)
	r.addRegistered(name)
}

// RecordSuppressed attaches a non-fatal error to the outermost construction
// in flight. If that construction fails, the error is reported in
// CreationError.Suppressed.
func (r *Registry) RecordSuppressed(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suppressed != nil {
		r.suppressed = append(r.suppressed, err)
	}
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// Get returns the instance registered under name without constructing it.
//
// While name is being constructed, the constructing chain receives the early
// reference (if an early factory was registered); any other caller waits for
// the construction to finish.
func (r *Registry) Get(ctx context.Context, name string) (any, bool) {
	if inst, ok := r.finishedInstance(name); ok {
		return inst, true
	}
	if !r.inCreationSet(name) {
		return nil, false
	}

	if c := chainFrom(ctx); !r.creation.heldBy(c) {
		_, waiter := ensureChain(context.Background())
		r.creation.lock(waiter)
		r.creation.unlock(waiter)
		return r.finishedInstance(name)
	}
	return r.earlyReference(name)
}

// GetOrCreate returns the finished instance for name, constructing it with
// factory on a miss. Concurrent callers for the same name observe one
// factory invocation and the identical instance.
func (r *Registry) GetOrCreate(ctx context.Context, name string, factory ObjectFactory) (any, error) {
	if factory == nil {
		return nil, fmt.Errorf("registry: factory for %q must not be nil", name)
	}
	ctx, c := ensureChain(ctx)

	if inst, ok := r.finishedInstance(name); ok {
		return inst, nil
	}
	if r.creation.heldBy(c) && r.inCreationSet(name) {
		if inst, ok := r.earlyReference(name); ok {
			return inst, nil
		}
	}

	r.creation.lock(c)
	defer r.creation.unlock(c)

	r.mu.Lock()
	if inst, ok := r.finished[name]; ok {
		r.mu.Unlock()
		return inst, nil
	}
	if r.destroying || r.closed {
		r.mu.Unlock()
		metrics.RecordConstruction(metrics.OutcomeRejected)
		return nil, &CreationNotAllowedError{Name: name}
	}
	if err := r.beforeCreation(name); err != nil {
		r.mu.Unlock()
		metrics.RecordConstruction(metrics.OutcomeCycle)
		return nil, err
	}
	outermost := r.suppressed == nil
	if outermost {
		r.suppressed = []error{}
	}
	r.mu.Unlock()

	r.logger.Debug("creating shared instance", "name", name, "chain", c.id.String())
	inst, err := r.construct(ctx, name, factory)

	r.mu.Lock()
	r.afterCreation(name)
	var suppressed []error
	if outermost {
		suppressed = r.suppressed
		r.suppressed = nil
	}

	if err != nil {
		if errors.Is(err, ErrStateChanged) {
			if existing, ok := r.finished[name]; ok {
				r.mu.Unlock()
				r.logger.Warn("construction overtaken, using installed instance", "name", name)
				return existing, nil
			}
		}
		r.mu.Unlock()
		metrics.RecordConstruction(metrics.OutcomeFailure)
		suppressed = append(suppressed, r.discardFailed(name)...)
		return nil, &CreationError{Name: name, Err: err, Suppressed: suppressed}
	}

	if r.destroying || r.closed {
		r.mu.Unlock()
		metrics.RecordConstruction(metrics.OutcomeRejected)
		r.discardFailed(name)
		return nil, &CreationNotAllowedError{Name: name}
	}

	if inst == nil {
		inst = Null
	}
	r.addFinished(name, inst)
	count := len(r.registered)
	r.mu.Unlock()

	metrics.RecordConstruction(metrics.OutcomeSuccess)
	metrics.SetSingletons(count)
	return inst, nil
}

// discardFailed tears down what a construction of name left behind: its
// early tiers, its disposal action, and every instance that was built
// against its early reference. Names still under construction further up
// the chain are left alone. Disposal failures are returned.
func (r *Registry) discardFailed(name string) []error {
	seen := map[string]bool{}
	r.mu.Lock()
	for n := range r.creating {
		seen[n] = true
	}
	r.mu.Unlock()

	report := &DisposalReport{}
	r.dispose(name, seen, report)
	r.publishCount()
	if len(report.Disposed) > 0 {
		r.logger.Debug("discarded state of failed construction",
			"name", name, "disposed", report.Disposed)
	}
	errs := make([]error, 0, len(report.Failures))
	for _, f := range report.Failures {
		errs = append(errs, f)
	}
	return errs
}

// construct runs factory inside a span, turning panics into errors so the
// construction state is always released.
func (r *Registry) construct(ctx context.Context, name string, factory ObjectFactory) (inst any, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.construct",
		trace.WithAttributes(attribute.String("singleton.name", name)))
	defer func() {
		if p := recover(); p != nil {
			inst, err = nil, fmt.Errorf("registry: factory for %q panicked: %v", name, p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return factory(ctx)
}

// earlyReference returns the cached early instance, materializing it from the
// early factory on first request.
func (r *Registry) earlyReference(name string) (any, bool) {
	r.mu.Lock()
	if inst, ok := r.finished[name]; ok {
		r.mu.Unlock()
		return inst, true
	}
	if inst, ok := r.earlyInstances[name]; ok {
		r.mu.Unlock()
		return inst, true
	}
	f, ok := r.earlyFactories[name]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.earlyFactories, name)
	r.mu.Unlock()

	inst := f()

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.finished[name]; ok {
		return existing, true
	}
	r.earlyInstances[name] = inst
	metrics.RecordEarlyReference()
	r.logger.Debug("early reference exposed", "name", name)
	return inst, true
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Contains reports whether a finished instance exists under name.
func (r *Registry) Contains(name string) bool {
	_, ok := r.finishedInstance(name)
	return ok
}

// Count returns the number of registered names.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}

// ListNames returns registered names in registration order.
func (r *Registry) ListNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.registered))
	copy(out, r.registered)
	return out
}

// IsCurrentlyInCreation reports whether name is being constructed and is not
// excluded from the cycle check.
func (r *Registry) IsCurrentlyInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.excluded[name]; ok {
		return false
	}
	_, ok := r.creating[name]
	return ok
}

// SetExcludedFromCycleCheck opts name out of (or back into) construction
// cycle detection.
func (r *Registry) SetExcludedFromCycleCheck(name string, excluded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if excluded {
		r.excluded[name] = struct{}{}
	} else {
		delete(r.excluded, name)
	}
}

// Reset reopens a registry closed by ShutdownAll.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
}

// Closed reports whether the registry refuses new constructions.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed || r.destroying
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (r *Registry) finishedInstance(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.finished[name]
	return inst, ok
}

func (r *Registry) inCreationSet(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.creating[name]
	return ok
}

// beforeCreation marks name as constructing. Caller holds mu.
func (r *Registry) beforeCreation(name string) error {
	if _, ok := r.excluded[name]; ok {
		return nil
	}
	if _, ok := r.creating[name]; ok {
		return &CurrentlyInCreationError{Name: name}
	}
	r.creating[name] = struct{}{}
	return nil
}

// afterCreation clears the construction mark. Caller holds mu.
func (r *Registry) afterCreation(name string) {
	delete(r.creating, name)
}

// addFinished installs instance and purges the early tiers. Caller holds mu.
func (r *Registry) addFinished(name string, instance any) {
	r.finished[name] = instance
	delete(r.earlyFactories, name)
	delete(r.earlyInstances, name)
	r.addRegistered(name)
}

func (r *Registry) addRegistered(name string) {
	if _, ok := r.registeredSet[name]; ok {
		return
	}
	r.registeredSet[name] = struct{}{}
	r.registered = append(r.registered, name)
}

// removeSingleton drops name from every cache tier. Caller holds mu.
func (r *Registry) removeSingleton(name string) bool {
	_, finished := r.finished[name]
	_, early := r.earlyInstances[name]
	_, factory := r.earlyFactories[name]
	delete(r.finished, name)
	delete(r.earlyFactories, name)
	delete(r.earlyInstances, name)
	if _, ok := r.registeredSet[name]; ok {
		delete(r.registeredSet, name)
		for i, n := range r.registered {
			if n == name {
				r.registered = append(r.registered[:i], r.registered[i+1:]...)
				break
			}
		}
	}
	return finished || early || factory
}
