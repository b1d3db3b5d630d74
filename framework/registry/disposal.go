package registry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/km-arc/go-lifecycle/framework/metrics"
)

// DisposalAction tears down one managed instance.
type DisposalAction interface {
	Dispose() error
}

// DisposalFunc adapts a function to DisposalAction.
type DisposalFunc func() error

func (f DisposalFunc) Dispose() error { return f() }

// CloserAction disposes an io.Closer by closing it.
func CloserAction(c io.Closer) DisposalAction {
	return DisposalFunc(c.Close)
}

// DisposalReport lists what a disposal pass tore down.
type DisposalReport struct {
	// Disposed holds names in the order they were torn down.
	Disposed []string
	Failures []*DisposalActionError
}

// disposalTable is the insertion-ordered name → action table.
type disposalTable struct {
	mu      sync.Mutex
	order   []string
	actions map[string]DisposalAction
}

func newDisposalTable() *disposalTable {
	return &disposalTable{actions: make(map[string]DisposalAction, 32)}
}

func (t *disposalTable) put(name string, action DisposalAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.actions[name]; !ok {
		t.order = append(t.order, name)
	}
	t.actions[name] = action
}

func (t *disposalTable) take(name string) DisposalAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	action, ok := t.actions[name]
	if !ok {
		return nil
	}
	delete(t.actions, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return action
}

func (t *disposalTable) has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.actions[name]
	return ok
}

func (t *disposalTable) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// ── Registry surface ──────────────────────────────────────────────────────────

// RegisterDisposal associates a teardown action with name. Registering again
// replaces the action but keeps the original position.
func (r *Registry) RegisterDisposal(name string, action DisposalAction) {
	if action == nil {
		return
	}
	r.disposals.put(name, action)
}

// HasDisposal reports whether name has a pending disposal action.
func (r *Registry) HasDisposal(name string) bool {
	return r.disposals.has(name)
}

// RegisterDependency records that dependent depends on name.
func (r *Registry) RegisterDependency(name, dependent string) {
	r.graph.RegisterDependency(name, dependent)
}

// RegisterContained records that containing owns the inner instance contained.
func (r *Registry) RegisterContained(contained, containing string) {
	r.graph.RegisterContained(contained, containing)
}

// IsDependent reports whether candidate depends on name, transitively.
func (r *Registry) IsDependent(name, candidate string) bool {
	return r.graph.IsDependent(name, candidate)
}

// DependentsOf returns the names that depend on name.
func (r *Registry) DependentsOf(name string) []string {
	return r.graph.DependentsOf(name)
}

// DependenciesOf returns the names name depends on.
func (r *Registry) DependenciesOf(name string) []string {
	return r.graph.DependenciesOf(name)
}

// DisposeOne removes name from the registry and tears it down, after first
// tearing down everything that depends on it. Action failures are logged and
// reported, never returned.
func (r *Registry) DisposeOne(name string) *DisposalReport {
	report := &DisposalReport{}
	r.dispose(name, map[string]bool{}, report)
	r.publishCount()
	return report
}

// ShutdownAll disposes every name with a registered action in reverse
// registration order, then clears all state. Constructions already running
// finish first; constructions started afterwards are rejected. Unless the
// registry was built WithReopenAfterShutdown, later GetOrCreate calls fail
// with CreationNotAllowedError until Reset.
func (r *Registry) ShutdownAll(ctx context.Context) *DisposalReport {
	_, span := r.tracer.Start(ctx, "registry.shutdown")
	defer span.End()

	// Wait for in-flight constructions. Called from inside a factory, the
	// lock is already held by ctx's chain and this does not block.
	_, c := ensureChain(ctx)
	r.creation.lock(c)
	r.mu.Lock()
	r.destroying = true
	r.mu.Unlock()
	r.creation.unlock(c)

	names := r.disposals.names()
	r.logger.Info("destroying singletons", "count", len(names))

	report := &DisposalReport{}
	for i := len(names) - 1; i >= 0; i-- {
		r.dispose(names[i], map[string]bool{}, report)
	}

	r.graph.Clear()
	r.produced.Flush()

	r.mu.Lock()
	r.finished = make(map[string]any, 64)
	r.earlyFactories = make(map[string]EarlyFactory, 16)
	r.earlyInstances = make(map[string]any, 16)
	r.registered = nil
	r.registeredSet = make(map[string]struct{}, 64)
	r.destroying = false
	r.closed = !r.reopen
	r.mu.Unlock()

	span.SetAttributes(
		attribute.Int("disposed", len(report.Disposed)),
		attribute.Int("failures", len(report.Failures)),
	)
	if len(report.Failures) > 0 {
		span.AddEvent("disposal failures", trace.WithAttributes(attribute.Int("count", len(report.Failures))))
	}
	r.publishCount()
	return report
}

func (r *Registry) dispose(name string, seen map[string]bool, report *DisposalReport) {
	if seen[name] {
		return
	}
	seen[name] = true

	r.mu.Lock()
	existed := r.removeSingleton(name)
	r.mu.Unlock()
	if _, ok := r.produced.Get(name); ok {
		r.produced.Delete(name)
	}
	action := r.disposals.take(name)

	for _, dependent := range r.graph.takeDependents(name) {
		r.dispose(dependent, seen, report)
	}

	if action != nil {
		if err := runDisposal(action); err != nil {
			failure := &DisposalActionError{Name: name, Err: err}
			report.Failures = append(report.Failures, failure)
			metrics.RecordDisposal(metrics.OutcomeFailure)
			r.logger.Error("disposal action failed", "name", name, "error", err)
		} else {
			metrics.RecordDisposal(metrics.OutcomeSuccess)
		}
	}
	if existed || action != nil {
		report.Disposed = append(report.Disposed, name)
	}

	for _, inner := range r.graph.takeContained(name) {
		r.dispose(inner, seen, report)
	}

	r.graph.forget(name)
}

func runDisposal(action DisposalAction) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return action.Dispose()
}

func (r *Registry) publishCount() {
	metrics.SetSingletons(r.Count())
}
