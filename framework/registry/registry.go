package registry

import (
	"log/slog"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/km-arc/go-lifecycle/framework/alias"
)

const tracerName = "github.com/km-arc/go-lifecycle/framework/registry"

// Registry is the singleton lifecycle registry.
//
// It embeds the alias table, so RegisterAlias, RemoveAlias, IsAlias,
// AliasesOf and CanonicalName are part of its surface.
type Registry struct {
	*alias.Table

	// mu guards every field below it up to creation.
	mu sync.Mutex

	// name → fully constructed instance
	finished map[string]any

	// name → producer of an early reference, while the name is constructing
	earlyFactories map[string]EarlyFactory

	// name → early reference materialized from earlyFactories
	earlyInstances map[string]any

	// registration order of finished and early-factory names
	registered    []string
	registeredSet map[string]struct{}

	// names inside a construction call
	creating map[string]struct{}

	// names excluded from the construction cycle check
	excluded map[string]struct{}

	// errors recorded during the outermost in-flight construction; nil when
	// no construction is running
	suppressed []error

	destroying bool
	closed     bool
	reopen     bool

	creation  *creationLock
	graph     *DependencyGraph
	disposals *disposalTable

	// name → object exposed by a shared Producer
	produced *gocache.Cache

	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for construction and shutdown spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithAliasTable shares an existing alias table with the registry.
func WithAliasTable(t *alias.Table) Option {
	return func(r *Registry) {
		if t != nil {
			r.Table = t
		}
	}
}

// WithReopenAfterShutdown makes ShutdownAll leave the registry open for new
// constructions. By default a shut down registry stays closed until Reset.
func WithReopenAfterShutdown(reopen bool) Option {
	return func(r *Registry) { r.reopen = reopen }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		finished:       make(map[string]any, 64),
		earlyFactories: make(map[string]EarlyFactory, 16),
		earlyInstances: make(map[string]any, 16),
		registeredSet:  make(map[string]struct{}, 64),
		creating:       make(map[string]struct{}, 16),
		excluded:       make(map[string]struct{}),
		creation:       newCreationLock(),
		disposals:      newDisposalTable(),
		produced:       gocache.New(gocache.NoExpiration, 0),
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Table == nil {
		r.Table = alias.New(alias.WithLogger(r.logger))
	}
	r.graph = NewDependencyGraph(r.Table.CanonicalName)
	return r
}

// Graph returns the registry's dependency graph.
func (r *Registry) Graph() *DependencyGraph { return r.graph }
