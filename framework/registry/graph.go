package registry

import "sync"

// nameSet is an insertion-ordered set of names.
type nameSet struct {
	items []string
	index map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{index: make(map[string]struct{}, 8)}
}

// add reports whether name was newly added.
func (s *nameSet) add(name string) bool {
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = struct{}{}
	s.items = append(s.items, name)
	return true
}

func (s *nameSet) has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *nameSet) remove(name string) {
	if _, ok := s.index[name]; !ok {
		return
	}
	delete(s.index, name)
	for i, n := range s.items {
		if n == name {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *nameSet) snapshot() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// DependencyGraph records "name is depended on by dependent" edges discovered
// during construction. Both directions are kept in step.
type DependencyGraph struct {
	mu sync.RWMutex

	canonical func(string) string

	// name → names that depend on it
	dependents map[string]*nameSet

	// name → names it depends on
	dependencies map[string]*nameSet

	// containing name → inner names it owns
	contained map[string]*nameSet
}

// NewDependencyGraph creates an empty graph. canonical resolves aliases; nil
// means names are used as given.
func NewDependencyGraph(canonical func(string) string) *DependencyGraph {
	if canonical == nil {
		canonical = func(name string) string { return name }
	}
	return &DependencyGraph{
		canonical:    canonical,
		dependents:   make(map[string]*nameSet, 64),
		dependencies: make(map[string]*nameSet, 64),
		contained:    make(map[string]*nameSet, 16),
	}
}

// RegisterDependency records that dependent depends on name. Idempotent.
func (g *DependencyGraph) RegisterDependency(name, dependent string) {
	canonical := g.canonical(name)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEdge(canonical, dependent)
}

// RegisterContained records that containing owns the inner instance
// contained. The containing name also becomes a dependent of contained.
func (g *DependencyGraph) RegisterContained(contained, containing string) {
	canonicalContained := g.canonical(contained)

	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.contained[containing]
	if !ok {
		set = newNameSet()
		g.contained[containing] = set
	}
	if !set.add(contained) {
		return
	}
	g.addEdge(canonicalContained, containing)
}

// IsDependent reports whether candidate depends on name, directly or
// transitively.
func (g *DependencyGraph) IsDependent(name, candidate string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isDependent(name, candidate, map[string]bool{})
}

func (g *DependencyGraph) isDependent(name, candidate string, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true

	deps, ok := g.dependents[g.canonical(name)]
	if !ok {
		return false
	}
	if deps.has(candidate) {
		return true
	}
	for _, d := range deps.items {
		if g.isDependent(d, candidate, seen) {
			return true
		}
	}
	return false
}

// HasDependents reports whether any name depends on name.
func (g *DependencyGraph) HasDependents(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.dependents[g.canonical(name)]
	return ok
}

// DependentsOf returns the names that depend on name, in discovery order.
func (g *DependencyGraph) DependentsOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if set, ok := g.dependents[g.canonical(name)]; ok {
		return set.snapshot()
	}
	return []string{}
}

// DependenciesOf returns the names name depends on, in discovery order.
func (g *DependencyGraph) DependenciesOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if set, ok := g.dependencies[name]; ok {
		return set.snapshot()
	}
	return []string{}
}

// ── teardown support ──────────────────────────────────────────────────────────

func (g *DependencyGraph) addEdge(name, dependent string) {
	set, ok := g.dependents[name]
	if !ok {
		set = newNameSet()
		g.dependents[name] = set
	}
	if !set.add(dependent) {
		return
	}
	deps, ok := g.dependencies[dependent]
	if !ok {
		deps = newNameSet()
		g.dependencies[dependent] = deps
	}
	deps.add(name)
}

// takeDependents removes and returns the dependents of name.
func (g *DependencyGraph) takeDependents(name string) []string {
	canonical := g.canonical(name)

	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.dependents[canonical]
	if !ok {
		return nil
	}
	delete(g.dependents, canonical)
	return set.snapshot()
}

// takeContained removes and returns the inner names owned by name.
func (g *DependencyGraph) takeContained(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.contained[name]
	if !ok {
		return nil
	}
	delete(g.contained, name)
	return set.snapshot()
}

// forget removes name from every dependents set, dropping sets that become
// empty, and discards its own dependencies.
func (g *DependencyGraph) forget(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, set := range g.dependents {
		set.remove(name)
		if len(set.items) == 0 {
			delete(g.dependents, key)
		}
	}
	delete(g.dependencies, name)
}

// Clear drops every edge.
func (g *DependencyGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependents = make(map[string]*nameSet, 64)
	g.dependencies = make(map[string]*nameSet, 64)
	g.contained = make(map[string]*nameSet, 16)
}
