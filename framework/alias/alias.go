// Package alias maps alternative names onto canonical registered names.
//
// Aliases may chain (c → b → a); CanonicalName follows the chain to its end.
// Registration rejects any alias that would close a loop, so a chain always
// terminates.
package alias

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Table is a concurrency-safe alias registry.
type Table struct {
	mu sync.RWMutex

	// alias → target (the target may itself be an alias)
	aliases map[string]string

	allowOverriding bool
	logger          *slog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithOverriding controls whether an alias may be re-pointed at a different
// name. Defaults to true.
func WithOverriding(allow bool) Option {
	return func(t *Table) { t.allowOverriding = allow }
}

// WithLogger sets the logger used for override and registration messages.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates an empty alias table.
func New(opts ...Option) *Table {
	t := &Table{
		aliases:         make(map[string]string),
		allowOverriding: true,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ── Registration ──────────────────────────────────────────────────────────────

// RegisterAlias points alias at name.
//
//	t.RegisterAlias("dataSource", "db")
//	t.CanonicalName("db") // "dataSource"
//
// Registering a name as its own alias removes any existing alias entry for it.
func (t *Table) RegisterAlias(name, alias string) error {
	if name == "" {
		return fmt.Errorf("alias: name must not be empty")
	}
	if alias == "" {
		return fmt.Errorf("alias: alias must not be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if alias == name {
		delete(t.aliases, alias)
		t.logger.Debug("alias ignored since it points to the same name", "alias", alias)
		return nil
	}

	if registered, ok := t.aliases[alias]; ok {
		if registered == name {
			return nil
		}
		if !t.allowOverriding {
			return &ConflictError{Alias: alias, Name: name, Existing: registered}
		}
		t.logger.Info("overriding alias",
			"alias", alias, "previous", registered, "name", name)
	}

	if t.hasAlias(alias, name) {
		return &CircularityError{Name: name, Alias: alias}
	}
	t.aliases[alias] = name
	t.logger.Debug("alias registered", "alias", alias, "name", name)
	return nil
}

// RemoveAlias deletes a registered alias.
func (t *Table) RemoveAlias(alias string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.aliases[alias]; !ok {
		return &NotFoundError{Alias: alias}
	}
	delete(t.aliases, alias)
	return nil
}

// ResolveAliases rewrites every alias and target through fn, e.g. to expand
// placeholders. Entries whose alias or target resolve to "" or to each other
// are dropped.
func (t *Table) ResolveAliases(fn func(string) (string, error)) error {
	if fn == nil {
		return fmt.Errorf("alias: resolver must not be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]string, len(t.aliases))
	for k, v := range t.aliases {
		snapshot[k] = v
	}

	for _, alias := range sortedKeys(snapshot) {
		registered := snapshot[alias]
		resolvedAlias, err := fn(alias)
		if err != nil {
			return fmt.Errorf("alias: resolve %q: %w", alias, err)
		}
		resolvedName, err := fn(registered)
		if err != nil {
			return fmt.Errorf("alias: resolve %q: %w", registered, err)
		}

		switch {
		case resolvedAlias == "" || resolvedName == "" || resolvedAlias == resolvedName:
			delete(t.aliases, alias)

		case resolvedAlias != alias:
			if existing, ok := t.aliases[resolvedAlias]; ok {
				if existing == resolvedName {
					delete(t.aliases, alias)
					continue
				}
				return &ConflictError{Alias: resolvedAlias, Name: resolvedName, Existing: existing}
			}
			if t.hasAlias(resolvedAlias, resolvedName) {
				return &CircularityError{Name: resolvedName, Alias: resolvedAlias}
			}
			delete(t.aliases, alias)
			t.aliases[resolvedAlias] = resolvedName

		case registered != resolvedName:
			t.aliases[alias] = resolvedName
		}
	}
	return nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// IsAlias reports whether name is registered as an alias.
func (t *Table) IsAlias(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.aliases[name]
	return ok
}

// HasAlias reports whether alias resolves, directly or through a chain, to name.
func (t *Table) HasAlias(name, alias string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasAlias(name, alias)
}

// AliasesOf returns every alias that resolves to name, sorted.
func (t *Table) AliasesOf(name string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []string{}
	t.collect(name, &out, map[string]bool{name: true})
	sort.Strings(out)
	return out
}

// CanonicalName resolves name through the alias chain.
// Names that are not aliases are returned unchanged.
func (t *Table) CanonicalName(name string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := map[string]bool{}
	canonical := name
	for {
		next, ok := t.aliases[canonical]
		if !ok || seen[canonical] {
			return canonical
		}
		seen[canonical] = true
		canonical = next
	}
}

// Len returns the number of registered aliases.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.aliases)
}

// ── helpers (caller holds mu) ─────────────────────────────────────────────────

func (t *Table) hasAlias(name, alias string) bool {
	seen := map[string]bool{}
	var walk func(target string) bool
	walk = func(target string) bool {
		if seen[target] {
			return false
		}
		seen[target] = true
		for a, n := range t.aliases {
			if n != target {
				continue
			}
			if a == alias || walk(a) {
				return true
			}
		}
		return false
	}
	return walk(name)
}

func (t *Table) collect(name string, out *[]string, seen map[string]bool) {
	for a, n := range t.aliases {
		if n != name || seen[a] {
			continue
		}
		seen[a] = true
		*out = append(*out, a)
		t.collect(a, out, seen)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
