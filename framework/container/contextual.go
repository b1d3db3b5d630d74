package container

import "context"

// ContextualBuilder collects the parts of a When/Needs/Give chain.
type ContextualBuilder struct {
	container *Container
	concrete  string
	needs     []string
}

// Needs names the abstracts the override applies to. A name may be given
// as an alias; both spellings match.
func (b *ContextualBuilder) Needs(abstracts ...string) *ContextualBuilder {
	b.needs = append(b.needs, abstracts...)
	return b
}

// Give installs factory for every needed abstract. It runs on each Make of
// those abstracts from inside the concrete's factory, and what it returns is
// never stored in the registry.
func (b *ContextualBuilder) Give(factory Factory) {
	c := b.container
	c.mu.Lock()
	defer c.mu.Unlock()

	overrides := c.contextual[b.concrete]
	if overrides == nil {
		overrides = make(map[string]Factory, len(b.needs))
		c.contextual[b.concrete] = overrides
	}
	for _, need := range b.needs {
		overrides[need] = factory
	}
}

// GiveValue installs a fixed value.
//
//	c.When("photos").Needs("storagePath").GiveValue("/tmp/photos")
func (b *ContextualBuilder) GiveValue(value any) {
	b.Give(func(context.Context, *Container) (any, error) { return value, nil })
}
