package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// chain identifies one construction call tree. Calls made with the context a
// factory receives belong to the chain that invoked the factory.
type chain struct {
	id uuid.UUID
}

type chainKey struct{}

func chainFrom(ctx context.Context) *chain {
	c, _ := ctx.Value(chainKey{}).(*chain)
	return c
}

// ensureChain returns ctx unchanged if it already carries a chain, or a child
// context carrying a fresh one.
func ensureChain(ctx context.Context) (context.Context, *chain) {
	if c := chainFrom(ctx); c != nil {
		return ctx, c
	}
	c := &chain{id: uuid.New()}
	return context.WithValue(ctx, chainKey{}, c), c
}

// ChainID returns the construction chain id carried by ctx, or "" outside a
// construction.
func ChainID(ctx context.Context) string {
	if c := chainFrom(ctx); c != nil {
		return c.id.String()
	}
	return ""
}

// creationLock is the singleton mutex: held for the whole factory invocation,
// reentrant for the owning chain.
type creationLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner *chain
	depth int
}

func newCreationLock() *creationLock {
	l := &creationLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *creationLock) lock(c *chain) {
	l.mu.Lock()
	for l.owner != nil && l.owner != c {
		l.cond.Wait()
	}
	l.owner = c
	l.depth++
	l.mu.Unlock()
}

func (l *creationLock) unlock(c *chain) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != c {
		panic("registry: creation lock released by a chain that does not hold it")
	}
	l.depth--
	if l.depth == 0 {
		l.owner = nil
		l.cond.Broadcast()
	}
}

func (l *creationLock) heldBy(c *chain) bool {
	if c == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == c
}
