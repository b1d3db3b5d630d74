package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/km-arc/go-lifecycle/framework/registry"
)

// actionLog records the order disposal actions run in.
type actionLog struct {
	mu    sync.Mutex
	order []string
}

func (l *actionLog) action(name string) registry.DisposalAction {
	return registry.DisposalFunc(func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.order = append(l.order, name)
		return nil
	})
}

func (l *actionLog) indexOf(name string) int {
	for i, n := range l.order {
		if n == name {
			return i
		}
	}
	return -1
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

// ── ShutdownAll ───────────────────────────────────────────────────────────────

func TestRegistry_ShutdownAll_DependentBeforeDependency(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}

	reg.RegisterDisposal("x", log.action("x"))
	reg.RegisterDisposal("y", log.action("y"))
	reg.RegisterDependency("y", "x") // x depends on y

	reg.ShutdownAll(context.Background())

	assert.Equal(t, []string{"x", "y"}, log.order)
}

func TestRegistry_ShutdownAll_DependencyChain(t *testing.T) {
	for _, order := range [][]string{{"a", "b", "c"}, {"c", "b", "a"}, {"b", "c", "a"}} {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			reg := newRegistry(t)
			log := &actionLog{}
			for _, name := range order {
				reg.RegisterDisposal(name, log.action(name))
			}
			reg.RegisterDependency("b", "a") // a depends on b
			reg.RegisterDependency("c", "b") // b depends on c

			reg.ShutdownAll(context.Background())

			assert.Equal(t, []string{"a", "b", "c"}, log.order)
		})
	}
}

func TestRegistry_ShutdownAll_ReverseRegistrationOrderAsTieBreak(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}
	for _, name := range []string{"first", "second", "third"} {
		reg.RegisterDisposal(name, log.action(name))
	}

	report := reg.ShutdownAll(context.Background())

	assert.Equal(t, []string{"third", "second", "first"}, log.order)
	assert.Equal(t, []string{"third", "second", "first"}, report.Disposed)
}

func TestRegistry_ShutdownAll_FailingActionDoesNotAbort(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}
	boom := errors.New("boom")

	reg.RegisterDisposal("a", log.action("a"))
	reg.RegisterDisposal("broken", registry.DisposalFunc(func() error { return boom }))
	reg.RegisterDisposal("panics", registry.DisposalFunc(func() error { panic("oops") }))
	reg.RegisterDisposal("c", log.action("c"))

	report := reg.ShutdownAll(context.Background())

	assert.Equal(t, []string{"c", "a"}, log.order)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "panics", report.Failures[0].Name)
	assert.Equal(t, "broken", report.Failures[1].Name)
	assert.ErrorIs(t, report.Failures[1], boom)
}

func TestRegistry_ShutdownAll_LeavesRegistryEmptyAndClosed(t *testing.T) {
	reg := newRegistry(t)
	c := &closer{}

	inst, err := reg.GetOrCreate(context.Background(), "db", valueFactory(c))
	require.NoError(t, err)
	reg.RegisterDisposal("db", registry.CloserAction(inst.(*closer)))
	require.NoError(t, reg.Register("cfg", "config"))
	reg.RegisterDependency("db", "repo")

	reg.ShutdownAll(context.Background())

	assert.True(t, c.closed)
	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.ListNames())
	assert.False(t, reg.Contains("cfg"))
	assert.Empty(t, reg.DependentsOf("db"))
	assert.True(t, reg.Closed())

	_, err = reg.GetOrCreate(context.Background(), "db", valueFactory("again"))
	var notAllowed *registry.CreationNotAllowedError
	require.ErrorAs(t, err, &notAllowed)

	reg.Reset()
	got, err := reg.GetOrCreate(context.Background(), "db", valueFactory("again"))
	require.NoError(t, err)
	assert.Equal(t, "again", got)
}

func TestRegistry_ShutdownAll_WaitsForRunningConstruction(t *testing.T) {
	reg := newRegistry(t)
	started, release := make(chan struct{}), make(chan struct{})
	var disposed atomic.Bool

	created := make(chan error, 1)
	go func() {
		_, err := reg.GetOrCreate(context.Background(), "slow", func(context.Context) (any, error) {
			reg.RegisterDisposal("slow", registry.DisposalFunc(func() error { disposed.Store(true); return nil }))
			close(started)
			<-release
			return "slow", nil
		})
		created <- err
	}()
	<-started

	shut := make(chan *registry.DisposalReport, 1)
	go func() { shut <- reg.ShutdownAll(context.Background()) }()

	select {
	case <-shut:
		t.Fatal("ShutdownAll returned while a construction was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-created)
	report := <-shut

	assert.Equal(t, []string{"slow"}, report.Disposed)
	assert.True(t, disposed.Load())
	assert.True(t, reg.Closed())
	assert.Zero(t, reg.Count())
	assert.False(t, reg.Contains("slow"))
}

func TestRegistry_ShutdownAll_FromInsideFactoryRejectsResult(t *testing.T) {
	reg := newRegistry(t)

	_, err := reg.GetOrCreate(context.Background(), "a", func(ctx context.Context) (any, error) {
		reg.ShutdownAll(ctx)
		return "a", nil
	})

	var notAllowed *registry.CreationNotAllowedError
	require.ErrorAs(t, err, &notAllowed)
	assert.Zero(t, reg.Count())
}

func TestRegistry_ShutdownAll_ReopenOption(t *testing.T) {
	reg := newRegistry(t, registry.WithReopenAfterShutdown(true))
	reg.ShutdownAll(context.Background())

	assert.False(t, reg.Closed())
	_, err := reg.GetOrCreate(context.Background(), "a", valueFactory("a"))
	require.NoError(t, err)
}

func TestRegistry_ShutdownAll_CreationDuringDestructionRejected(t *testing.T) {
	reg := newRegistry(t, registry.WithReopenAfterShutdown(true))
	var inner error

	reg.RegisterDisposal("a", registry.DisposalFunc(func() error {
		_, inner = reg.GetOrCreate(context.Background(), "late", valueFactory("late"))
		return nil
	}))
	reg.ShutdownAll(context.Background())

	var notAllowed *registry.CreationNotAllowedError
	require.ErrorAs(t, inner, &notAllowed)
	assert.Equal(t, "late", notAllowed.Name)
}

// ── DisposeOne ────────────────────────────────────────────────────────────────

func TestRegistry_DisposeOne_TearsDownDependentsFirst(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}

	for _, name := range []string{"db", "repo", "api", "unrelated"} {
		require.NoError(t, reg.Register(name, name))
		reg.RegisterDisposal(name, log.action(name))
	}
	reg.RegisterDependency("db", "repo")
	reg.RegisterDependency("repo", "api")

	report := reg.DisposeOne("db")

	assert.Equal(t, []string{"api", "repo", "db"}, log.order)
	assert.Equal(t, []string{"api", "repo", "db"}, report.Disposed)
	assert.False(t, reg.Contains("db"))
	assert.False(t, reg.Contains("api"))
	assert.True(t, reg.Contains("unrelated"))
	assert.False(t, reg.HasDisposal("db"))
	assert.True(t, reg.HasDisposal("unrelated"))
}

func TestRegistry_DisposeOne_Idempotent(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}
	reg.RegisterDisposal("a", log.action("a"))

	reg.DisposeOne("a")
	report := reg.DisposeOne("a")

	assert.Equal(t, []string{"a"}, log.order)
	assert.Empty(t, report.Disposed)
}

func TestRegistry_DisposeOne_CyclicGraphTerminates(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}
	reg.RegisterDisposal("a", log.action("a"))
	reg.RegisterDisposal("b", log.action("b"))
	reg.RegisterDependency("a", "b")
	reg.RegisterDependency("b", "a")

	reg.DisposeOne("a")

	assert.ElementsMatch(t, []string{"a", "b"}, log.order)
}

func TestRegistry_DisposeOne_ContainedAfterContaining(t *testing.T) {
	reg := newRegistry(t)
	log := &actionLog{}
	reg.RegisterDisposal("outer", log.action("outer"))
	reg.RegisterDisposal("inner", log.action("inner"))
	reg.RegisterContained("inner", "outer")

	reg.DisposeOne("outer")

	assert.Equal(t, []string{"outer", "inner"}, log.order)
}

func TestRegistry_DisposeOne_CleansBackReferences(t *testing.T) {
	reg := newRegistry(t)
	reg.RegisterDependency("db", "repo")
	reg.RegisterDependency("cache", "repo")

	reg.DisposeOne("repo")

	assert.False(t, reg.Graph().HasDependents("db"))
	assert.False(t, reg.Graph().HasDependents("cache"))
	assert.Empty(t, reg.DependenciesOf("repo"))
}

// ── Properties ────────────────────────────────────────────────────────────────

// For any acyclic set of edges and any registration order, every dependent's
// action runs before the action of what it depends on.
func TestRegistry_Property_ShutdownRespectsEdges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "n")
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("s%d", i)
		}

		// edge i→j with i<j: s_i depends on s_j
		type edge struct{ dependent, dependency string }
		var edges []edge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("e%d_%d", i, j)) {
					edges = append(edges, edge{names[i], names[j]})
				}
			}
		}

		reg := registry.New()
		log := &actionLog{}
		for _, idx := range rapid.Permutation(rangeInts(n)).Draw(t, "order") {
			reg.RegisterDisposal(names[idx], log.action(names[idx]))
		}
		for _, e := range edges {
			reg.RegisterDependency(e.dependency, e.dependent)
		}

		reg.ShutdownAll(context.Background())

		if len(log.order) != n {
			t.Fatalf("ran %d actions, want %d", len(log.order), n)
		}
		for _, e := range edges {
			if log.indexOf(e.dependent) > log.indexOf(e.dependency) {
				t.Fatalf("%s disposed after its dependency %s: %v", e.dependent, e.dependency, log.order)
			}
		}
	})
}

func rangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
