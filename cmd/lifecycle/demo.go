package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-lifecycle/framework/container"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Build a small singleton graph with a cycle, then shut it down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// ── demo graph ────────────────────────────────────────────────────────────────

type resource struct{ name string }

func (r *resource) Close() error { return nil }

type service struct {
	name string
	peer *service
}

func (s *service) Dispose() error { return nil }

// runDemo builds db ← cache ← orders ⇄ payments. The orders/payments cycle is
// broken by wiring orders after construction.
func runDemo(ctx context.Context, out io.Writer) error {
	c := container.New(container.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	c.Singleton("db", func(context.Context, *container.Container) (any, error) {
		return &resource{name: "db"}, nil
	})
	c.Singleton("cache", func(ctx context.Context, c *container.Container) (any, error) {
		if _, err := c.Make(ctx, "db"); err != nil {
			return nil, err
		}
		return &resource{name: "cache"}, nil
	})
	c.Singleton("orders", func(context.Context, *container.Container) (any, error) {
		return &service{name: "orders"}, nil
	}, container.DependsOn("cache"), container.WithWiring(func(ctx context.Context, c *container.Container, inst any) error {
		peer, err := container.Resolve[*service](ctx, c, "payments")
		if err != nil {
			return err
		}
		inst.(*service).peer = peer
		return nil
	}))
	c.Singleton("payments", func(ctx context.Context, c *container.Container) (any, error) {
		orders, err := container.Resolve[*service](ctx, c, "orders")
		if err != nil {
			return nil, err
		}
		return &service{name: "payments", peer: orders}, nil
	})

	orders, err := container.Resolve[*service](ctx, c, "orders")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "orders → %s → %s\n", orders.peer.name, orders.peer.peer.name)

	reg := c.Registry()
	for _, name := range reg.ListNames() {
		if name == "container" {
			continue
		}
		fmt.Fprintf(out, "%-9s dependents=%v\n", name, reg.DependentsOf(name))
	}

	report := c.Shutdown(ctx)
	fmt.Fprintf(out, "disposed: %s\n", strings.Join(report.Disposed, ", "))
	for _, f := range report.Failures {
		fmt.Fprintf(out, "failed: %v\n", f)
	}
	return nil
}
