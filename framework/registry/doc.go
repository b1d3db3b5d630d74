// Package registry manages the lifecycle of shared (singleton) instances:
// exactly-once construction, early references that break construction
// cycles, a lazily discovered dependency graph, and ordered teardown.
//
// # Cache tiers
//
// Each name holds at most one of:
//
//   - a finished instance, fully constructed;
//   - an early factory, registered while the name is constructing;
//   - an early instance, materialized from the early factory on first request.
//
// Installing the finished instance purges both early tiers.
//
// # Construction
//
//	inst, err := reg.GetOrCreate(ctx, "orders", func(ctx context.Context) (any, error) {
//	    svc := &OrderService{}
//	    reg.RegisterEarlyFactory("orders", func() any { return svc })
//
//	    // may ask for "orders" again; it receives svc
//	    repo, err := reg.GetOrCreate(ctx, "repo", newRepo)
//	    if err != nil {
//	        return nil, err
//	    }
//	    svc.Repo = repo.(*Repo)
//	    return svc, nil
//	})
//
// The context handed to a factory identifies its construction chain. Nested
// registry calls must use it: calls from the same chain re-enter the
// registry's construction lock, calls from other chains wait for it.
//
// # Teardown
//
//	reg.RegisterDisposal("repo", registry.CloserAction(repo))
//	reg.RegisterDependency("repo", "orders") // orders depends on repo
//	reg.ShutdownAll(ctx)                      // orders first, then repo
//
// A failing disposal action is logged and reported; it never stops the rest
// of the shutdown.
package registry
