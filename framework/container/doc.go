// Package container provides a Laravel-style IoC container and Service
// Provider system whose shared instances are managed by a lifecycle
// registry.
//
// # Overview
//
// The container maps names to factories. Transient bindings are built on
// every Make. Singletons are handed to the registry, which builds them
// exactly once, records which singleton needed which, and tears them down
// dependents-first on Shutdown. Because Go has no runtime constructor
// reflection, auto-wiring is replaced by explicit factory functions.
//
// # Container Lifecycle
//
//  1. Create: c := container.New()
//  2. Register providers: providers.Register(ctx, &MyProvider{})
//  3. Boot: providers.Boot(ctx)       safe to resolve everything after this
//  4. Serve requests
//  5. Shutdown: c.Shutdown(ctx)
//
// # Bindings
//
//	// Transient: new value every Make
//	c.Bind("request-id", func(ctx context.Context, c *container.Container) (any, error) {
//	    return uuid.NewString(), nil
//	})
//
//	// Singleton: built once, torn down on Shutdown
//	c.Singleton("db", func(ctx context.Context, c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*config.Config](ctx, c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return sql.Open("postgres", cfg.DSN)
//	})
//
//	// Pre-built value
//	_ = c.Instance("config", cfg)
//
//	// Alias
//	_ = c.Alias("db", "database")
//
// # Resolving
//
// Always pass the ctx a factory received to the Make calls it performs. It
// identifies the construction chain and the binding being built.
//
//	raw, err := c.Make(ctx, "db")
//	db, err := container.Resolve[*sql.DB](ctx, c, "db")
//
// # Lifecycle options
//
//	c.Singleton("api", newAPI,
//	    container.DependsOn("migrations"),              // built before, destroyed after
//	    container.WithDestroy(func(v any) error { ... }), // replaces io.Closer detection
//	)
//
//	// Two singletons that need each other: allocate, then wire.
//	c.Singleton("orders", newOrders, container.WithWiring(
//	    func(ctx context.Context, c *container.Container, inst any) error {
//	        users, err := container.Resolve[*Users](ctx, c, "users")
//	        inst.(*Orders).Users = users
//	        return err
//	    }))
//
// Singletons implementing io.Closer or Disposer are closed automatically.
//
// # Producers
//
// A singleton implementing registry.Producer exposes its product under its
// name. Prefix the name with "&" to get the producer itself.
//
//	pool, _ := c.Make(ctx, "pool")      // the produced object
//	factory, _ := c.Make(ctx, "&pool")  // the producer
//
// # Contextual Binding
//
//	c.When("photos").Needs("storage").Give(func(ctx context.Context, c *container.Container) (any, error) {
//	    return &S3Filesystem{}, nil
//	})
//
// # Tags
//
//	c.Tag([]string{"cpu-report", "mem-report"}, "reports")
//	reports, err := c.Tagged(ctx, "reports")
//
// # Extend / Decorate
//
//	c.Extend("logger", func(ctx context.Context, inst any, c *container.Container) (any, error) {
//	    return inst.(*slog.Logger).With("component", "api"), nil
//	})
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("mailer", newMailer)
//	}
//
//	providers := container.NewProviderRegistry(c)
//	_ = providers.Register(ctx, &AppServiceProvider{})
//	_ = providers.Boot(ctx)
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) {
//	    app.Singleton("heavy", heavySetup) // only called on first Make("heavy")
//	}
package container
