package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/km-arc/go-lifecycle/framework/admin"
	"github.com/km-arc/go-lifecycle/framework/config"
	"github.com/km-arc/go-lifecycle/framework/container"
	"github.com/km-arc/go-lifecycle/framework/metrics"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the application configuration and applies the
// alias manifest named by REGISTRY_ALIAS_FILE at boot.
//
// Bound names:
//   - "config"         → *config.Config (unless already bound)
//   - "configuration"  → alias of "config"
type ConfigServiceProvider struct {
	container.BaseProvider
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) {
	if !app.Bound("config") {
		envFiles := p.EnvFiles
		app.Singleton("config", func(context.Context, *container.Container) (any, error) {
			return config.Load(envFiles...), nil
		})
	}
	_ = app.Alias("config", "configuration")
}

func (p *ConfigServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	cfg, err := container.Resolve[*config.Config](ctx, app, "config")
	if err != nil {
		return err
	}
	if cfg.Registry.AliasFile == "" {
		return nil
	}
	manifest, err := config.LoadAliases(cfg.Registry.AliasFile)
	if err != nil {
		return err
	}
	return manifest.Apply(app.Registry())
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider is deferred: the registry metrics are only
// registered once something resolves "metrics".
//
// Bound names:
//   - "metrics" → *prometheus.Registry
type MetricsServiceProvider struct {
	container.BaseProvider

	// Registry receives the collectors. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

func (p *MetricsServiceProvider) Register(app *container.Container) {
	app.Singleton("metrics", func(context.Context, *container.Container) (any, error) {
		reg := p.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		metrics.Register(reg)
		return reg, nil
	})
}

func (p *MetricsServiceProvider) Provides() []string { return []string{"metrics"} }
func (p *MetricsServiceProvider) IsDeferred() bool   { return true }

// ── AdminServiceProvider ──────────────────────────────────────────────────────

// AdminServiceProvider binds the admin endpoints and the server that serves
// them. The server is a managed singleton: disposing "admin.server" shuts it
// down gracefully.
//
// Bound names:
//   - "admin"         → *admin.Handler
//   - "admin.server"  → *http.Server
type AdminServiceProvider struct {
	container.BaseProvider

	// ShutdownTimeout bounds the graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration

	// OnShutdown, when set, handles POST /shutdown. Without it the handler
	// disposes the registry itself, which stalls if it is being served by
	// admin.server.
	OnShutdown func()
}

func (p *AdminServiceProvider) Register(app *container.Container) {
	app.Singleton("admin", func(ctx context.Context, c *container.Container) (any, error) {
		cfg, err := container.Resolve[*config.Config](ctx, c, "config")
		if err != nil {
			return nil, err
		}
		logger, err := container.Resolve[*slog.Logger](ctx, c, "logger")
		if err != nil {
			return nil, err
		}
		gatherer, err := container.Resolve[*prometheus.Registry](ctx, c, "metrics")
		if err != nil {
			return nil, err
		}
		opts := []admin.Option{
			admin.WithLogger(logger),
			admin.WithToken(cfg.Admin.Token),
			admin.WithGatherer(gatherer),
		}
		if p.OnShutdown != nil {
			opts = append(opts, admin.WithShutdownHook(p.OnShutdown))
		}
		return admin.New(c.Registry(), opts...), nil
	})

	timeout := p.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	app.Singleton("admin.server", func(ctx context.Context, c *container.Container) (any, error) {
		cfg, err := container.Resolve[*config.Config](ctx, c, "config")
		if err != nil {
			return nil, err
		}
		handler, err := container.Resolve[*admin.Handler](ctx, c, "admin")
		if err != nil {
			return nil, err
		}
		return &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}, nil
	}, container.WithDestroy(func(instance any) error {
		srv, ok := instance.(*http.Server)
		if !ok {
			return fmt.Errorf("providers: admin.server is %T", instance)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}))
}
