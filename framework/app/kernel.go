package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/km-arc/go-lifecycle/framework/alias"
	"github.com/km-arc/go-lifecycle/framework/config"
	"github.com/km-arc/go-lifecycle/framework/container"
	"github.com/km-arc/go-lifecycle/framework/logging"
	"github.com/km-arc/go-lifecycle/framework/providers"
	"github.com/km-arc/go-lifecycle/framework/registry"
)

const tracerName = "github.com/km-arc/go-lifecycle/framework/registry"

// Application is the top-level container. It embeds the Container and the
// ProviderRegistry, so user code calls app.Singleton() and app.Register()
// directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg    *config.Config
	logger *slog.Logger

	runMu     sync.Mutex
	stopRun   context.CancelFunc
	adminAddr string
}

// Option configures an Application.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends the application log to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New loads configuration from envFiles and builds the application.
func New(envFiles ...string) *Application {
	return NewWithConfig(config.Load(envFiles...))
}

// NewWithConfig builds the application from cfg: logger, alias table,
// singleton registry and container, plus the framework providers.
func NewWithConfig(cfg *config.Config, opts ...Option) *Application {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.New(cfg.Log, o.logOutput).With("app", cfg.App.Name)

	aliases := alias.New(
		alias.WithOverriding(cfg.Registry.AllowAliasOverriding),
		alias.WithLogger(logger),
	)
	reg := registry.New(
		registry.WithAliasTable(aliases),
		registry.WithReopenAfterShutdown(cfg.Registry.ReopenAfterShutdown),
		registry.WithLogger(logger),
		registry.WithTracer(otel.Tracer(tracerName)),
	)
	c := container.New(
		container.WithRegistry(reg),
		container.WithLogger(logger),
		container.WithCircularReferences(cfg.Registry.AllowCircularReferences),
	)

	a := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
		cfg:       cfg,
		logger:    logger,
	}
	if err := c.Instance("config", cfg); err != nil {
		logger.Error("registering config failed", "error", err)
	}
	if err := c.Instance("logger", logger); err != nil {
		logger.Error("registering logger failed", "error", err)
	}
	if err := c.Alias("container", "app"); err != nil {
		logger.Error("aliasing container failed", "error", err)
	}

	ctx := context.Background()
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{},
		&providers.MetricsServiceProvider{},
		&providers.AdminServiceProvider{OnShutdown: a.RequestShutdown},
	} {
		if err := a.Providers.Register(ctx, p); err != nil {
			logger.Error("registering framework provider failed", "provider", fmt.Sprintf("%T", p), "error", err)
		}
	}
	return a
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(ctx context.Context, provider container.ServiceProvider) error {
	return a.Providers.Register(ctx, provider)
}

// Boot runs the Boot phase on all registered providers.
func (a *Application) Boot(ctx context.Context) error {
	return a.Providers.Boot(ctx)
}

// Config returns the application configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// Run boots the application if needed, serves the admin endpoints when
// enabled, and blocks until ctx is done, SIGINT/SIGTERM arrives,
// RequestShutdown is called or the admin server stops. Every managed
// singleton is disposed before Run returns.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.runMu.Lock()
	a.stopRun = cancel
	a.runMu.Unlock()
	defer func() {
		a.runMu.Lock()
		a.stopRun, a.adminAddr = nil, ""
		a.runMu.Unlock()
	}()

	if !a.Providers.Booted() {
		if err := a.Boot(ctx); err != nil {
			a.Shutdown(context.Background())
			return err
		}
	}

	served := make(chan error, 1)
	if a.cfg.Admin.Enabled {
		srv, err := container.Resolve[*http.Server](ctx, a.Container, "admin.server")
		if err != nil {
			a.Shutdown(context.Background())
			return err
		}
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			a.Shutdown(context.Background())
			return fmt.Errorf("app: admin listener: %w", err)
		}
		a.runMu.Lock()
		a.adminAddr = ln.Addr().String()
		a.runMu.Unlock()
		a.logger.Info("admin endpoints listening", "addr", ln.Addr().String())
		go func() {
			err := srv.Serve(ln)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			served <- err
		}()
	}

	a.logger.Info("application running", "env", a.cfg.App.Env)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case runErr = <-served:
		if runErr != nil {
			a.logger.Error("admin server failed", "error", runErr)
		} else {
			a.logger.Info("admin server closed")
		}
	}

	report := a.Shutdown(context.Background())
	if runErr == nil && len(report.Failures) > 0 {
		runErr = report.Failures[0]
	}
	return runErr
}

// RequestShutdown asks a running Run to stop. Outside Run it disposes every
// managed singleton in the background.
func (a *Application) RequestShutdown() {
	a.runMu.Lock()
	stop := a.stopRun
	a.runMu.Unlock()
	if stop != nil {
		stop()
		return
	}
	go a.Shutdown(context.Background())
}

// AdminAddr returns the address the admin server listens on while Run is
// serving it, or "".
func (a *Application) AdminAddr() string {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.adminAddr
}

// Shutdown disposes every managed singleton and logs the outcome.
func (a *Application) Shutdown(ctx context.Context) *registry.DisposalReport {
	report := a.Container.Shutdown(ctx)
	a.logger.Info("singletons destroyed",
		"disposed", len(report.Disposed), "failures", len(report.Failures))
	return report
}

// Environment returns APP_ENV.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
func (a *Application) Version() string     { return "0.1.0" }
