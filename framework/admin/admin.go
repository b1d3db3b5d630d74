// Package admin serves HTTP endpoints for inspecting and tearing down the
// singletons held by a registry.
//
//	GET    /singletons            list, optional ?prefix=
//	GET    /singletons/{name}     one singleton with its edges and aliases
//	DELETE /singletons/{name}     dispose it and its dependents
//	GET    /aliases/{name}        canonical name and aliases
//	POST   /aliases               {"name": "...", "alias": "..."}
//	PUT    /aliases/{alias}       {"name": "..."} point alias at name
//	POST   /shutdown              dispose everything
//
// When the handler is served by a server the registry manages, give it
// WithShutdownHook: disposing that server from inside one of its own
// requests would wait on the request itself.
//	GET    /metrics               prometheus exposition
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/go-lifecycle/framework/alias"
	gohttp "github.com/km-arc/go-lifecycle/framework/http"
	"github.com/km-arc/go-lifecycle/framework/registry"
	"github.com/km-arc/go-lifecycle/framework/routing"
)

// Handler is the admin http.Handler.
type Handler struct {
	reg      *registry.Registry
	logger   *slog.Logger
	token    string
	gatherer prometheus.Gatherer
	onStop   func()
	router   *routing.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and audit logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(h *Handler) { h.token = token }
}

// WithGatherer sets the metrics source for /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// WithShutdownHook makes POST /shutdown answer 202 and call stop in the
// background instead of disposing the registry inside the request. stop is
// expected to end up in a full shutdown, as Application.RequestShutdown does.
func WithShutdownHook(stop func()) Option {
	return func(h *Handler) { h.onStop = stop }
}

// New builds the admin handler over reg.
func New(reg *registry.Registry, opts ...Option) *Handler {
	h := &Handler{
		reg:      reg,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := routing.New(h.logger)
	r.Group(func(r *routing.Router) {
		if h.token != "" {
			r.Middleware(h.requireToken)
		}
		r.Prefix("/singletons", func(r *routing.Router) {
			r.Get("/", h.listSingletons)
			r.Get("/{name}", h.showSingleton)
			r.Delete("/{name}", h.disposeSingleton)
		})
		r.Prefix("/aliases", func(r *routing.Router) {
			r.Post("/", h.registerAlias)
			r.Get("/{name}", h.showAliases)
			r.Put("/{alias}", h.pointAlias)
		})
		r.Post("/shutdown", h.shutdown)
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ── payloads ──────────────────────────────────────────────────────────────────

// Singleton describes one registered name.
type Singleton struct {
	Name         string   `json:"name"`
	State        string   `json:"state"` // ready | early
	Type         string   `json:"type,omitempty"`
	Aliases      []string `json:"aliases"`
	Dependents   []string `json:"dependents"`
	Dependencies []string `json:"dependencies"`
	Disposable   bool     `json:"disposable"`
}

// Report is the JSON form of a registry.DisposalReport.
type Report struct {
	Disposed []string  `json:"disposed"`
	Failures []Failure `json:"failures"`
}

type Failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func toReport(r *registry.DisposalReport) Report {
	out := Report{Disposed: r.Disposed, Failures: []Failure{}}
	if out.Disposed == nil {
		out.Disposed = []string{}
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, Failure{Name: f.Name, Error: f.Err.Error()})
	}
	return out
}

func (h *Handler) describe(r *http.Request, name string) Singleton {
	s := Singleton{
		Name:         name,
		State:        "early",
		Aliases:      h.reg.AliasesOf(name),
		Dependents:   h.reg.DependentsOf(name),
		Dependencies: h.reg.DependenciesOf(name),
		Disposable:   h.reg.HasDisposal(name),
	}
	if h.reg.Contains(name) {
		s.State = "ready"
		if inst, ok := h.reg.Get(r.Context(), name); ok {
			s.Type = fmt.Sprintf("%T", inst)
		}
	}
	return s
}

func (h *Handler) registered(name string) bool {
	for _, n := range h.reg.ListNames() {
		if n == name {
			return true
		}
	}
	return false
}

// ── handlers ──────────────────────────────────────────────────────────────────

func (h *Handler) listSingletons(w http.ResponseWriter, r *http.Request) {
	prefix := gohttp.NewRequest(r).Query("prefix")

	out := []Singleton{}
	for _, name := range h.reg.ListNames() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, h.describe(r, name))
		}
	}
	gohttp.NewResponse(w).Success(out)
}

func (h *Handler) showSingleton(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	name := h.reg.CanonicalName(gohttp.NewRequest(r).RouteParam("name"))
	if !h.registered(name) {
		res.NotFound(fmt.Sprintf("no singleton [%s]", name))
		return
	}
	res.Success(h.describe(r, name))
}

func (h *Handler) disposeSingleton(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	name := h.reg.CanonicalName(gohttp.NewRequest(r).RouteParam("name"))
	if !h.registered(name) && !h.reg.HasDisposal(name) {
		res.NotFound(fmt.Sprintf("no singleton [%s]", name))
		return
	}

	report := h.reg.DisposeOne(name)
	h.logger.Info("singleton disposed via admin", "name", name,
		"disposed", len(report.Disposed), "failures", len(report.Failures))
	res.Success(toReport(report))
}

func (h *Handler) showAliases(w http.ResponseWriter, r *http.Request) {
	name := gohttp.NewRequest(r).RouteParam("name")
	canonical := h.reg.CanonicalName(name)
	gohttp.NewResponse(w).Success(map[string]any{
		"name":      canonical,
		"requested": name,
		"aliases":   h.reg.AliasesOf(canonical),
	})
}

func (h *Handler) registerAlias(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var body struct {
		Name  string `json:"name"`
		Alias string `json:"alias"`
	}
	if err := req.BindJSON(&body); err != nil {
		res.Fail(http.StatusBadRequest, err)
		return
	}
	h.applyAlias(res, body.Name, body.Alias, res.Created)
}

func (h *Handler) pointAlias(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var body struct {
		Name string `json:"name"`
	}
	if err := req.BindJSON(&body); err != nil {
		res.Fail(http.StatusBadRequest, err)
		return
	}
	h.applyAlias(res, body.Name, req.RouteParam("alias"), res.Success)
}

func (h *Handler) applyAlias(res *gohttp.Response, name, aliasName string, ok func(any)) {
	err := h.reg.RegisterAlias(name, aliasName)
	var conflict *alias.ConflictError
	var circular *alias.CircularityError
	switch {
	case err == nil:
		h.logger.Info("alias registered via admin", "alias", aliasName, "name", name)
		ok(map[string]string{"name": name, "alias": aliasName})
	case errors.As(err, &conflict), errors.As(err, &circular):
		res.Fail(http.StatusConflict, err)
	default:
		res.Fail(http.StatusBadRequest, err)
	}
}

func (h *Handler) shutdown(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("shutdown requested via admin", "remote", r.RemoteAddr)
	res := gohttp.NewResponse(w)
	if h.onStop != nil {
		res.Accepted(map[string]string{"status": "shutting down"})
		go h.onStop()
		return
	}
	res.Success(toReport(h.reg.ShutdownAll(r.Context())))
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := gohttp.NewRequest(r).BearerToken()
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			gohttp.NewResponse(w).Unauthorized()
			return
		}
		next.ServeHTTP(w, r)
	})
}
