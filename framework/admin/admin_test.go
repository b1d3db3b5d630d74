package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-lifecycle/framework/admin"
	"github.com/km-arc/go-lifecycle/framework/registry"
)

// ── helpers ──────────────────────────────────────────────────────────────────

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func seeded(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.WithLogger(quiet), registry.WithReopenAfterShutdown(true))
	require.NoError(t, reg.Register("db", &struct{ DSN string }{"postgres://"}))
	require.NoError(t, reg.Register("repo", "repo"))
	require.NoError(t, reg.Register("api", "api"))
	reg.RegisterDependency("db", "repo")
	reg.RegisterDependency("repo", "api")
	for _, n := range []string{"db", "repo", "api"} {
		reg.RegisterDisposal(n, registry.DisposalFunc(func() error { return nil }))
	}
	require.NoError(t, reg.RegisterAlias("db", "database"))
	return reg
}

func serve(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env.Data
}

// ── singletons ────────────────────────────────────────────────────────────────

func TestAdmin_ListSingletons(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodGet, "/singletons", "")
	require.Equal(t, http.StatusOK, rr.Code)

	list := decodeData[[]admin.Singleton](t, rr)
	require.Len(t, list, 3)
	assert.Equal(t, "db", list[0].Name)
	assert.Equal(t, "ready", list[0].State)
	assert.Equal(t, []string{"repo"}, list[0].Dependents)
	assert.Equal(t, []string{"database"}, list[0].Aliases)
	assert.True(t, list[0].Disposable)
}

func TestAdmin_ListSingletons_Prefix(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet))

	list := decodeData[[]admin.Singleton](t, serve(t, h, http.MethodGet, "/singletons?prefix=re", ""))
	require.Len(t, list, 1)
	assert.Equal(t, "repo", list[0].Name)
}

func TestAdmin_ShowSingleton_ByAlias(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodGet, "/singletons/database", "")
	require.Equal(t, http.StatusOK, rr.Code)

	s := decodeData[admin.Singleton](t, rr)
	assert.Equal(t, "db", s.Name)
	assert.Equal(t, "*struct { DSN string }", s.Type)
}

func TestAdmin_ShowSingleton_NotFound(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet))
	rr := serve(t, h, http.MethodGet, "/singletons/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdmin_DisposeSingleton_CascadesToDependents(t *testing.T) {
	reg := seeded(t)
	h := admin.New(reg, admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodDelete, "/singletons/repo", "")
	require.Equal(t, http.StatusOK, rr.Code)

	report := decodeData[admin.Report](t, rr)
	assert.Equal(t, []string{"api", "repo"}, report.Disposed)
	assert.Empty(t, report.Failures)
	assert.True(t, reg.Contains("db"))
	assert.False(t, reg.Contains("api"))

	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodDelete, "/singletons/repo", "").Code)
}

func TestAdmin_DisposeSingleton_ReportsFailures(t *testing.T) {
	reg := registry.New(registry.WithLogger(quiet))
	require.NoError(t, reg.Register("flaky", "flaky"))
	reg.RegisterDisposal("flaky", registry.DisposalFunc(func() error { return errors.New("socket stuck") }))
	h := admin.New(reg, admin.WithLogger(quiet))

	report := decodeData[admin.Report](t, serve(t, h, http.MethodDelete, "/singletons/flaky", ""))

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "flaky", report.Failures[0].Name)
	assert.Contains(t, report.Failures[0].Error, "socket stuck")
}

// ── aliases ───────────────────────────────────────────────────────────────────

func TestAdmin_ShowAliases(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet))

	got := decodeData[map[string]any](t, serve(t, h, http.MethodGet, "/aliases/database", ""))
	assert.Equal(t, "db", got["name"])
	assert.Equal(t, "database", got["requested"])
	assert.Equal(t, []any{"database"}, got["aliases"])
}

func TestAdmin_RegisterAlias(t *testing.T) {
	reg := seeded(t)
	h := admin.New(reg, admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodPost, "/aliases", `{"name":"repo","alias":"repository"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "repo", reg.CanonicalName("repository"))

	rr = serve(t, h, http.MethodPost, "/aliases", `{"name":"database","alias":"db"}`)
	assert.Equal(t, http.StatusConflict, rr.Code, "db → database → db is a cycle")

	rr = serve(t, h, http.MethodPost, "/aliases", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, http.MethodPost, "/aliases", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdmin_PointAlias(t *testing.T) {
	reg := seeded(t)
	h := admin.New(reg, admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodPut, "/aliases/database", `{"name":"repo"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "repo", reg.CanonicalName("database"))

	rr = serve(t, h, http.MethodPut, "/aliases/repo", `{"name":"database"}`)
	assert.Equal(t, http.StatusConflict, rr.Code, "repo → database → repo is a cycle")
}

// ── shutdown & metrics ────────────────────────────────────────────────────────

func TestAdmin_Shutdown(t *testing.T) {
	reg := seeded(t)
	h := admin.New(reg, admin.WithLogger(quiet))

	rr := serve(t, h, http.MethodPost, "/shutdown", "")
	require.Equal(t, http.StatusOK, rr.Code)

	report := decodeData[admin.Report](t, rr)
	assert.Equal(t, []string{"api", "repo", "db"}, report.Disposed)
	assert.Equal(t, 0, reg.Count())

	_, err := reg.GetOrCreate(context.Background(), "again", func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err, "built WithReopenAfterShutdown")
}

func TestAdmin_ShutdownHookAnswersBeforeDisposing(t *testing.T) {
	reg := seeded(t)
	called := make(chan struct{})
	h := admin.New(reg, admin.WithLogger(quiet), admin.WithShutdownHook(func() { close(called) }))

	rr := serve(t, h, http.MethodPost, "/shutdown", "")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
	assert.Equal(t, 3, reg.Count(), "the hook owns the shutdown")
}

func TestAdmin_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_test_total", Help: "test"})
	promReg.MustRegister(counter)
	counter.Inc()

	h := admin.New(seeded(t), admin.WithLogger(quiet), admin.WithGatherer(promReg))
	rr := serve(t, h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "admin_test_total 1")
}

// ── auth ──────────────────────────────────────────────────────────────────────

func TestAdmin_Token(t *testing.T) {
	h := admin.New(seeded(t), admin.WithLogger(quiet), admin.WithToken("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, serve(t, h, http.MethodGet, "/singletons", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(t, h, http.MethodGet, "/singletons", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK,
		serve(t, h, http.MethodGet, "/singletons", "", "Authorization", "Bearer s3cret").Code)
}
