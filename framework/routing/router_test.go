package routing_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/km-arc/go-lifecycle/framework/routing"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func quietRouter() *routing.Router {
	return routing.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, router *routing.Router, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// ── HTTP verbs ────────────────────────────────────────────────────────────────

func TestRouter_Verbs(t *testing.T) {
	r := quietRouter()
	r.Get("/things", okHandler)
	r.Post("/things", okHandler)
	r.Put("/things/1", okHandler)
	r.Delete("/things/1", okHandler)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/things"},
		{http.MethodPost, "/things"},
		{http.MethodPut, "/things/1"},
		{http.MethodDelete, "/things/1"},
	} {
		if rr := do(t, r, tc.method, tc.path); rr.Code != http.StatusOK {
			t.Errorf("%s %s: got %d want 200", tc.method, tc.path, rr.Code)
		}
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := quietRouter()
	r.Get("/only-get", okHandler)

	if rr := do(t, r, http.MethodPost, "/only-get"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /only-get: got %d want 405", rr.Code)
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := quietRouter()
	if rr := do(t, r, http.MethodGet, "/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("GET /nope: got %d want 404", rr.Code)
	}
}

// ── Groups & params ───────────────────────────────────────────────────────────

func TestRouter_Prefix(t *testing.T) {
	r := quietRouter()
	r.Prefix("/admin", func(admin *routing.Router) {
		admin.Get("/ping", okHandler)
	})

	if rr := do(t, r, http.MethodGet, "/admin/ping"); rr.Code != http.StatusOK {
		t.Errorf("GET /admin/ping: got %d want 200", rr.Code)
	}
	if rr := do(t, r, http.MethodGet, "/ping"); rr.Code != http.StatusNotFound {
		t.Errorf("GET /ping: got %d want 404", rr.Code)
	}
}

func TestRouter_GroupMiddleware(t *testing.T) {
	r := quietRouter()
	r.Group(func(g *routing.Router) {
		g.Middleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("X-Group", "yes")
				next.ServeHTTP(w, req)
			})
		})
		g.Get("/inside", okHandler)
	})
	r.Get("/outside", okHandler)

	if got := do(t, r, http.MethodGet, "/inside").Header().Get("X-Group"); got != "yes" {
		t.Errorf("/inside X-Group: got %q want yes", got)
	}
	if got := do(t, r, http.MethodGet, "/outside").Header().Get("X-Group"); got != "" {
		t.Errorf("/outside X-Group: got %q want empty", got)
	}
}

func TestRouter_Handle(t *testing.T) {
	r := quietRouter()
	r.Handle("/metrics", http.HandlerFunc(okHandler))

	if rr := do(t, r, http.MethodGet, "/metrics"); rr.Body.String() != "ok" {
		t.Errorf("GET /metrics body: got %q want ok", rr.Body.String())
	}
}

// ── Middleware ────────────────────────────────────────────────────────────────

func TestRouter_RecoversPanics(t *testing.T) {
	r := quietRouter()
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	if rr := do(t, r, http.MethodGet, "/boom"); rr.Code != http.StatusInternalServerError {
		t.Errorf("GET /boom: got %d want 500", rr.Code)
	}
}

func TestRequestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	r := routing.New(slog.New(slog.NewTextHandler(&buf, nil)))
	r.Get("/hello", okHandler)

	do(t, r, http.MethodGet, "/hello")

	line := buf.String()
	for _, want := range []string{"http request", "method=GET", "path=/hello", "status=200"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}
