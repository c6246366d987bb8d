package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/morezero/endpoint-console/internal/config"
	"github.com/morezero/endpoint-console/pkg/dispatcher"
	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/invoke"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/session"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

const serverTestPrefix = "server:server_test"

func billingModules(address string) []endpoints.Module {
	return []endpoints.Module{
		{Name: "billing", Services: []endpoints.Service{
			{Name: "invoices", Address: address, Version: "1.4.0", Routes: []endpoints.Route{
				{Path: "/v1/invoices", Method: endpoints.MethodGet, Visibility: endpoints.VisibilityPublic},
				{Path: "/v1/invoices", Method: endpoints.MethodPost, Visibility: endpoints.VisibilityPublic},
				{Path: "/v1/invoices/{id}", Method: endpoints.MethodGet, Visibility: endpoints.VisibilityPublic},
				{Path: "/v1/invoices/{id}", Method: endpoints.MethodDelete, Visibility: endpoints.VisibilityPrivate},
			}},
		}},
	}
}

// testServer returns a Server wired against a static snapshot. A nil
// modules slice leaves the holder without any snapshot.
func testServer(t *testing.T, modules []endpoints.Module) *Server {
	t.Helper()
	params := registry.NewHolderParams{}
	if modules != nil {
		params.Source = &snapshot.StaticSource{Modules: modules}
	}
	holder := registry.NewHolder(params)
	if modules != nil {
		if _, err := holder.Reload(context.Background()); err != nil {
			t.Fatalf("%s - Reload: %v", serverTestPrefix, err)
		}
	}
	sessions := session.NewManager(session.NewManagerParams{
		Registries: holder,
		Invoker:    invoke.NewEngine(invoke.NewEngineParams{Timeout: 5 * time.Second}),
	})
	cfg := &config.Config{
		HealthCheckTimeout: 5 * time.Second,
		RequestTimeout:     5 * time.Second,
	}
	return newServer(newServerParams{Config: cfg, Registries: holder, Sessions: sessions})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *dispatcher.ErrorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == nil {
		t.Fatalf("%s - error body %q: %v", serverTestPrefix, rec.Body.String(), err)
	}
	return body.Error
}

func TestHandleHome_Success(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))
	rec := do(t, s, http.MethodGet, "/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d", serverTestPrefix, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("%s - Content-Type = %q", serverTestPrefix, ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"Endpoint Console", "status-healthy", `href="/modules/billing"`, "invoices", "/v1/invoices/{id}", "localhost:8081"} {
		if !strings.Contains(body, want) {
			t.Errorf("%s - home page missing %q", serverTestPrefix, want)
		}
	}
}

func TestHandleHome_NoSnapshot(t *testing.T) {
	s := testServer(t, nil)
	rec := do(t, s, http.MethodGet, "/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d", serverTestPrefix, rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Could not load the endpoint snapshot") || !strings.Contains(body, "status-unhealthy") {
		t.Errorf("%s - home page should report the missing snapshot", serverTestPrefix)
	}
}

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name       string
		modules    []endpoints.Module
		wantHealth int
		wantStatus string
		wantReady  int
	}{
		{"loaded", billingModules("localhost:8081"), http.StatusOK, "healthy", http.StatusOK},
		{"no snapshot", nil, http.StatusServiceUnavailable, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, tt.modules)

			rec := do(t, s, http.MethodGet, "/health", "")
			if rec.Code != tt.wantHealth {
				t.Errorf("%s - /health status = %d, want %d", serverTestPrefix, rec.Code, tt.wantHealth)
			}
			var h registry.HealthOutput
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatalf("%s - decode health: %v", serverTestPrefix, err)
			}
			if h.Status != tt.wantStatus {
				t.Errorf("%s - health status = %q, want %q", serverTestPrefix, h.Status, tt.wantStatus)
			}

			rec = do(t, s, http.MethodGet, "/ready", "")
			if rec.Code != tt.wantReady {
				t.Errorf("%s - /ready status = %d, want %d", serverTestPrefix, rec.Code, tt.wantReady)
			}
		})
	}
}

func TestAPI_Modules(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))

	rec := do(t, s, http.MethodGet, "/api/modules", "")
	var modules []endpoints.Module
	if err := json.Unmarshal(rec.Body.Bytes(), &modules); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - /api/modules = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if len(modules) != 1 || len(modules[0].Services[0].Routes) != 4 {
		t.Errorf("%s - modules = %+v", serverTestPrefix, modules)
	}

	rec = do(t, s, http.MethodGet, "/api/modules/shipping", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != registry.CodeModuleNotFound {
		t.Errorf("%s - unknown module = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestAPI_Resolve(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))

	rec := do(t, s, http.MethodGet, "/api/resolve?method=get&module=billing&service=invoices&path=/v1/invoices", "")
	var out registry.ResolveOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - resolve = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if out.URL != "http://localhost:8081/v1/invoices" || !out.DefaultScheme {
		t.Errorf("%s - resolve output = %+v", serverTestPrefix, out)
	}

	tests := []struct {
		name     string
		query    string
		wantCode string
		status   int
	}{
		{"missing service", "method=GET&module=billing&service=ledger&path=/v1/invoices", registry.CodeServiceNotFound, http.StatusNotFound},
		{"method mismatch", "method=PUT&module=billing&service=invoices&path=/v1/invoices", registry.CodeRouteNotFound, http.StatusNotFound},
		{"bad method", "method=TRACE&module=billing&service=invoices&path=/v1/invoices", registry.CodeInvalidArgument, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/resolve?"+tt.query, "")
			if rec.Code != tt.status {
				t.Errorf("%s - status = %d, want %d", serverTestPrefix, rec.Code, tt.status)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode || got.Retryable {
				t.Errorf("%s - error = %+v, want %s", serverTestPrefix, got, tt.wantCode)
			}
		})
	}
}

func TestAPI_Discover(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))

	rec := do(t, s, http.MethodGet, "/api/discover?q=invoices/%7Bid%7D&limit=10", "")
	var out registry.DiscoverOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - discover = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if out.Pagination.Total != 2 || out.Pagination.Limit != 10 {
		t.Errorf("%s - discover pagination = %+v", serverTestPrefix, out.Pagination)
	}

	rec = do(t, s, http.MethodGet, "/api/discover?page=two", "")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != registry.CodeInvalidArgument {
		t.Errorf("%s - bad page = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestAPI_RegistryUnavailable(t *testing.T) {
	s := testServer(t, nil)

	for _, target := range []string{"/api/modules", "/api/stats", "/api/discover", "/api/resolve?method=GET"} {
		rec := do(t, s, http.MethodGet, target, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s - %s status = %d", serverTestPrefix, target, rec.Code)
			continue
		}
		if got := decodeError(t, rec); got.Code != registry.CodeRegistryUnavailable || !got.Retryable {
			t.Errorf("%s - %s error = %+v", serverTestPrefix, target, got)
		}
	}

	rec := do(t, s, http.MethodPost, "/api/registry/reload", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("%s - reload status = %d", serverTestPrefix, rec.Code)
	}
}

func TestAPI_StatsAndReload(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/stats"},
		{http.MethodPost, "/api/registry/reload"},
	} {
		rec := do(t, s, tc.method, tc.target, "")
		var stats registry.StatsOutput
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil || rec.Code != http.StatusOK {
			t.Fatalf("%s - %s = %d %q", serverTestPrefix, tc.target, rec.Code, rec.Body.String())
		}
		if stats.Modules != 1 || stats.Services != 1 || stats.Routes != 4 || stats.Source != "static" {
			t.Errorf("%s - %s stats = %+v", serverTestPrefix, tc.target, stats)
		}
	}
}

func TestAPI_Version(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = orig })

	// Version answers even before a snapshot loads.
	for _, modules := range [][]endpoints.Module{billingModules("localhost:8081"), nil} {
		rec := do(t, testServer(t, modules), http.MethodGet, "/api/version", "")
		var out versionOutput
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || rec.Code != http.StatusOK {
			t.Fatalf("%s - /api/version = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
		}
		if out.Version != "1.2.3" || out.Status != "ok" {
			t.Errorf("%s - version output = %+v", serverTestPrefix, out)
		}
	}
}

func TestAPI_Invoke(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("internal error"))
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer target.Close()
	s := testServer(t, billingModules(target.URL))

	rec := do(t, s, http.MethodPost, "/api/invoke", `{"module":"billing","service":"invoices","path":"/v1/invoices","method":"POST","body":{"amount":5}}`)
	var out session.CallOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - invoke = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if !out.Result.Success || out.Result.StatusCode == nil || *out.Result.StatusCode != http.StatusCreated {
		t.Errorf("%s - invoke result = %+v", serverTestPrefix, out.Result)
	}
	if payload, ok := out.Result.Payload.(map[string]interface{}); !ok || payload["amount"] != float64(5) {
		t.Errorf("%s - payload = %#v", serverTestPrefix, out.Result.Payload)
	}

	// A 500 from the target is a completed call with an error outcome.
	rec = do(t, s, http.MethodPost, "/api/invoke", `{"module":"billing","service":"invoices","path":"/v1/invoices","method":"GET"}`)
	out = session.CallOutput{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - invoke GET = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if out.Result.Success || out.Result.Outcome != invoke.OutcomeServerError {
		t.Errorf("%s - 500 result = %+v", serverTestPrefix, out.Result)
	}
	if payload, ok := out.Result.Payload.(map[string]interface{}); !ok || payload["message"] != "internal error" {
		t.Errorf("%s - 500 payload = %#v", serverTestPrefix, out.Result.Payload)
	}

	rec = do(t, s, http.MethodPost, "/api/invoke", `{"module":"billing"`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("%s - malformed body status = %d", serverTestPrefix, rec.Code)
	}
}

func TestAPI_SessionLifecycle(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"method":"` + r.Method + `"}`))
	}))
	defer target.Close()
	s := testServer(t, billingModules(target.URL))
	h := s.routes()

	call := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
		return rec
	}
	snap := func(rec *httptest.ResponseRecorder) session.Snapshot {
		t.Helper()
		var out session.Snapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s - decode snapshot %q: %v", serverTestPrefix, rec.Body.String(), err)
		}
		return out
	}

	rec := call(http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("%s - create status = %d", serverTestPrefix, rec.Code)
	}
	created := snap(rec)
	if created.State != session.StateIdle || created.ID == "" {
		t.Fatalf("%s - created = %+v", serverTestPrefix, created)
	}
	base := "/api/sessions/" + created.ID

	// GET routes are invoked as soon as they are selected.
	rec = call(http.MethodPost, base+"/select?wait=true", `{"module":"billing","service":"invoices","path":"/v1/invoices","method":"GET"}`)
	got := snap(rec)
	if rec.Code != http.StatusOK || got.State != session.StateResolved || got.Result == nil || !got.Result.Success {
		t.Fatalf("%s - GET select = %d %+v", serverTestPrefix, rec.Code, got)
	}

	// Other methods stay idle until submitted.
	rec = call(http.MethodPost, base+"/select", `{"module":"billing","service":"invoices","path":"/v1/invoices","method":"POST"}`)
	got = snap(rec)
	if rec.Code != http.StatusOK || got.State != session.StateIdle || got.Target == nil || got.Result != nil {
		t.Fatalf("%s - POST select = %d %+v", serverTestPrefix, rec.Code, got)
	}

	rec = call(http.MethodPost, base+"/submit", `{"amount":`)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != registry.CodeInvalidArgument {
		t.Errorf("%s - invalid submit = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}

	rec = call(http.MethodPost, base+"/submit?wait=1", `{"amount":5}`)
	got = snap(rec)
	if rec.Code != http.StatusOK || got.State != session.StateResolved || string(got.Body) != `{"amount":5}` {
		t.Fatalf("%s - submit = %d %+v", serverTestPrefix, rec.Code, got)
	}
	if payload, ok := got.Result.Payload.(map[string]interface{}); !ok || payload["method"] != "POST" {
		t.Errorf("%s - submit payload = %#v", serverTestPrefix, got.Result.Payload)
	}

	// A selection that does not resolve is reported and leaves the view idle.
	rec = call(http.MethodPost, base+"/select", `{"module":"billing","service":"invoices","path":"/v2/invoices","method":"GET"}`)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != registry.CodeRouteNotFound {
		t.Errorf("%s - unresolved select = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	rec = call(http.MethodGet, base, "")
	got = snap(rec)
	if got.State != session.StateIdle || got.ResolveError == nil || got.ResolveError.Code != registry.CodeRouteNotFound {
		t.Errorf("%s - after unresolved select = %+v", serverTestPrefix, got)
	}
	rec = call(http.MethodPost, base+"/submit", `{}`)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "NO_SELECTION" {
		t.Errorf("%s - submit without target = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}

	rec = call(http.MethodGet, "/api/sessions", "")
	var list []session.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("%s - list = %q", serverTestPrefix, rec.Body.String())
	}

	if rec = call(http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Errorf("%s - close status = %d", serverTestPrefix, rec.Code)
	}
	rec = call(http.MethodGet, base, "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "SESSION_NOT_FOUND" {
		t.Errorf("%s - get after close = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestModulePageAndDocs(t *testing.T) {
	s := testServer(t, billingModules("https://billing.internal/"))

	rec := do(t, s, http.MethodGet, "/modules/billing", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "https://billing.internal") {
		t.Errorf("%s - module page = %d", serverTestPrefix, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/modules/billing/services/invoices/docs") {
		t.Errorf("%s - module page missing docs link", serverTestPrefix)
	}

	if rec = do(t, s, http.MethodGet, "/modules/shipping", ""); rec.Code != http.StatusNotFound {
		t.Errorf("%s - unknown module page = %d", serverTestPrefix, rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/modules/billing/services/invoices/docs", "")
	// The OpenAPI URL sits in a script string, where html/template escapes slashes.
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") || !strings.Contains(rec.Body.String(), "invoices") {
		t.Errorf("%s - docs page = %d", serverTestPrefix, rec.Code)
	}
	if rec = do(t, s, http.MethodGet, "/modules/billing/services/ledger/docs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("%s - unknown service docs = %d", serverTestPrefix, rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/modules/billing/services/invoices/openapi.json", "")
	var spec openAPI3Spec
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("%s - openapi.json = %d %q", serverTestPrefix, rec.Code, rec.Body.String())
	}
	if len(spec.Servers) != 1 || spec.Servers[0].URL != "https://billing.internal" {
		t.Errorf("%s - servers = %+v", serverTestPrefix, spec.Servers)
	}
}

func TestMiddleware_RequestIDAndNotFound(t *testing.T) {
	s := testServer(t, billingModules("localhost:8081"))

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - status = %d", serverTestPrefix, rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "req-42" {
		t.Errorf("%s - X-Request-Id = %q", serverTestPrefix, rec.Header().Get("X-Request-Id"))
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.RequestID != "req-42" {
		t.Errorf("%s - body = %q", serverTestPrefix, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Errorf("%s - expected a generated X-Request-Id", serverTestPrefix)
	}
}

func TestMiddleware_Recover(t *testing.T) {
	h := requestIDMiddleware(recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("%s - status = %d", serverTestPrefix, rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "INTERNAL_ERROR" || !got.Retryable {
		t.Errorf("%s - error = %+v", serverTestPrefix, got)
	}
}
