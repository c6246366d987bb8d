package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/endpoint-console/pkg/dispatcher"
	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/session"
)

const handlersLogPrefix = "server:handlers"

// maxRequestBytes bounds JSON bodies accepted by the API.
const maxRequestBytes = 1 << 20

type errorBody struct {
	Error     *dispatcher.ErrorDetail `json:"error"`
	RequestID string                  `json:"requestId,omitempty"`
}

// selectRequest is the body of POST /api/sessions/{id}/select.
type selectRequest struct {
	Module  string `json:"module"`
	Service string `json:"service"`
	Path    string `json:"path"`
	Method  string `json:"method"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.registries.Health(ctx, s.probes)
	status := http.StatusOK
	if h.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registries.Current(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registries.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg.AllModules())
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registries.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := reg.Lookup(chi.URLParam(r, "module"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	input, err := discoverInputFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	reg, err := s.registries.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := reg.Discover(input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.registries.Resolve(&registry.ResolveInput{
		Method:  endpoints.Method(q.Get("method")),
		Module:  q.Get("module"),
		Service: q.Get("service"),
		Path:    q.Get("path"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInvoke resolves and calls a route once. A failed call is still a 200;
// its outcome is carried in the result.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var input dispatcher.InvokeParams
	if err := decodeJSONBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := endpoints.ParseMethod(input.Method)
	if err != nil {
		writeError(w, r, registry.NewRegistryError(registry.CodeInvalidArgument, err.Error()))
		return
	}
	out, err := s.sessions.Call(r.Context(), session.Selection{
		Module:  input.Module,
		Service: input.Service,
		Path:    input.Path,
		Method:  method,
	}, input.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registries.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg.Stats())
}

// versionOutput is the body of GET /api/version.
type versionOutput struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionOutput{Version: Version, Status: "ok"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registries.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg.Stats())
}

// --- sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Create()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelect points a session at a route. GET routes start immediately;
// with ?wait=true the response carries the finished call.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var input selectRequest
	if err := decodeJSONBody(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := endpoints.ParseMethod(input.Method)
	if err != nil {
		writeError(w, r, registry.NewRegistryError(registry.CodeInvalidArgument, err.Error()))
		return
	}

	pending, err := v.Select(r.Context(), session.Selection{
		Module:  input.Module,
		Service: input.Service,
		Path:    input.Path,
		Method:  method,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondPending(w, r, v, pending)
}

// handleSubmit sends the raw request body to the selected route.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, r, registry.NewRegistryError(registry.CodeInvalidArgument, "failed to read body: "+err.Error()))
		return
	}
	pending, err := v.Submit(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondPending(w, r, v, pending)
}

func (s *Server) respondPending(w http.ResponseWriter, r *http.Request, v *session.View, pending *session.Pending) {
	if pending == nil {
		writeJSON(w, http.StatusOK, v.Snapshot())
		return
	}
	if !wantWait(r) {
		writeJSON(w, http.StatusAccepted, v.Snapshot())
		return
	}
	if _, _, err := pending.Wait(r.Context()); err != nil {
		slog.Debug(fmt.Sprintf("%s - wait for session %s ended: %v", handlersLogPrefix, v.ID(), err))
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

// --- helpers ---

func wantWait(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}

func discoverInputFromQuery(q url.Values) (*registry.DiscoverInput, error) {
	input := &registry.DiscoverInput{
		Module:     q.Get("module"),
		Service:    q.Get("service"),
		Query:      q.Get("q"),
		Method:     q.Get("method"),
		Visibility: q.Get("visibility"),
		Version:    q.Get("version"),
	}
	var err error
	if input.Page, err = intParam(q, "page"); err != nil {
		return nil, err
	}
	if input.Limit, err = intParam(q, "limit"); err != nil {
		return nil, err
	}
	return input, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, registry.NewRegistryError(registry.CodeInvalidArgument, fmt.Sprintf("%s must be an integer, got %q", name, raw))
	}
	return n, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		return registry.NewRegistryError(registry.CodeInvalidArgument, "invalid JSON body: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", handlersLogPrefix, err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := mapError(err)
	writeJSON(w, status, errorBody{Error: detail, RequestID: requestIDFromContext(r.Context())})
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{
		Error:     &dispatcher.ErrorDetail{Code: code, Message: message, Retryable: status >= 500},
		RequestID: requestIDFromContext(r.Context()),
	})
}

// mapError turns console errors into an HTTP status and error detail.
func mapError(err error) (int, *dispatcher.ErrorDetail) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, &dispatcher.ErrorDetail{Code: "SESSION_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, session.ErrNoSelection):
		return http.StatusConflict, &dispatcher.ErrorDetail{Code: "NO_SELECTION", Message: err.Error()}
	case errors.Is(err, session.ErrInvalidBody):
		return http.StatusBadRequest, &dispatcher.ErrorDetail{Code: registry.CodeInvalidArgument, Message: err.Error()}
	}

	var regErr *registry.RegistryError
	if !errors.As(err, &regErr) {
		return http.StatusInternalServerError, &dispatcher.ErrorDetail{Code: registry.CodeInternalError, Message: err.Error(), Retryable: true}
	}
	detail := &dispatcher.ErrorDetail{Code: regErr.Code, Message: regErr.Message, Details: regErr.Details}
	switch regErr.Code {
	case registry.CodeRegistryUnavailable:
		detail.Retryable = true
		return http.StatusServiceUnavailable, detail
	case registry.CodeModuleNotFound, registry.CodeServiceNotFound, registry.CodeRouteNotFound:
		return http.StatusNotFound, detail
	case registry.CodeInvalidArgument:
		return http.StatusBadRequest, detail
	default:
		detail.Retryable = true
		return http.StatusInternalServerError, detail
	}
}
