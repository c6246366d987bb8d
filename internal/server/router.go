package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routes builds the HTTP console: HTML pages, probes and the JSON API.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/", s.handleHome())
	r.Get("/modules/{module}", s.handleModulePage())
	r.Get("/modules/{module}/services/{service}/openapi.json", s.handleServiceOpenAPI)
	r.Get("/modules/{module}/services/{service}/docs", s.handleServiceDocs())

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/modules", s.handleListModules)
		r.Get("/modules/{module}", s.handleGetModule)
		r.Get("/discover", s.handleDiscover)
		r.Get("/resolve", s.handleResolve)
		r.Post("/invoke", s.handleInvoke)
		r.Get("/stats", s.handleStats)
		r.Get("/version", s.handleVersion)
		r.Post("/registry/reload", s.handleReload)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleCloseSession)
			r.Post("/{id}/select", s.handleSelect)
			r.Post("/{id}/submit", s.handleSubmit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "no such route: "+r.URL.Path)
	})
	return r
}
