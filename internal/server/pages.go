package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/registry"
)

const pagesLogPrefix = "server:pages"

var pageFuncs = template.FuncMap{
	"json": func(v interface{}) string {
		if v == nil {
			return ""
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
	"pathEscape": url.PathEscape,
}

// pageStyle is shared by the HTML pages (white bg, black/blue text).
const pageStyle = `
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-degraded { color: #b36b00; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    .method { font-family: monospace; font-weight: bold; }
    .private { color: #666; font-style: italic; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .btn { display: inline-block; padding: 0.25rem 0.75rem; background: #0066cc; color: #fff; text-decoration: none; border-radius: 4px; }
    .btn:hover { background: #0052a3; }
`

// homePageTemplate is the HTML for the console home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Endpoint Console</title>
  <style>{{.Style}}</style>
</head>
<body>
  <h1>Endpoint Console</h1>
  <p class="meta">Modules, services and routes of the platform snapshot.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{if .Health.Checks.COMMS}}<p>COMMS: {{if deref .Health.Checks.COMMS}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    {{if .Health.Checks.Database}}<p>Database: {{if deref .Health.Checks.Database}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    {{if .Health.Error}}<p class="error">{{.Health.Error}}</p>{{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Statistics</h2>
    {{if .Error}}
    <p class="error">Could not load the endpoint snapshot: {{.Error}}</p>
    {{else}}
    <p>Modules: <span class="stat">{{.Stats.Modules}}</span>, services: <span class="stat">{{.Stats.Services}}</span>, routes: <span class="stat">{{.Stats.Routes}}</span></p>
    <p>Source: {{.Stats.Source}} (loaded {{.Stats.LoadedAt}})</p>
    {{end}}
  </section>

  <section>
    <h2>Contents</h2>
    {{if .Error}}
    <p class="error">No contents available.</p>
    {{else if not .Modules}}
    <p>No modules registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Module</th><th>Service</th><th>Address</th><th>Version</th><th>Method</th><th>Path</th></tr>
      </thead>
      <tbody>
        {{range $m := .Modules}}{{range $s := $m.Services}}{{range $s.Routes}}
        <tr>
          <td><a href="/modules/{{pathEscape $m.Name}}">{{$m.Name}}</a></td>
          <td>{{$s.Name}}</td>
          <td>{{$s.Address}}</td>
          <td>{{$s.Version}}</td>
          <td class="method">{{.Method}}</td>
          <td{{if eq .Visibility "private"}} class="private"{{end}}>{{.Path}}</td>
        </tr>
        {{end}}{{end}}{{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// modulePageTemplate is the HTML for a single module.
const modulePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Module}} - Endpoint Console</title>
  <style>{{.Style}}</style>
</head>
<body>
  <p><a href="/">← Back to console</a></p>
  {{if .Error}}
  <p class="error">Could not load module: {{.Error}}</p>
  {{else}}
  <h1>{{.Module}}</h1>
  {{range .Services}}
  <section>
    <h2>{{.Name}}</h2>
    <p><a href="/modules/{{pathEscape $.Module}}/services/{{pathEscape .Name}}/docs" class="btn">View API (Swagger)</a></p>
    <table>
      <tr><th>Address</th><td>{{.Address}}</td></tr>
      <tr><th>Base URL</th><td>{{.BaseURL}}{{if .DefaultScheme}} <span class="meta">(http assumed)</span>{{end}}</td></tr>
      <tr><th>Version</th><td>{{.Version}}</td></tr>
    </table>
    {{if not .Routes}}
    <p>No routes defined.</p>
    {{else}}
    <table>
      <thead><tr><th>Method</th><th>Path</th><th>Visibility</th></tr></thead>
      <tbody>
        {{range .Routes}}
        <tr><td class="method">{{.Method}}</td><td>{{.Path}}</td><td>{{.Visibility}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    <details>
      <summary>Snapshot entry</summary>
      <pre>{{json .Service}}</pre>
    </details>
  </section>
  {{end}}
  {{end}}
</body>
</html>
`

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API - {{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Style   template.CSS
	Health  *registry.HealthOutput
	Stats   registry.StatsOutput
	Modules []endpoints.Module
	Error   string
}

// serviceView is a service plus its resolved base URL.
type serviceView struct {
	endpoints.Service
	BaseURL       string
	DefaultScheme bool
}

// modulePageData is the data passed to the module page template.
type modulePageData struct {
	Style    template.CSS
	Module   string
	Services []serviceView
	Error    string
}

func parsePage(name, text string) *template.Template {
	funcs := template.FuncMap{
		"deref": func(b *bool) bool { return b != nil && *b },
	}
	return template.Must(template.New(name).Funcs(pageFuncs).Funcs(funcs).Parse(text))
}

// handleHome returns an HTTP handler for the console home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := parsePage("home", homePageTemplate)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Style: template.CSS(pageStyle), Health: s.registries.Health(ctx, s.probes)}
		if reg, err := s.registries.Current(); err != nil {
			data.Error = err.Error()
		} else {
			data.Stats = reg.Stats()
			data.Modules = reg.AllModules()
		}
		renderPage(w, tmpl, http.StatusOK, data)
	}
}

// handleModulePage returns an HTTP handler for one module's services and routes.
func (s *Server) handleModulePage() http.HandlerFunc {
	tmpl := parsePage("module", modulePageTemplate)
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "module")
		data := modulePageData{Style: template.CSS(pageStyle), Module: name}

		reg, err := s.registries.Current()
		if err != nil {
			data.Error = err.Error()
			renderPage(w, tmpl, http.StatusServiceUnavailable, data)
			return
		}
		m, err := reg.Lookup(name)
		if err != nil {
			if registry.ErrorCode(err) == registry.CodeModuleNotFound {
				http.NotFound(w, r)
				return
			}
			data.Error = err.Error()
			renderPage(w, tmpl, http.StatusInternalServerError, data)
			return
		}
		for _, svc := range m.Services {
			base, defaulted := registry.BaseURL(svc.Address)
			data.Services = append(data.Services, serviceView{Service: svc, BaseURL: base, DefaultScheme: defaulted})
		}
		renderPage(w, tmpl, http.StatusOK, data)
	}
}

// lookupService finds the service named by the {module} and {service} URL params.
func (s *Server) lookupService(r *http.Request) (*endpoints.Service, error) {
	reg, err := s.registries.Current()
	if err != nil {
		return nil, err
	}
	return reg.Service(chi.URLParam(r, "module"), chi.URLParam(r, "service"))
}

func (s *Server) handleServiceOpenAPI(w http.ResponseWriter, r *http.Request) {
	svc, err := s.lookupService(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(chi.URLParam(r, "module"), svc))
}

// handleServiceDocs returns an HTTP handler serving Swagger UI for one service.
func (s *Server) handleServiceDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := s.lookupService(r)
		if err != nil {
			if code := registry.ErrorCode(err); code == registry.CodeModuleNotFound || code == registry.CodeServiceNotFound {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		module := chi.URLParam(r, "module")

		// Absolute OpenAPI URL so Swagger UI can fetch it from the same host.
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		specURL := scheme + "://" + r.Host + "/modules/" + url.PathEscape(module) + "/services/" + url.PathEscape(svc.Name) + "/openapi.json"
		renderPage(w, tmpl, http.StatusOK, map[string]string{"Title": module + "/" + svc.Name, "SpecURL": specURL})
	}
}

func renderPage(w http.ResponseWriter, tmpl *template.Template, status int, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		slog.Error(fmt.Sprintf("%s - %s template execute: %v", pagesLogPrefix, tmpl.Name(), err))
	}
}
