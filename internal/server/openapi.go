package server

import (
	"strings"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/registry"
)

// openAPI3 types for generating specs from a service's routes.
type openAPI3Spec struct {
	OpenAPI    string                       `json:"openapi"`
	Info       openAPI3Info                 `json:"info"`
	Servers    []openAPI3Server             `json:"servers,omitempty"`
	Paths      map[string]*openAPI3PathItem `json:"paths"`
	Components openAPI3Components           `json:"components"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3Server struct {
	URL string `json:"url"`
}

type openAPI3PathItem struct {
	Get    *openAPI3Operation `json:"get,omitempty"`
	Post   *openAPI3Operation `json:"post,omitempty"`
	Put    *openAPI3Operation `json:"put,omitempty"`
	Patch  *openAPI3Operation `json:"patch,omitempty"`
	Delete *openAPI3Operation `json:"delete,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	Parameters  []openAPI3Parameter         `json:"parameters,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
	Security    []map[string][]string       `json:"security,omitempty"`
}

type openAPI3Parameter struct {
	Name     string                 `json:"name"`
	In       string                 `json:"in"`
	Required bool                   `json:"required"`
	Schema   map[string]interface{} `json:"schema"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

type openAPI3Components struct {
	SecuritySchemes map[string]openAPI3SecurityScheme `json:"securitySchemes"`
}

type openAPI3SecurityScheme struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

const bearerScheme = "bearerAuth"

// buildOpenAPISpec builds an OpenAPI 3.0 spec for one service: its address is
// the single server and every route becomes an operation.
func buildOpenAPISpec(module string, svc *endpoints.Service) *openAPI3Spec {
	base, _ := registry.BaseURL(svc.Address)
	version := svc.Version
	if version == "" {
		version = "unversioned"
	}

	anyObject := map[string]interface{}{"type": "object"}
	paths := make(map[string]*openAPI3PathItem)
	for _, route := range svc.Routes {
		item, ok := paths[route.Path]
		if !ok {
			item = &openAPI3PathItem{}
			paths[route.Path] = item
		}
		op := &openAPI3Operation{
			Summary:     route.Key(),
			OperationID: operationID(route),
			Tags:        []string{svc.Name},
			Parameters:  pathParameters(route.Path),
			Responses: map[string]openAPI3Response{
				"default": {
					Description: "Response from " + svc.Name,
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: anyObject},
					},
				},
			},
			Security: []map[string][]string{{bearerScheme: {}}},
		}
		if route.Visibility == endpoints.VisibilityPrivate {
			op.Description = "Private route; reachable only from inside the platform."
		}
		if route.Method.AllowsBody() {
			op.RequestBody = &openAPI3RequestBody{
				Content: map[string]openAPI3MediaType{
					"application/json": {Schema: anyObject},
				},
			}
		}
		setOperation(item, route.Method, op)
	}

	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       module + "/" + svc.Name,
			Description: "Service " + svc.Name + " of module " + module,
			Version:     version,
		},
		Servers: []openAPI3Server{{URL: base}},
		Paths:   paths,
		Components: openAPI3Components{
			SecuritySchemes: map[string]openAPI3SecurityScheme{
				bearerScheme: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
			},
		},
	}
}

func setOperation(item *openAPI3PathItem, method endpoints.Method, op *openAPI3Operation) {
	switch method {
	case endpoints.MethodGet:
		item.Get = op
	case endpoints.MethodPost:
		item.Post = op
	case endpoints.MethodPut:
		item.Put = op
	case endpoints.MethodPatch:
		item.Patch = op
	case endpoints.MethodDelete:
		item.Delete = op
	}
}

// pathParameters declares every {name} segment as a required string parameter.
func pathParameters(path string) []openAPI3Parameter {
	var params []openAPI3Parameter
	for _, seg := range strings.Split(path, "/") {
		if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, openAPI3Parameter{
				Name:     seg[1 : len(seg)-1],
				In:       "path",
				Required: true,
				Schema:   map[string]interface{}{"type": "string"},
			})
		}
	}
	return params
}

// operationID turns "GET /v1/invoices/{id}" into "get_v1_invoices_id".
func operationID(route endpoints.Route) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(route.Method)))
	underscore := true
	for _, r := range route.Path {
		isWord := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isWord {
			underscore = true
			continue
		}
		if underscore {
			b.WriteByte('_')
			underscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
