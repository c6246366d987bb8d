// Package endpoints defines the canonical module -> service -> route model.
package endpoints

import (
	"fmt"
	"strings"
)

// Method is an HTTP method accepted by platform routes.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// Methods lists every supported method in display order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete}

// ParseMethod maps a method name (any case) onto the closed Method set.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodGet:
		return MethodGet, nil
	case MethodPost:
		return MethodPost, nil
	case MethodPut:
		return MethodPut, nil
	case MethodPatch:
		return MethodPatch, nil
	case MethodDelete:
		return MethodDelete, nil
	default:
		return "", fmt.Errorf("unsupported method %q", s)
	}
}

// AllowsBody reports whether requests with this method may carry a body.
func (m Method) AllowsBody() bool {
	switch m {
	case MethodGet:
		return false
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	default:
		return false
	}
}

func (m Method) String() string { return string(m) }

// Visibility marks a route as reachable from outside the platform or not.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility maps a visibility string; empty means public.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", fmt.Errorf("unsupported visibility %q", s)
	}
}

// Route is a single (path, method) exposed by a service.
type Route struct {
	Path       string     `json:"path" yaml:"path"`
	Method     Method     `json:"method" yaml:"method"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
}

// Key returns the identity of the route inside its service.
func (r Route) Key() string {
	return string(r.Method) + " " + r.Path
}

// Service is a named network endpoint and the routes it serves.
// Address is authoritative for every route in Routes.
type Service struct {
	Name    string  `json:"name" yaml:"name"`
	Address string  `json:"address" yaml:"address"`
	Version string  `json:"version,omitempty" yaml:"version,omitempty"`
	Routes  []Route `json:"routes" yaml:"routes"`
}

// Module groups services under a product-area name.
type Module struct {
	Name     string    `json:"name" yaml:"name"`
	Services []Service `json:"services" yaml:"services"`
}

// Clone returns a deep copy so callers cannot mutate shared snapshot data.
func (m Module) Clone() Module {
	out := Module{Name: m.Name, Services: make([]Service, len(m.Services))}
	for i, s := range m.Services {
		out.Services[i] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of the service.
func (s Service) Clone() Service {
	routes := make([]Route, len(s.Routes))
	copy(routes, s.Routes)
	s.Routes = routes
	return s
}
