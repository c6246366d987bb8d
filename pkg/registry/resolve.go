package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const (
	resolveLogPrefix = "registry:resolve"
	defaultScheme    = "http://"
)

// Resolve maps (method, module, service, path) onto an absolute URL.
// It is deterministic and has no side effects.
//
// Failures, in order of checking:
//  1. unknown method -> INVALID_ARGUMENT
//  2. unknown module -> MODULE_NOT_FOUND
//  3. unknown service -> SERVICE_NOT_FOUND
//  4. no route for the path, or only under other methods -> ROUTE_NOT_FOUND
//     with a RouteMiss detail telling the two apart
func (r *Registry) Resolve(input *ResolveInput) (*ResolveOutput, error) {
	slog.Debug(fmt.Sprintf("%s - %s %s/%s%s", resolveLogPrefix, input.Method, input.Module, input.Service, input.Path))

	method, err := endpoints.ParseMethod(string(input.Method))
	if err != nil {
		return nil, &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
	}

	svc, err := r.service(input.Module, input.Service)
	if err != nil {
		return nil, err
	}

	path := normalizePath(input.Path)
	route, miss := findRoute(svc.Routes, path, method)
	if miss != nil {
		msg := fmt.Sprintf("Route not found: %s %s on %s/%s", method, path, input.Module, input.Service)
		if miss.Reason == MissMethodMismatch {
			msg = fmt.Sprintf("Method %s not allowed for %s on %s/%s", method, path, input.Module, input.Service)
		}
		return nil, &RegistryError{Code: CodeRouteNotFound, Message: msg, Details: miss}
	}

	url, defaulted := buildURL(svc.Address, route.Path)
	return &ResolveOutput{
		URL:           url,
		Method:        route.Method,
		Module:        input.Module,
		Service:       svc.Name,
		Path:          route.Path,
		Address:       svc.Address,
		Version:       svc.Version,
		Visibility:    route.Visibility,
		DefaultScheme: defaulted,
	}, nil
}

// findRoute looks up an exact (path, method) pair.
func findRoute(routes []endpoints.Route, path string, method endpoints.Method) (*endpoints.Route, *RouteMiss) {
	var allowed []endpoints.Method
	for i := range routes {
		if routes[i].Path != path {
			continue
		}
		if routes[i].Method == method {
			return &routes[i], nil
		}
		allowed = append(allowed, routes[i].Method)
	}
	if len(allowed) == 0 {
		return nil, &RouteMiss{Reason: MissPathAbsent}
	}
	return nil, &RouteMiss{Reason: MissMethodMismatch, AllowedMethods: allowed}
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// buildURL joins a service address and a route path. An address without a
// scheme is assumed to be plain http; the bool result reports that.
func buildURL(address, path string) (string, bool) {
	base, defaulted := BaseURL(address)
	return base + normalizePath(path), defaulted
}

// BaseURL returns the service address with a scheme and without a trailing
// slash. The bool reports whether http:// was assumed.
func BaseURL(address string) (string, bool) {
	base := strings.TrimSpace(address)
	defaulted := false
	if !strings.Contains(base, "://") {
		base = defaultScheme + base
		defaulted = true
	}
	return strings.TrimRight(base, "/"), defaulted
}
