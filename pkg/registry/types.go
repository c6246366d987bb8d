// Package registry holds the immutable module registry and the routing resolver.
package registry

import (
	"errors"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

// Error codes carried by RegistryError.
const (
	CodeRegistryUnavailable = "REGISTRY_UNAVAILABLE"
	CodeModuleNotFound      = "MODULE_NOT_FOUND"
	CodeServiceNotFound     = "SERVICE_NOT_FOUND"
	CodeRouteNotFound       = "ROUTE_NOT_FOUND"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeInternalError       = "INTERNAL_ERROR"
)

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// ErrorCode returns the code of a *RegistryError anywhere in err's chain, or "".
func ErrorCode(err error) string {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr.Code
	}
	return ""
}

// Route miss reasons carried in RouteMiss.Reason.
const (
	MissPathAbsent     = "path_absent"
	MissMethodMismatch = "method_mismatch"
)

// RouteMiss is the Details of a ROUTE_NOT_FOUND error. It separates a path the
// service does not expose from a path exposed under other methods.
type RouteMiss struct {
	Reason         string             `json:"reason"`
	AllowedMethods []endpoints.Method `json:"allowedMethods,omitempty"`
}

// ResolveInput holds parameters for the resolve method.
type ResolveInput struct {
	Method  endpoints.Method `json:"method"`
	Module  string           `json:"module"`
	Service string           `json:"service"`
	Path    string           `json:"path"`
}

// ResolveOutput holds the result of the resolve method.
type ResolveOutput struct {
	URL        string               `json:"url"`
	Method     endpoints.Method     `json:"method"`
	Module     string               `json:"module"`
	Service    string               `json:"service"`
	Path       string               `json:"path"`
	Address    string               `json:"address"`
	Version    string               `json:"version,omitempty"`
	Visibility endpoints.Visibility `json:"visibility"`
	// DefaultScheme is true when the address had no scheme and http:// was assumed.
	DefaultScheme bool `json:"defaultScheme"`
}

// DiscoverInput holds parameters for the discover method. Empty fields do not filter.
type DiscoverInput struct {
	Module     string `json:"module,omitempty"`
	Service    string `json:"service,omitempty"`
	Query      string `json:"query,omitempty"`
	Method     string `json:"method,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	// Version is a semantic version range matched against service versions.
	Version string `json:"version,omitempty"`
	Page    int    `json:"page,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// DiscoverOutput holds the result of the discover method.
type DiscoverOutput struct {
	Routes []DiscoveredRoute `json:"routes"`
	// Versions are the distinct versions of matching services, highest first.
	Versions   []string   `json:"versions"`
	Pagination Pagination `json:"pagination"`
}

// DiscoveredRoute is one flattened (module, service, route) match.
type DiscoveredRoute struct {
	Module     string               `json:"module"`
	Service    string               `json:"service"`
	Address    string               `json:"address"`
	Version    string               `json:"version,omitempty"`
	Path       string               `json:"path"`
	Method     endpoints.Method     `json:"method"`
	Visibility endpoints.Visibility `json:"visibility"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// StatsOutput counts what the snapshot contains.
type StatsOutput struct {
	Modules  int    `json:"modules"`
	Services int    `json:"services"`
	Routes   int    `json:"routes"`
	Source   string `json:"source,omitempty"`
	LoadedAt string `json:"loadedAt,omitempty"`
}

// HealthOutput holds the result of the health method.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Error     string       `json:"error,omitempty"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Snapshot bool `json:"snapshot"`

	// COMMS and Database are nil when the dependency is not configured.
	COMMS    *bool `json:"comms,omitempty"`
	Database *bool `json:"database,omitempty"`
}
