package registry

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/semver"
)

const (
	discoverLogPrefix    = "registry:discover"
	discoverDefaultLimit = 50
	discoverMaxLimit     = 500
)

// Discover lists routes matching filters, flattened to (module, service, route)
// rows in registry order.
func (r *Registry) Discover(input *DiscoverInput) (*DiscoverOutput, error) {
	slog.Debug(fmt.Sprintf("%s - module=%s query=%s method=%s", discoverLogPrefix, input.Module, input.Query, input.Method))

	var method endpoints.Method
	if input.Method != "" {
		m, err := endpoints.ParseMethod(input.Method)
		if err != nil {
			return nil, &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
		}
		method = m
	}
	var visibility endpoints.Visibility
	if input.Visibility != "" {
		v, err := endpoints.ParseVisibility(input.Visibility)
		if err != nil {
			return nil, &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
		}
		visibility = v
	}
	if err := semver.ValidateRange(input.Version); err != nil {
		return nil, &RegistryError{Code: CodeInvalidArgument, Message: err.Error()}
	}
	if input.Module != "" {
		if _, ok := r.index[input.Module]; !ok {
			return nil, &RegistryError{Code: CodeModuleNotFound, Message: fmt.Sprintf("Module not found: %s", input.Module)}
		}
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = discoverDefaultLimit
	}
	if limit > discoverMaxLimit {
		limit = discoverMaxLimit
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	var matches []DiscoveredRoute
	versionSet := make(map[string]bool)

	for _, m := range r.modules {
		if input.Module != "" && m.Name != input.Module {
			continue
		}
		for _, s := range m.Services {
			if input.Service != "" && s.Name != input.Service {
				continue
			}
			if !semver.SatisfiesRange(s.Version, input.Version) {
				continue
			}
			for _, rt := range s.Routes {
				if method != "" && rt.Method != method {
					continue
				}
				if visibility != "" && rt.Visibility != visibility {
					continue
				}
				if query != "" && !matchesQuery(query, m.Name, s.Name, rt.Path) {
					continue
				}
				matches = append(matches, DiscoveredRoute{
					Module:     m.Name,
					Service:    s.Name,
					Address:    s.Address,
					Version:    s.Version,
					Path:       rt.Path,
					Method:     rt.Method,
					Visibility: rt.Visibility,
				})
				if s.Version != "" {
					versionSet[s.Version] = true
				}
			}
		}
	}

	versions := make([]string, 0, len(versionSet))
	for v := range versionSet {
		versions = append(versions, v)
	}
	semver.SortDesc(versions)

	total := len(matches)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	routes := make([]DiscoveredRoute, end-start)
	copy(routes, matches[start:end])

	return &DiscoverOutput{
		Routes:   routes,
		Versions: versions,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

func matchesQuery(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
