package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/morezero/endpoint-console/pkg/endpoints"
	"github.com/morezero/endpoint-console/pkg/semver"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

const logPrefix = "registry:registry"

// Registry is an immutable, validated view of one endpoint snapshot.
// All accessors return copies; a Registry is safe for concurrent readers.
type Registry struct {
	modules  []endpoints.Module
	index    map[string]int
	source   string
	loadedAt time.Time
}

// NewRegistryParams holds parameters for New.
type NewRegistryParams struct {
	Modules []endpoints.Module
	// Source describes where the modules came from (for stats and health).
	Source string
}

// New validates an already-decoded snapshot and builds a Registry from it.
// Any structural problem yields a REGISTRY_UNAVAILABLE error listing every issue found.
func New(params NewRegistryParams) (*Registry, error) {
	if problems := validate(params.Modules); len(problems) > 0 {
		return nil, &RegistryError{
			Code:    CodeRegistryUnavailable,
			Message: fmt.Sprintf("invalid snapshot: %s", strings.Join(problems, "; ")),
			Details: map[string]interface{}{"problems": problems, "source": params.Source},
		}
	}

	modules := make([]endpoints.Module, len(params.Modules))
	for i, m := range params.Modules {
		modules[i] = canonical(m.Clone())
	}
	sort.SliceStable(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })

	index := make(map[string]int, len(modules))
	for i, m := range modules {
		index[m.Name] = i
	}

	return &Registry{
		modules:  modules,
		index:    index,
		source:   params.Source,
		loadedAt: time.Now().UTC(),
	}, nil
}

// Load fetches a snapshot from src once and validates it eagerly.
// Transport and decode failures are reported as REGISTRY_UNAVAILABLE.
func Load(ctx context.Context, src snapshot.Source) (*Registry, error) {
	desc := src.Describe()
	slog.Info(fmt.Sprintf("%s - loading snapshot from %s", logPrefix, desc))

	modules, err := src.Fetch(ctx)
	if err != nil {
		return nil, &RegistryError{
			Code:    CodeRegistryUnavailable,
			Message: fmt.Sprintf("snapshot %s: %v", desc, err),
			Details: map[string]interface{}{"source": desc},
		}
	}

	reg, err := New(NewRegistryParams{Modules: modules, Source: desc})
	if err != nil {
		return nil, err
	}

	stats := reg.Stats()
	slog.Info(fmt.Sprintf("%s - loaded %d modules, %d services, %d routes from %s",
		logPrefix, stats.Modules, stats.Services, stats.Routes, desc))
	return reg, nil
}

// validate returns a human-readable list of every structural problem.
func validate(modules []endpoints.Module) []string {
	var problems []string
	seenModules := make(map[string]bool, len(modules))

	for mi, m := range modules {
		if strings.TrimSpace(m.Name) == "" {
			problems = append(problems, fmt.Sprintf("module[%d]: missing name", mi))
			continue
		}
		if seenModules[m.Name] {
			problems = append(problems, fmt.Sprintf("module %s: duplicate module", m.Name))
		}
		seenModules[m.Name] = true

		seenServices := make(map[string]bool, len(m.Services))
		for si, s := range m.Services {
			if strings.TrimSpace(s.Name) == "" {
				problems = append(problems, fmt.Sprintf("module %s service[%d]: missing name", m.Name, si))
				continue
			}
			where := m.Name + "/" + s.Name
			if seenServices[s.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate service", where))
			}
			seenServices[s.Name] = true

			if strings.TrimSpace(s.Address) == "" {
				problems = append(problems, fmt.Sprintf("%s: missing address", where))
			}
			if s.Version != "" {
				if _, err := semver.ParseVersion(s.Version); err != nil {
					problems = append(problems, fmt.Sprintf("%s: malformed version %q", where, s.Version))
				}
			}
			if s.Routes == nil {
				problems = append(problems, fmt.Sprintf("%s: missing routes", where))
			}
			problems = append(problems, validateRoutes(where, s.Routes)...)
		}
	}
	return problems
}

func validateRoutes(where string, routes []endpoints.Route) []string {
	var problems []string
	seen := make(map[string]bool, len(routes))
	for ri, r := range routes {
		if !strings.HasPrefix(r.Path, "/") {
			problems = append(problems, fmt.Sprintf("%s route[%d]: path %q must start with /", where, ri, r.Path))
		}
		if _, err := endpoints.ParseVisibility(string(r.Visibility)); err != nil {
			problems = append(problems, fmt.Sprintf("%s route[%d]: %v", where, ri, err))
		}
		method, err := endpoints.ParseMethod(string(r.Method))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s route[%d]: %v", where, ri, err))
			continue
		}
		// Keyed on the canonical method so "get" and "GET" collide.
		key := endpoints.Route{Path: r.Path, Method: method}.Key()
		if seen[key] {
			problems = append(problems, fmt.Sprintf("%s: duplicate route %s", where, key))
		}
		seen[key] = true
	}
	return problems
}

// canonical rewrites already-validated methods and visibilities to their canonical spelling.
func canonical(m endpoints.Module) endpoints.Module {
	for si := range m.Services {
		for ri := range m.Services[si].Routes {
			r := &m.Services[si].Routes[ri]
			r.Method, _ = endpoints.ParseMethod(string(r.Method))
			r.Visibility, _ = endpoints.ParseVisibility(string(r.Visibility))
		}
	}
	return m
}

// Stats counts modules, services and routes in the snapshot.
func (r *Registry) Stats() StatsOutput {
	out := StatsOutput{
		Modules:  len(r.modules),
		Source:   r.source,
		LoadedAt: r.loadedAt.Format(time.RFC3339),
	}
	for _, m := range r.modules {
		out.Services += len(m.Services)
		for _, s := range m.Services {
			out.Routes += len(s.Routes)
		}
	}
	return out
}

// Source describes where the snapshot was loaded from.
func (r *Registry) Source() string {
	return r.source
}
