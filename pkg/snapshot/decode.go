// Package snapshot fetches and decodes endpoint snapshots into the canonical
// module-grouped model.
//
// Two input shapes are accepted. The canonical shape groups services under
// modules:
//
//	[{"name": "billing", "services": [{"name": "invoices", "address": "...", "routes": [...]}]}]
//
// The legacy flat shape carries one entry per service with its module inline:
//
//	[{"module": "billing", "service": "invoices", "address": "...", "routes": [...]}]
//
// Either may also be wrapped in an object under "modules" or "serviceEndpoints".
// Flat entries are normalized here so nothing downstream sees them.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const decodeLogPrefix = "snapshot:decode"

// Format is the serialization of a snapshot document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension; JSON is the default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FormatFromContentType picks a format from an HTTP Content-Type; JSON is the default.
func FormatFromContentType(ct string) Format {
	if strings.Contains(strings.ToLower(ct), "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

type rawRoute struct {
	Path       string `json:"path" yaml:"path"`
	Method     string `json:"method" yaml:"method"`
	Visibility string `json:"visibility" yaml:"visibility"`
}

type rawService struct {
	Name    string     `json:"name" yaml:"name"`
	Address string     `json:"address" yaml:"address"`
	Version string     `json:"version" yaml:"version"`
	Routes  []rawRoute `json:"routes" yaml:"routes"`
}

// rawEntry holds the union of both shapes so one decode pass handles either.
type rawEntry struct {
	Name     string       `json:"name" yaml:"name"`
	Services []rawService `json:"services" yaml:"services"`

	Module  string     `json:"module" yaml:"module"`
	Service string     `json:"service" yaml:"service"`
	Address string     `json:"address" yaml:"address"`
	Version string     `json:"version" yaml:"version"`
	Routes  []rawRoute `json:"routes" yaml:"routes"`
}

func (e rawEntry) isFlat() bool {
	return e.Module != "" || e.Service != "" || e.Address != "" || e.Routes != nil
}

type rawDocument struct {
	Modules          []rawEntry `json:"modules" yaml:"modules"`
	ServiceEndpoints []rawEntry `json:"serviceEndpoints" yaml:"serviceEndpoints"`
}

func (d rawDocument) entries() ([]rawEntry, error) {
	if d.Modules == nil && d.ServiceEndpoints == nil {
		return nil, fmt.Errorf("%s - document has neither modules nor serviceEndpoints", decodeLogPrefix)
	}
	out := make([]rawEntry, 0, len(d.Modules)+len(d.ServiceEndpoints))
	out = append(out, d.Modules...)
	out = append(out, d.ServiceEndpoints...)
	return out, nil
}

// Decode parses a snapshot document and normalizes it to modules in document order.
// Any structural problem fails the whole document.
func Decode(data []byte, format Format) ([]endpoints.Module, error) {
	entries, err := decodeEntries(data, format)
	if err != nil {
		return nil, err
	}
	return normalize(entries)
}

func decodeEntries(data []byte, format Format) ([]rawEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%s - empty snapshot document", decodeLogPrefix)
	}

	var entries []rawEntry
	var doc rawDocument

	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, fmt.Errorf("%s - invalid YAML: %w", decodeLogPrefix, err)
		}
		if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
			return nil, fmt.Errorf("%s - empty YAML document", decodeLogPrefix)
		}
		root := node.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			if err := root.Decode(&entries); err != nil {
				return nil, fmt.Errorf("%s - invalid YAML entries: %w", decodeLogPrefix, err)
			}
			return entries, nil
		case yaml.MappingNode:
			if err := root.Decode(&doc); err != nil {
				return nil, fmt.Errorf("%s - invalid YAML document: %w", decodeLogPrefix, err)
			}
			return doc.entries()
		default:
			return nil, fmt.Errorf("%s - YAML root must be a list or a mapping", decodeLogPrefix)
		}
	default:
		switch trimmed[0] {
		case '[':
			if err := json.Unmarshal(trimmed, &entries); err != nil {
				return nil, fmt.Errorf("%s - invalid JSON entries: %w", decodeLogPrefix, err)
			}
			return entries, nil
		case '{':
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, fmt.Errorf("%s - invalid JSON document: %w", decodeLogPrefix, err)
			}
			return doc.entries()
		default:
			return nil, fmt.Errorf("%s - JSON root must be an array or an object", decodeLogPrefix)
		}
	}
}

func normalize(entries []rawEntry) ([]endpoints.Module, error) {
	var modules []endpoints.Module
	index := make(map[string]int)

	moduleAt := func(name string) *endpoints.Module {
		i, ok := index[name]
		if !ok {
			modules = append(modules, endpoints.Module{Name: name, Services: []endpoints.Service{}})
			i = len(modules) - 1
			index[name] = i
		}
		return &modules[i]
	}

	for i, e := range entries {
		if e.isFlat() {
			if e.Module == "" {
				return nil, fmt.Errorf("%s - entry %d: missing module", decodeLogPrefix, i)
			}
			svc, err := convertService(rawService{Name: e.Service, Address: e.Address, Version: e.Version, Routes: e.Routes})
			if err != nil {
				return nil, fmt.Errorf("%s - entry %d (%s): %w", decodeLogPrefix, i, e.Module, err)
			}
			m := moduleAt(e.Module)
			m.Services = append(m.Services, svc)
			continue
		}

		if e.Name == "" {
			return nil, fmt.Errorf("%s - entry %d: missing module", decodeLogPrefix, i)
		}
		if e.Services == nil {
			return nil, fmt.Errorf("%s - module %s: missing services", decodeLogPrefix, e.Name)
		}
		m := moduleAt(e.Name)
		for j, rs := range e.Services {
			svc, err := convertService(rs)
			if err != nil {
				return nil, fmt.Errorf("%s - module %s service %d: %w", decodeLogPrefix, e.Name, j, err)
			}
			m.Services = append(m.Services, svc)
		}
	}

	if modules == nil {
		modules = []endpoints.Module{}
	}
	return modules, nil
}

func convertService(rs rawService) (endpoints.Service, error) {
	if rs.Name == "" {
		return endpoints.Service{}, fmt.Errorf("missing service")
	}
	if rs.Address == "" {
		return endpoints.Service{}, fmt.Errorf("service %s: missing address", rs.Name)
	}
	if rs.Routes == nil {
		return endpoints.Service{}, fmt.Errorf("service %s: missing routes", rs.Name)
	}

	svc := endpoints.Service{
		Name:    rs.Name,
		Address: strings.TrimSpace(rs.Address),
		Version: strings.TrimSpace(rs.Version),
		Routes:  make([]endpoints.Route, 0, len(rs.Routes)),
	}
	for k, rr := range rs.Routes {
		route, err := convertRoute(rr)
		if err != nil {
			return endpoints.Service{}, fmt.Errorf("service %s route %d: %w", rs.Name, k, err)
		}
		svc.Routes = append(svc.Routes, route)
	}
	return svc, nil
}

func convertRoute(rr rawRoute) (endpoints.Route, error) {
	path := strings.TrimSpace(rr.Path)
	if path == "" {
		return endpoints.Route{}, fmt.Errorf("missing path")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	method, err := endpoints.ParseMethod(rr.Method)
	if err != nil {
		return endpoints.Route{}, err
	}
	vis, err := endpoints.ParseVisibility(rr.Visibility)
	if err != nil {
		return endpoints.Route{}, err
	}
	return endpoints.Route{Path: path, Method: method, Visibility: vis}, nil
}
