package db

import (
	"time"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

// RouteRow represents a row in the endpoint_routes table. Each row carries
// the owning module and service, so the table is the legacy flat shape.
type RouteRow struct {
	ID         string    `json:"id"`
	Module     string    `json:"module"`
	Service    string    `json:"service"`
	Address    string    `json:"address"`
	Version    *string   `json:"version,omitempty"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Visibility string    `json:"visibility"`
	Position   int       `json:"position"`
	Created    time.Time `json:"created"`
}

// RowsFromModules flattens modules into rows, preserving route order.
func RowsFromModules(modules []endpoints.Module) []RouteRow {
	var rows []RouteRow
	pos := 0
	for _, m := range modules {
		for _, s := range m.Services {
			var version *string
			if s.Version != "" {
				v := s.Version
				version = &v
			}
			for _, r := range s.Routes {
				rows = append(rows, RouteRow{
					Module:     m.Name,
					Service:    s.Name,
					Address:    s.Address,
					Version:    version,
					Path:       r.Path,
					Method:     string(r.Method),
					Visibility: string(r.Visibility),
					Position:   pos,
				})
				pos++
			}
		}
	}
	return rows
}
