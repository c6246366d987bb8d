package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/endpoint-console/pkg/db"
	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const postgresLogPrefix = "snapshot:postgres"

// routeLister is the part of db.Repository PostgresSource needs.
type routeLister interface {
	ListRoutes(ctx context.Context) ([]db.RouteRow, error)
}

// PostgresSource reads the snapshot stored in endpoint_routes.
type PostgresSource struct {
	repo routeLister
}

// NewPostgresSource creates a PostgresSource over repo.
func NewPostgresSource(repo routeLister) *PostgresSource {
	return &PostgresSource{repo: repo}
}

// Describe implements Source.
func (s *PostgresSource) Describe() string { return "postgres:endpoint_routes" }

// Fetch implements Source.
func (s *PostgresSource) Fetch(ctx context.Context) ([]endpoints.Module, error) {
	rows, err := s.repo.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", postgresLogPrefix, err)
	}
	modules, err := FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", postgresLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d modules from %d rows", postgresLogPrefix, len(modules), len(rows)))
	return modules, nil
}

// FromRows groups flat route rows into modules. Rows for one (module, service)
// pair must agree on address and version.
func FromRows(rows []db.RouteRow) ([]endpoints.Module, error) {
	type key struct{ module, service string }
	var entries []rawEntry
	index := make(map[key]int)

	for _, row := range rows {
		version := ""
		if row.Version != nil {
			version = *row.Version
		}
		k := key{row.Module, row.Service}
		i, ok := index[k]
		if !ok {
			entries = append(entries, rawEntry{
				Module:  row.Module,
				Service: row.Service,
				Address: row.Address,
				Version: version,
				Routes:  []rawRoute{},
			})
			i = len(entries) - 1
			index[k] = i
		}
		e := &entries[i]
		if e.Address != row.Address || e.Version != version {
			return nil, fmt.Errorf("service %s/%s has conflicting address or version across rows", row.Module, row.Service)
		}
		e.Routes = append(e.Routes, rawRoute{Path: row.Path, Method: row.Method, Visibility: row.Visibility})
	}
	return normalize(entries)
}
