package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for the stored endpoint snapshot.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoutes returns every stored route in insertion order.
func (r *Repository) ListRoutes(ctx context.Context) ([]RouteRow, error) {
	slog.Debug(fmt.Sprintf("%s - ListRoutes", repoLogPrefix))

	rows, err := r.pool.Query(ctx,
		`SELECT id, module, service, address, version, path, method, visibility, position, created
		 FROM endpoint_routes
		 ORDER BY position, module, service, path, method`)
	if err != nil {
		return nil, fmt.Errorf("%s - list routes: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []RouteRow
	for rows.Next() {
		var row RouteRow
		if err := rows.Scan(&row.ID, &row.Module, &row.Service, &row.Address, &row.Version,
			&row.Path, &row.Method, &row.Visibility, &row.Position, &row.Created); err != nil {
			return nil, fmt.Errorf("%s - scan route: %w", repoLogPrefix, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - iterate routes: %w", repoLogPrefix, err)
	}
	return out, nil
}

// CountRoutes returns the number of stored routes.
func (r *Repository) CountRoutes(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM endpoint_routes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s - count routes: %w", repoLogPrefix, err)
	}
	return n, nil
}

// ReplaceRoutes swaps the stored snapshot for rows inside one transaction.
func (r *Repository) ReplaceRoutes(ctx context.Context, rows []RouteRow) error {
	slog.Info(fmt.Sprintf("%s - ReplaceRoutes count=%d", repoLogPrefix, len(rows)))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM endpoint_routes`); err != nil {
		return fmt.Errorf("%s - delete routes: %w", repoLogPrefix, err)
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO endpoint_routes (module, service, address, version, path, method, visibility, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.Module, row.Service, row.Address, row.Version, row.Path, row.Method, row.Visibility, row.Position)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%s - insert routes: %w", repoLogPrefix, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit: %w", repoLogPrefix, err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
