package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearRoutes removes the stored snapshot. Schema and migration history are kept.
func ClearRoutes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing endpoint_routes", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE endpoint_routes`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Snapshot cleared", clearLogPrefix))
	return nil
}
