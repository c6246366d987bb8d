package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/endpoint-console/internal/config"
	"github.com/morezero/endpoint-console/pkg/db"
	"github.com/morezero/endpoint-console/pkg/registry"
	"github.com/morezero/endpoint-console/pkg/snapshot"
)

// openDB loads config, checks DATABASE_URL and connects.
func openDB(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath, os.Stdout)
}

func runClear() error {
	ctx := context.Background()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.ClearRoutes(ctx, pool); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// runSeed validates a snapshot file and stores it as the Postgres snapshot.
// An invalid file leaves the stored snapshot untouched.
func runSeed(file string) error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if file == "" {
		file = cfg.SnapshotFile
	}
	reg, err := registry.Load(ctx, snapshot.NewFileSource(file))
	if err != nil {
		return err
	}
	rows := db.RowsFromModules(reg.AllModules())
	if err := db.NewRepository(pool).ReplaceRoutes(ctx, rows); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	stats := reg.Stats()
	fmt.Printf("Seeded %d routes (%d modules, %d services) from %s.\n", stats.Routes, stats.Modules, stats.Services, stats.Source)
	return nil
}
