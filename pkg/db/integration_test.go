//go:build integration

package db

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbIntegrationPrefix = "db:integration_test"

// setupIntegrationPool connects to DATABASE_URL and applies migrations; skips when unset.
func setupIntegrationPool(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip(dbIntegrationPrefix + " - DATABASE_URL not set, skipping")
	}
	ctx := context.Background()

	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", dbIntegrationPrefix, err)
	}
	t.Cleanup(pool.Close)

	files, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", dbIntegrationPrefix, err)
	}
	if err := RunMigrations(ctx, pool, files); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", dbIntegrationPrefix, err)
	}
	// Second run must be a no-op.
	if err := RunMigrations(ctx, pool, files); err != nil {
		t.Fatalf("%s - RunMigrations rerun failed: %v", dbIntegrationPrefix, err)
	}
	return ctx, pool
}

func TestIntegration_ReplaceAndListRoutes(t *testing.T) {
	ctx, pool := setupIntegrationPool(t)
	repo := NewRepository(pool)

	version := "1.0.0"
	rows := []RouteRow{
		{Module: "billing", Service: "invoices", Address: "localhost:8081", Version: &version, Path: "/v1/invoices", Method: "GET", Visibility: "public", Position: 0},
		{Module: "billing", Service: "invoices", Address: "localhost:8081", Version: &version, Path: "/v1/invoices", Method: "POST", Visibility: "private", Position: 1},
	}
	if err := repo.ReplaceRoutes(ctx, rows); err != nil {
		t.Fatalf("%s - ReplaceRoutes failed: %v", dbIntegrationPrefix, err)
	}

	got, err := repo.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("%s - ListRoutes failed: %v", dbIntegrationPrefix, err)
	}
	if len(got) != 2 {
		t.Fatalf("%s - expected 2 rows, got %d", dbIntegrationPrefix, len(got))
	}
	if got[0].Method != "GET" || got[1].Method != "POST" {
		t.Errorf("%s - rows out of order: %+v", dbIntegrationPrefix, got)
	}
	if got[0].ID == "" {
		t.Errorf("%s - expected generated id", dbIntegrationPrefix)
	}

	n, err := repo.CountRoutes(ctx)
	if err != nil || n != 2 {
		t.Errorf("%s - CountRoutes = %d, %v", dbIntegrationPrefix, n, err)
	}

	if err := ClearRoutes(ctx, pool); err != nil {
		t.Fatalf("%s - ClearRoutes failed: %v", dbIntegrationPrefix, err)
	}
	n, _ = repo.CountRoutes(ctx)
	if n != 0 {
		t.Errorf("%s - expected 0 rows after clear, got %d", dbIntegrationPrefix, n)
	}
}

func TestIntegration_MigrationStatus(t *testing.T) {
	ctx, pool := setupIntegrationPool(t)

	var buf bytes.Buffer
	if err := MigrationStatus(ctx, pool, filepath.Join("..", "..", "migrations"), &buf); err != nil {
		t.Fatalf("%s - MigrationStatus failed: %v", dbIntegrationPrefix, err)
	}
	if !strings.Contains(buf.String(), "applied  0001_endpoint_routes.sql") {
		t.Errorf("%s - unexpected status output: %q", dbIntegrationPrefix, buf.String())
	}
}
