// Package main renders the stored leaderboard as Markdown and CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"crypto-tracker/internal/config"
	"crypto-tracker/internal/reporting"
	"crypto-tracker/internal/storage"
	pgstore "crypto-tracker/internal/storage/postgres"
	"crypto-tracker/internal/storage/sqlite"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	driver := flag.String("driver", envOr("STORAGE_DRIVER", config.DriverSQLite), "Storage driver (sqlite, postgres)")
	sqlitePath := flag.String("sqlite-path", envOr("DATABASE_PATH", sqlite.DefaultPath), "SQLite database file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	historyLimit := flag.Int("history-limit", storage.DefaultHistoryLimit, "History points per asset")
	flag.Parse()

	ctx := context.Background()

	store, err := openStore(ctx, *driver, *sqlitePath, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	lb, err := reporting.NewGenerator(store).WithHistoryLimit(*historyLimit).Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	csvOut, err := reporting.RenderCSV(lb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering CSV: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	files := map[string]string{
		"leaderboard.md":  reporting.RenderMarkdown(lb),
		"leaderboard.csv": csvOut,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(body), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Leaderboard report generated (%d assets):\n", len(lb.Entries))
	fmt.Printf("  - %s/leaderboard.md\n", *outputDir)
	fmt.Printf("  - %s/leaderboard.csv\n", *outputDir)
}

func openStore(ctx context.Context, driver, sqlitePath, postgresDSN string) (storage.Store, error) {
	switch driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		if postgresDSN == "" {
			return nil, fmt.Errorf("--postgres-dsn is required for the postgres driver")
		}
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return pgstore.NewPriceStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
