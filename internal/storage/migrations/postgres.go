package migrations

import (
	"context"
	"fmt"

	"crypto-tracker/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Each file must be idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}
