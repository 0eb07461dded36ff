package migrations

import (
	"context"
	"fmt"

	"trading-agent-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded Postgres schema.
// Every statement uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		// pgx runs multi-statement strings through the simple protocol when no args are passed
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
