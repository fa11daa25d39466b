package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PGContainer is a Postgres started for a test run. The zero value stands for
// an externally managed database and terminates as a no-op.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 starts a Postgres 16 container and returns a DSN. If overrideDSN or
// STRESS_TEST_PG_DSN is set, it reuses that database.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hotelhub"),
		postgres.WithUsername("hotelhub"),
		postgres.WithPassword("hotelhub"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable", "application_name=hotelhub-stress")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve connection string: %w", err)
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}

// Reset empties every mutable table so a run can start from a clean slate.
func Reset(ctx context.Context, pool *pgxpool.Pool) error {
	tables := []string{
		"upstream_tokens",
		"commissions",
		"price_rules",
		"agencies",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
