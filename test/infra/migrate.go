package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hotelhub/db"
)

var migrationsDir string

func init() {
	if _, file, _, ok := runtime.Caller(0); ok {
		migrationsDir = filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	}
}

// ApplyMigrations opens a pool on dsn and runs every migration against it.
// When isolate is true the run gets its own schema, dropped by the returned
// teardown func, so a shared database is left untouched.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	opts := db.PoolOptions{MaxConns: 64}
	cleanup := func(context.Context) error { return nil }

	if isolate {
		schema := fmt.Sprintf("stress_run_%d", time.Now().UnixNano())
		ident := pgx.Identifier{schema}.Sanitize()

		if err := execOnce(ctx, dsn, "CREATE SCHEMA "+ident); err != nil {
			return nil, nil, fmt.Errorf("create schema %s: %w", schema, err)
		}
		opts.SearchPath = schema
		cleanup = func(ctx context.Context) error {
			return execOnce(ctx, dsn, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		}
	}

	pool, err := db.NewPool(ctx, dsn, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := execDir(ctx, pool, migrationsDir); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, cleanup, nil
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}

func execDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("migrations dir %s not found", dir)
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", e.Name(), err)
		}
	}
	return nil
}
