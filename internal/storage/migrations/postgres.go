package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PostgresDB is the part of a pgx pool the runner uses.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const postgresVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies the embedded PostgreSQL files db has not
// recorded yet and returns their versions. Each file and its version row are
// written in one transaction.
func RunPostgresMigrations(ctx context.Context, db PostgresDB, log zerolog.Logger) ([]string, error) {
	migrations, err := Load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(ctx, postgresVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	return run(ctx, target{
		name: "postgres",
		applied: func(ctx context.Context) (map[string]bool, error) {
			rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
			if err != nil {
				return nil, err
			}
			versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return nil, err
			}
			done := make(map[string]bool, len(versions))
			for _, v := range versions {
				done[v] = true
			}
			return done, nil
		},
		apply: func(ctx context.Context, m Migration) error {
			return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
				// Without arguments pgx sends the simple protocol, which
				// accepts several statements in one call.
				if _, err := tx.Exec(ctx, m.SQL); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
				return err
			})
		},
	}, migrations, log)
}
