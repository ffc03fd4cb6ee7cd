package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	chstore "token-ledger/internal/storage/clickhouse"
)

const clickhouseVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     String,
    applied_at  DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree()
ORDER BY version`

// RunClickhouseMigrations creates the database named in dsn when missing,
// applies the embedded ClickHouse files it has not recorded yet, and returns
// a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string, log zerolog.Logger) (*chstore.Conn, error) {
	migrations, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	for _, m := range migrations {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", m.Version, err)
		}
	}

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	if err := conn.Exec(ctx, clickhouseVersionTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	_, err = run(ctx, target{
		name: "clickhouse",
		applied: func(ctx context.Context) (map[string]bool, error) {
			rows, err := conn.Query(ctx, `SELECT DISTINCT version FROM schema_migrations`)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			done := make(map[string]bool)
			for rows.Next() {
				var v string
				if err := rows.Scan(&v); err != nil {
					return nil, err
				}
				done[v] = true
			}
			return done, rows.Err()
		},
		apply: func(ctx context.Context, m Migration) error {
			// The driver runs one statement per Exec.
			for _, stmt := range splitStatements(m.SQL) {
				if err := conn.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			return conn.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version)
		},
	}, migrations, log.With().Str("clickhouse_db", dbName).Logger())
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// createDatabase runs CREATE DATABASE through a connection to the server
// default database, since the target may not exist yet.
func createDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// splitStatements splits SQL on semicolons after dropping blank lines and
// "--" comments. Files must not put semicolons inside string literals or
// block comments; validateNoSemicolonInStrings rejects the first case.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings fails when a single-quoted literal contains a
// semicolon. Doubled quotes are escapes.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
