// Package migrations applies the embedded PostgreSQL and ClickHouse schemas.
// Every applied file is recorded in a schema_migrations table, so reopening a
// database only runs the files it has not seen.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"token-ledger/internal/observability"
)

//go:embed postgres/*.sql
var PostgresFS embed.FS

//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// Migration is one schema file. Version is the file name without ".sql" and
// orders migrations lexically, so files carry a zero-padded prefix.
type Migration struct {
	Version string
	SQL     string
}

// Load reads the non-empty .sql files of dir, ordered by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(data),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// target is one database the runner migrates.
type target struct {
	name    string
	applied func(ctx context.Context) (map[string]bool, error)
	apply   func(ctx context.Context, m Migration) error
}

// run applies, in order, every migration whose version t has not recorded.
// It stops at the first failure and returns the versions applied so far.
func run(ctx context.Context, t target, migrations []Migration, log zerolog.Logger) ([]string, error) {
	done, err := t.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied %s migrations: %w", t.name, err)
	}

	var applied []string
	for _, m := range migrations {
		if done[m.Version] {
			log.Debug().Str("database", t.name).Str("version", m.Version).Msg("migration already applied")
			continue
		}

		start := time.Now()
		err := t.apply(ctx, m)
		observability.RecordDBQuery(t.name, "migrate", time.Since(start).Seconds(), err)
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}

		log.Info().
			Str("database", t.name).
			Str("version", m.Version).
			Dur("duration", time.Since(start)).
			Msg("migration applied")
		applied = append(applied, m.Version)
	}
	return applied, nil
}
