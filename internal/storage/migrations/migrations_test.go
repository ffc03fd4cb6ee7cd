package migrations

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- comment line
CREATE TABLE a (x UInt64) ENGINE = Memory;

CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt64) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s' ;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_ledger", pg[0].Version)

	ch, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		assert.NoError(t, validateNoSemicolonInStrings(m.SQL), m.Version)
	}
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"schema/002_events.sql":  {Data: []byte("CREATE TABLE events (id TEXT);")},
		"schema/001_ledger.sql":  {Data: []byte("CREATE TABLE ledger (id TEXT);")},
		"schema/003_empty.sql":   {Data: []byte("  \n")},
		"schema/README.md":       {Data: []byte("not a migration")},
		"schema/nested/x.sql":    {Data: []byte("SELECT 1;")},
		"schema/010_indexes.sql": {Data: []byte("CREATE INDEX i ON events (id);")},
	}

	migrations, err := Load(fsys, "schema")
	require.NoError(t, err)

	var versions []string
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []string{"001_ledger", "002_events", "010_indexes"}, versions)
	assert.Equal(t, "CREATE TABLE ledger (id TEXT);", migrations[0].SQL)

	_, err = Load(fsys, "missing")
	assert.Error(t, err)
}

// memoryTarget records applied versions in a map.
type memoryTarget struct {
	done    map[string]bool
	order   []string
	failing string
}

func (m *memoryTarget) target() target {
	return target{
		name: "memory",
		applied: func(context.Context) (map[string]bool, error) {
			done := make(map[string]bool, len(m.done))
			for v := range m.done {
				done[v] = true
			}
			return done, nil
		},
		apply: func(_ context.Context, mig Migration) error {
			if mig.Version == m.failing {
				return errors.New("syntax error")
			}
			m.done[mig.Version] = true
			m.order = append(m.order, mig.Version)
			return nil
		},
	}
}

func TestRun_SkipsRecordedVersions(t *testing.T) {
	ctx := context.Background()
	migrations := []Migration{{Version: "001_a"}, {Version: "002_b"}, {Version: "003_c"}}
	db := &memoryTarget{done: map[string]bool{"001_a": true}}

	applied, err := run(ctx, db.target(), migrations, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"002_b", "003_c"}, applied)

	// Reopening applies nothing.
	applied, err = run(ctx, db.target(), migrations, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, []string{"002_b", "003_c"}, db.order)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	migrations := []Migration{{Version: "001_a"}, {Version: "002_b"}, {Version: "003_c"}}
	db := &memoryTarget{done: map[string]bool{}, failing: "002_b"}

	applied, err := run(context.Background(), db.target(), migrations, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_b")
	assert.Equal(t, []string{"001_a"}, applied)
	assert.False(t, db.done["003_c"])
}

func TestRun_LogsAppliedVersions(t *testing.T) {
	var buf bytes.Buffer
	db := &memoryTarget{done: map[string]bool{}}

	_, err := run(context.Background(), db.target(), []Migration{{Version: "001_a"}}, zerolog.New(&buf))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"version":"001_a"`)
	assert.Contains(t, buf.String(), `"message":"migration applied"`)
}
