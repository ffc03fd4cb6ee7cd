package kv

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"
)

func inMemoryDB(t *testing.T) *badger.DB {
	t.Helper()

	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}
