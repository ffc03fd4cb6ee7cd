// Package kv implements the ledger stores on an embedded Badger database.
//
// Values are CBOR encoded and zstd compressed. Every Commit or InsertBulk runs
// in a single Badger transaction, so a partially written change set is never
// visible.
package kv

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

// DefaultOptions returns the Badger options used for the ledger database.
func DefaultOptions(dir string) badger.Options {
	return badger.DefaultOptions(dir).
		WithMaxTableSize(64 << 20).
		WithValueLogFileSize(64 << 20).
		WithTableLoadingMode(options.FileIO).
		WithValueLogLoadingMode(options.FileIO).
		WithNumMemtables(1).
		WithSyncWrites(true).
		WithLogger(nil)
}

// Open opens the Badger database in dir.
func Open(dir string) (*badger.DB, error) {
	return badger.Open(DefaultOptions(dir))
}

// OpenInMemory opens a Badger database that lives only in memory.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}
