// Package backend opens the storage selected by the process configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"token-ledger/internal/config"
	"token-ledger/internal/ledger"
	"token-ledger/internal/storage"
	chstore "token-ledger/internal/storage/clickhouse"
	"token-ledger/internal/storage/kv"
	"token-ledger/internal/storage/memory"
	"token-ledger/internal/storage/migrations"
	pgstore "token-ledger/internal/storage/postgres"
)

// Backend bundles the stores a ledger process works with.
type Backend struct {
	Kind      string
	Ledger    storage.LedgerStore
	Events    storage.EventStore
	Analytics storage.EventStore // nil unless a ClickHouse DSN is configured

	closers []func() error
	pingers []func(context.Context) error
}

// Open creates the stores for cfg. Postgres and ClickHouse schemas are migrated
// before the stores are returned.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	b := &Backend{Kind: cfg.Store}

	switch cfg.Store {
	case config.StoreMemory:
		b.Ledger = memory.NewLedgerStore()
		b.Events = memory.NewEventStore()

	case config.StoreBadger:
		db, err := kv.Open(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		b.useBadger(db)

	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, func() error {
			pool.Close()
			return nil
		})
		applied, err := migrations.RunPostgresMigrations(ctx, pool, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Debug().Int("applied", len(applied)).Msg("postgres schema up to date")
		b.pingers = append(b.pingers, pool.Ping)
		b.Ledger = pgstore.NewLedgerStore(pool)
		b.Events = pgstore.NewEventStore(pool)

	default:
		return nil, fmt.Errorf("%w: unknown store %q", storage.ErrInvalidInput, cfg.Store)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		b.closers = append(b.closers, conn.Close)
		b.pingers = append(b.pingers, conn.Ping)
		b.Analytics = chstore.NewEventStore(conn)
	}

	log.Info().
		Str("store", b.Kind).
		Bool("analytics", b.Analytics != nil).
		Msg("storage backend ready")

	return b, nil
}

// OpenInMemoryBadger builds a backend on a transient badger database.
func OpenInMemoryBadger() (*Backend, error) {
	db, err := kv.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger database: %w", err)
	}
	b := &Backend{Kind: config.StoreBadger, closers: []func() error{db.Close}}
	b.useBadger(db)
	return b, nil
}

func (b *Backend) useBadger(db *badger.DB) {
	codec := kv.NewCodec()
	b.Ledger = kv.NewLedgerStore(db, codec)
	b.Events = kv.NewEventStore(db, codec)
}

// Sinks returns the event sinks that persist committed events. Badger and
// Postgres ledger stores write their own event log inside the commit, so only
// the memory store gets a sink for it.
func (b *Backend) Sinks() []ledger.EventSink {
	var sinks []ledger.EventSink
	if _, ok := b.Ledger.(storage.JournalingLedgerStore); !ok {
		sinks = append(sinks, ledger.NewStoreSink(b.Kind, b.Events))
	}
	if b.Analytics != nil {
		sinks = append(sinks, ledger.NewStoreSink("clickhouse", b.Analytics))
	}
	return sinks
}

// Ping checks every networked store is reachable. Embedded stores always pass.
func (b *Backend) Ping(ctx context.Context) error {
	var result *multierror.Error
	for _, ping := range b.pingers {
		result = multierror.Append(result, ping(ctx))
	}
	return result.ErrorOrNil()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
