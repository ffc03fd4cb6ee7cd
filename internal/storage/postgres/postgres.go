// Package postgres implements the ledger and event stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"token-ledger/internal/observability"
)

// applicationName tags ledger sessions in pg_stat_activity.
const applicationName = "token-ledger"

// Pool is the connection pool shared by the ledger and event stores.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to dsn and checks the server is reachable before handing
// the pool out. Both steps are recorded as database queries.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	start := time.Now()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	observability.RecordDBQuery("postgres", "connect", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	p := &Pool{Pool: pool}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Ping checks that a connection can be acquired and answers.
func (p *Pool) Ping(ctx context.Context) error {
	start := time.Now()
	err := p.Pool.Ping(ctx)
	observability.RecordDBQuery("postgres", "ping", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction that is committed only when fn succeeds.
func (p *Pool) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// uniqueViolation is the SQLSTATE of a primary key or unique index conflict.
const uniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
