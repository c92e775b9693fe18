// Package postgres implements the repository port on PostgreSQL using pgx.
//
// Every unit of work is a pgx.Tx. Accounts read inside a unit of work are
// locked with SELECT ... FOR UPDATE until the transaction ends. Schema
// changes live in migrations/postgres and are applied by cmd/migrate.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/repository"
)

const defaultConnectRetries = 5

// Repository is a PostgreSQL-backed repository.Repository.
type Repository struct {
	reader
	pool       *pgxpool.Pool
	ids        repository.IDGenerator
	log        zerolog.Logger
	maxRetries uint64
}

// Option configures a Repository.
type Option func(*Repository)

// WithIDGenerator replaces the random account number generator.
func WithIDGenerator(ids repository.IDGenerator) Option {
	return func(r *Repository) { r.ids = ids }
}

// WithLogger sets the logger used for connection retries.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithConnectRetries bounds how many times Connect pings the database before giving up.
func WithConnectRetries(n uint64) Option {
	return func(r *Repository) { r.maxRetries = n }
}

// Connect opens a traced connection pool and waits for the database to answer,
// retrying with exponential backoff.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("Connect: parsing database URL: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	r := &Repository{
		ids:        repository.NewRandomAccountNumbers(nil),
		log:        zerolog.Nop(),
		maxRetries: defaultConnectRetries,
	}
	for _, opt := range opts {
		opt(r)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Connect: creating pool: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, b, func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Dur("retry_in", wait).Msg("Database not ready")
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: pinging database: %w", err)
	}

	r.pool = pool
	r.reader = reader{q: pool}
	r.log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("Connected to PostgreSQL")
	return r, nil
}

// WithinTx implements repository.Repository. The transaction is rolled back when fn
// returns an error or panics.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &unit{reader: reader{q: tx, forUpdate: true}, tx: tx, ids: r.ids})
	})
	return domain.StorageError("WithinTx", err)
}

// Close implements repository.Repository.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

var _ repository.Repository = (*Repository)(nil)
