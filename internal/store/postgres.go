package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateStateTable = `
        CREATE TABLE IF NOT EXISTS vibepilot_state (
            key TEXT PRIMARY KEY,
            state JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );
    `
	sqlSelectState = `SELECT state FROM vibepilot_state WHERE key = $1`
	sqlUpsertState = `
        INSERT INTO vibepilot_state (key, state, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET
            state = EXCLUDED.state,
            updated_at = EXCLUDED.updated_at;
    `
)

// PostgresBackend keeps the blob in a single JSONB row.
type PostgresBackend struct {
	pool DBPool
	key  string
	log  *zap.Logger
}

// OpenPostgresPool connects to url.
func OpenPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// NewPostgresBackend verifies the connection and ensures the table exists.
func NewPostgresBackend(ctx context.Context, pool DBPool, key string, logger *zap.Logger) (*PostgresBackend, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateStateTable); err != nil {
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}
	return &PostgresBackend{pool: pool, key: key, log: logger.Named("store.postgres")}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var state []byte
	err := b.pool.QueryRow(ctx, sqlSelectState, b.key).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		b.log.Debug("No stored state found", zap.String("key", b.key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	return state, nil
}

func (b *PostgresBackend) Save(ctx context.Context, data []byte) error {
	tag, err := b.pool.Exec(ctx, sqlUpsertState, b.key, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}
	if tag.RowsAffected() != 1 {
		b.log.Warn("Unexpected rows affected while saving state", zap.Int64("rows", tag.RowsAffected()))
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
