package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps the blob in a key/value table of a local SQLite file.
type SQLiteBackend struct {
	db  *sql.DB
	key string
}

// NewSQLiteBackend opens (and creates) the database at dbPath.
func NewSQLiteBackend(ctx context.Context, dbPath, key string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer is all the store ever needs.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := &SQLiteBackend{db: db, key: key}
	if err := b.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS vibepilot_state (
		key TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := b.db.ExecContext(ctx, query)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var state string
	err := b.db.QueryRowContext(ctx, `SELECT state FROM vibepilot_state WHERE key = ?`, b.key).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	return []byte(state), nil
}

func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO vibepilot_state (key, state, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, b.key, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
