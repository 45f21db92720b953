package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresPoolConfig controls database/sql pool behavior.
// Keep it config-driven; defaults should be safe and conservative.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	out := c
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = 25
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = 25
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 5 * time.Second
	}
	return out
}

const createObjectsTable = `
CREATE TABLE IF NOT EXISTS objects (
	key          TEXT PRIMARY KEY,
	data         BYTEA NOT NULL,
	content_type TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps objects in a single key/bytea table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a Postgres-backed object store using database/sql.
// driverName should typically be "pgx" (pgx stdlib).
// dsn must not be logged; it contains secrets.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*PostgresStore, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: db ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, createObjectsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ensure objects table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const upsertObject = `
INSERT INTO objects (key, data, content_type, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE
SET data = EXCLUDED.data, content_type = EXCLUDED.content_type, updated_at = now()`

func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if _, err := s.db.ExecContext(ctx, upsertObject, key, data, contentType); err != nil {
		return fmt.Errorf("storage: put %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %q: %w", key, err)
	}
	return data, nil
}

// Update runs the read-modify-write inside a transaction, serialized on
// a transaction-scoped advisory lock derived from the key. A row lock is
// not enough here: SELECT ... FOR UPDATE over a key with no row yet
// locks nothing, so two first-time writers could both see the object as
// missing and the later commit would overwrite the earlier one.
func (s *PostgresStore) Update(ctx context.Context, key string, contentType string, fn UpdateFunc) error {
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}

		var current []byte
		exists := true
		err := tx.QueryRowContext(ctx, `SELECT data FROM objects WHERE key = $1`, key).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, upsertObject, key, next, contentType)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: update %q: %w", key, err)
	}
	return nil
}

// txFunc is the unit of work executed inside a transaction.
type txFunc func(ctx context.Context, tx *sql.Tx) error

// withTx runs fn inside a transaction.
// - If fn returns error: tx is rolled back and the error is returned.
// - If fn panics: tx is rolled back and the panic is re-thrown.
// - If commit fails: commit error is returned.
func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn txFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
