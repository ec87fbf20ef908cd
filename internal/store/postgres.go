package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a single key/value table. Blobs are kept
// as TEXT so Get returns exactly the bytes given to Put.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the progression table if it does not exist and
// converts a blob column created as JSONB by older builds to TEXT.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS progression (
			key        TEXT PRIMARY KEY,
			blob       TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure progression schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `ALTER TABLE progression ALTER COLUMN blob TYPE TEXT`); err != nil {
		return fmt.Errorf("migrate progression blob column: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob string
	err := s.pool.QueryRow(ctx,
		`SELECT blob FROM progression WHERE key = $1`, key).
		Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progression %s: %w", key, err)
	}
	return []byte(blob), nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progression (key, blob, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE
		 SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		key, string(blob),
	)
	if err != nil {
		return fmt.Errorf("put progression %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM progression WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete progression %s: %w", key, err)
	}
	return nil
}
