package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 60 * time.Second

// Postgres is the durable L3 tier: a generic key/value table with
// SQL-enforced TTL. It is the source of truth for everything the engine
// stores; cache tiers are rebuilt from it.
type Postgres struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgres wraps an existing pool. Every statement runs under the
// per-query timeout so a stuck backend cannot wedge a handler.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, queryTimeout: defaultQueryTimeout}
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.queryTimeout)
}

// Get returns the value for key, treating expired rows as absent.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := p.pool.QueryRow(ctx, `
		SELECT data FROM storage_cache
		WHERE cache_key = $1
		  AND (expires_at IS NULL OR expires_at > now())
	`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage_cache get: %w", err)
	}
	return data, nil
}

// Set upserts the row for key, replacing data and expiry.
func (p *Postgres) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO storage_cache (cache_key, data, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (cache_key) DO UPDATE SET
			data       = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("storage_cache set: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.pool.Exec(ctx, `DELETE FROM storage_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("storage_cache delete: %w", err)
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM storage_cache
			WHERE cache_key = $1
			  AND (expires_at IS NULL OR expires_at > now())
		)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage_cache exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Sweep deletes expired rows via the cleanup procedure and returns the
// number removed.
func (p *Postgres) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var removed int
	if err := p.pool.QueryRow(ctx, `SELECT cleanup_expired_cache()`).Scan(&removed); err != nil {
		return 0, fmt.Errorf("cleanup_expired_cache: %w", err)
	}
	return removed, nil
}
