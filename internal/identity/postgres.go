package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const displayNameQuery = `SELECT full_name FROM users WHERE id = $1 AND is_active`

// PostgresResolver looks display names up in the users table.
type PostgresResolver struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MinConns int32
	MaxConns int32
}

// ConnectPostgres opens and pings a pool for databaseURL.
func ConnectPostgres(ctx context.Context, databaseURL string, cfg PoolConfig) (*PostgresResolver, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresResolver(pool), nil
}

// NewPostgresResolver wraps an existing pool.
func NewPostgresResolver(pool *pgxpool.Pool) *PostgresResolver {
	return &PostgresResolver{pool: pool}
}

// ResolveDisplayName returns the full name of an active user.
func (p *PostgresResolver) ResolveDisplayName(ctx context.Context, subjectID string) (string, error) {
	var fullName string
	err := p.pool.QueryRow(ctx, displayNameQuery, subjectID).Scan(&fullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, subjectID)
	}
	if err != nil {
		return "", fmt.Errorf("query display name: %w", err)
	}
	return fullName, nil
}

// Ping checks the database connection.
func (p *PostgresResolver) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *PostgresResolver) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
