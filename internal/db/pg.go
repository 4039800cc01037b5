package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/config"
)

// Open creates the durable-tier connection pool. Pool limits follow the
// storage contract: at most 10 connections, idle connections recycled
// after 30s.
func Open(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, err
	}

	pcfg.MaxConns = 10
	pcfg.MinConns = 1
	pcfg.MaxConnIdleTime = 30 * time.Second
	pcfg.MaxConnLifetime = time.Hour
	pcfg.HealthCheckPeriod = time.Minute
	pcfg.ConnConfig.ConnectTimeout = 10 * time.Second

	tlsConfig, err := tlsFor(cfg, pcfg.ConnConfig.Host)
	if err != nil {
		return nil, err
	}
	pcfg.ConnConfig.TLSConfig = tlsConfig

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", pcfg.MaxConns).
		Str("host", pcfg.ConnConfig.Host).
		Bool("tls", tlsConfig != nil).
		Msg("postgres connection pool created")

	return pool, nil
}
