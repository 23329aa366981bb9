// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPool creates and validates a pgxpool connection pool.
// It retries cfg.ConnectAttempts times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DBConfig, log *zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.ConnectAttempts).
			Msg("db connect attempt failed, retrying in 2s")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// Migrate applies the embedded schema files in lexical order. Every file is
// idempotent, so Migrate is safe to run on each start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *zerolog.Logger) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		log.Debug().Str("file", file).Msg("migration applied")
	}
	log.Info().Int("files", len(files)).Msg("migrations applied")
	return nil
}
