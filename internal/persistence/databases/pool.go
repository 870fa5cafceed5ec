package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metastable-lab/roleplay/internal/config"
)

// OpenPool creates a Postgres connection pool: max 5 connections by
// default, 60 s statement timeout.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig, dsn string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	} else {
		pc.MaxConns = 5
	}
	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = 60
	}
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", time.Duration(timeout)*time.Second/time.Millisecond)
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}
