package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/leadintake/internal/config"
)

// Open builds the store selected by cfg.Store.Driver. The returned close
// function releases the connection pool, if any.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverMemory:
		slog.Warn("using in-memory lead store; data is lost on exit")
		return NewMemoryStore(), func() {}, nil

	case config.DriverPostgres, "":
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgres(pool)
		if cfg.Database.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate leads table: %w", err)
			}
		}
		return s, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewPool parses the database URL, applies pool sizing from cfg, connects
// and pings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
