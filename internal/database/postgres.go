// Package database подключение к PostgreSQL и миграции схемы.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
)

// DBTX общий интерфейс пула и транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// ConnectOptions параметры попыток подключения.
type ConnectOptions struct {
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

// DefaultConnectOptions подходят для запуска рядом с контейнером БД, который ещё поднимается.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{MaxRetries: 20, RetryDelay: 3 * time.Second, AttemptTimeout: 5 * time.Second}
}

// Connect создаёт пул и проверяет его пингом, повторяя попытки.
func Connect(ctx context.Context, cfg config.DatabaseConfig, opts ConnectOptions, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		// DSN некорректен, повторять бессмысленно
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MaxConnIdleTime = cfg.IdleTimeout

	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	log := logger.With(zap.String("dsn", cfg.MaskedDSN()))
	log.Info("Connecting to PostgreSQL", zap.Int("max_retries", opts.MaxRetries), zap.Duration("retry_delay", opts.RetryDelay))

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		var pool *pgxpool.Pool
		pool, err = connectOnce(ctx, poolConfig, opts.AttemptTimeout)
		if err == nil {
			log.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}
		log.Warn("PostgreSQL connection attempt failed",
			zap.Int("attempt", attempt), zap.Int("max_retries", opts.MaxRetries), zap.Error(err))

		if attempt == opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.MaxRetries, err)
}

func connectOnce(ctx context.Context, poolConfig *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return pool, nil
}
