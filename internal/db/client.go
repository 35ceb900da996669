package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
	"github.com/fleetworks/fleet-api/internal/config"
)

// Client owns the postgres pool and the breaker in front of it.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	stopCh chan struct{}
}

// NewClient opens the pool and waits for postgres to answer, retrying with a
// fixed delay so the service can start alongside its database container.
func NewClient(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Client, error) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 1
	}

	raw, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	raw.SetMaxOpenConns(cfg.MaxConnections)
	raw.SetMaxIdleConns(cfg.IdleConnections)
	raw.SetConnMaxLifetime(cfg.MaxLifetime)

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return raw.PingContext(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Database not ready, retrying",
				zap.Uint("attempt", n+1),
				zap.String("host", cfg.Host),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &Client{
		db:     circuitbreaker.NewDatabaseWrapper(raw, logger),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	go c.healthCheck()

	logger.Info("Database client initialized",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
		zap.Int("max_connections", cfg.MaxConnections),
	)
	return c, nil
}

func (c *Client) healthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.db.PingContext(ctx); err != nil {
				c.logger.Error("Database health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Wrapper returns the guarded handle used by the store and dashboard.
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper { return c.db }

// Close stops the health loop and closes the pool.
func (c *Client) Close() error {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}

// TxBeginner is satisfied by *sqlx.DB and the circuit breaker wrapper.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// WithTransaction runs fn in a transaction, rolling back on error or panic.
func WithTransaction(ctx context.Context, db TxBeginner, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Handle is what the data layers need from a connection: sqlx queries plus
// transactions. *sqlx.DB and *circuitbreaker.DatabaseWrapper both satisfy it.
type Handle interface {
	sqlx.ExtContext
	TxBeginner
}
