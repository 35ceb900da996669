package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper puts a breaker in front of a sqlx handle. It satisfies
// sqlx.ExtContext so sqlx.SelectContext/GetContext work against it directly.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *Breaker
	logger *zap.Logger
}

// NewDatabaseWrapper guards db with a breaker named "postgresql".
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	return &DatabaseWrapper{
		db:     db,
		cb:     New("postgresql", instrument(DatabaseConfig()), logger),
		logger: logger,
	}
}

func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return guard(ctx, dw.cb, func() error { return dw.db.PingContext(ctx) })
}

func (dw *DatabaseWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := guard(ctx, dw.cb, func() error {
		var err error
		rows, err = dw.db.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

func (dw *DatabaseWrapper) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	var rows *sqlx.Rows
	err := guard(ctx, dw.cb, func() error {
		var err error
		rows, err = dw.db.QueryxContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// QueryRowxContext defers query errors to Scan, so only rejection is counted.
// sqlx.Row has no settable error; a rejected call runs against a canceled
// context so Scan fails without reaching the server.
func (dw *DatabaseWrapper) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	var row *sqlx.Row
	err := guard(ctx, dw.cb, func() error {
		row = dw.db.QueryRowxContext(ctx, query, args...)
		return nil
	})
	if err != nil {
		dw.logger.Debug("Query rejected by circuit breaker", zap.Error(err))
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		return dw.db.QueryRowxContext(canceled, query, args...)
	}
	return row
}

func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := guard(ctx, dw.cb, func() error {
		var err error
		res, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// BeginTxx opens a transaction. Statements inside the transaction are not
// individually guarded; the caller's commit or rollback decides the outcome.
func (dw *DatabaseWrapper) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	var tx *sqlx.Tx
	err := guard(ctx, dw.cb, func() error {
		var err error
		tx, err = dw.db.BeginTxx(ctx, opts)
		return err
	})
	return tx, err
}

func (dw *DatabaseWrapper) DriverName() string         { return dw.db.DriverName() }
func (dw *DatabaseWrapper) Rebind(query string) string { return dw.db.Rebind(query) }

func (dw *DatabaseWrapper) BindNamed(query string, arg interface{}) (string, []interface{}, error) {
	return dw.db.BindNamed(query, arg)
}

// Stats returns pool statistics.
func (dw *DatabaseWrapper) Stats() sql.DBStats { return dw.db.Stats() }

func (dw *DatabaseWrapper) Close() error { return dw.db.Close() }

// DB exposes the raw handle for migrations and health checks.
func (dw *DatabaseWrapper) DB() *sqlx.DB { return dw.db }

// IsCircuitBreakerOpen reports whether calls are currently rejected.
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}
