package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQLWrapper guards a sqlx handle. sql.ErrNoRows is not a breaker failure.
type SQLWrapper struct {
	db        *sqlx.DB
	cb        *Breaker
	component string
}

// NewSQLWrapper wraps db for dependency (postgres or vectordb).
func NewSQLWrapper(db *sqlx.DB, dependency, component string, logger *zap.Logger) *SQLWrapper {
	cb := New(dependency, SettingsFor(dependency), logger)
	DefaultRegistry.Register(component, cb)
	return &SQLWrapper{db: db, cb: cb, component: component}
}

func (sw *SQLWrapper) run(ctx context.Context, fn func() error) error {
	var callErr error
	err := sw.cb.Execute(ctx, func() error {
		callErr = fn()
		if callErr == sql.ErrNoRows {
			return nil
		}
		return callErr
	})
	RecordRequest(sw.cb.Name(), sw.component, sw.cb.State(), err == nil)
	if err != nil {
		return err
	}
	return callErr
}

// PingContext verifies the connection.
func (sw *SQLWrapper) PingContext(ctx context.Context) error {
	return sw.run(ctx, func() error { return sw.db.PingContext(ctx) })
}

// ExecContext runs a statement.
func (sw *SQLWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := sw.run(ctx, func() error {
		var err error
		res, err = sw.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// GetContext scans a single row into dest.
func (sw *SQLWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sw.run(ctx, func() error { return sw.db.GetContext(ctx, dest, query, args...) })
}

// SelectContext scans all rows into dest.
func (sw *SQLWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sw.run(ctx, func() error { return sw.db.SelectContext(ctx, dest, query, args...) })
}

// WithTx runs fn inside a transaction, committing on success.
func (sw *SQLWrapper) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return sw.run(ctx, func() error {
		tx, err := sw.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// DB returns the underlying handle.
func (sw *SQLWrapper) DB() *sqlx.DB { return sw.db }

// Close closes the handle.
func (sw *SQLWrapper) Close() error { return sw.db.Close() }

// IsOpen reports whether the breaker is currently rejecting calls.
func (sw *SQLWrapper) IsOpen() bool { return sw.cb.State() == StateOpen }
