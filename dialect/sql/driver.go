// Package sql wraps database/sql into the Driver/Tx shapes the session
// package executes against, independent of which dialect.Dialect is active.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dotorm/dotorm/dialect"
)

// Driver wraps a *sql.DB with its dialect.
type Driver struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// Open opens a database/sql connection pool registered under driverName and
// wraps it with the given dialect.
func Open(driverName, dataSourceName string, d dialect.Dialect) (*Driver, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	return &Driver{db: db, dialect: d}, nil
}

// OpenDB wraps an already-open *sql.DB.
func OpenDB(db *sql.DB, d dialect.Dialect) *Driver {
	return &Driver{db: db, dialect: d}
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect implements dialect.Driver.
func (d *Driver) Dialect() dialect.Dialect { return d.dialect }

// SetPoolSize configures the number of open and idle connections the
// underlying pool maintains, matching the spec's "connection pool owns N
// driver connections".
func (d *Driver) SetPoolSize(n int) {
	d.db.SetMaxOpenConns(n)
	d.db.SetMaxIdleConns(n)
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// BeginTx starts a transaction pinned to one connection.
func (d *Driver) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin tx: %w", err)
	}
	return &Tx{tx: tx, dialect: d.dialect}, nil
}

// Exec runs a statement with no expected result rows.
func (d *Driver) Exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	return res, nil
}

// ExecMany runs query once per row in argSets, used for Many2many link
// inserts and other per-row batched writes.
func (d *Driver) ExecMany(ctx context.Context, query string, argSets [][]any) error {
	for _, args := range argSets {
		if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("dialect/sql: exec many: %w", err)
		}
	}
	return nil
}

// Query runs a statement that returns rows.
func (d *Driver) Query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	return rows, nil
}

// Tx wraps a pinned *sql.Tx.
type Tx struct {
	tx      *sql.Tx
	dialect dialect.Dialect
}

// Dialect implements dialect.Driver.
func (t *Tx) Dialect() dialect.Dialect { return t.dialect }

// Close is a no-op; transactions close via Commit/Rollback. It exists so Tx
// satisfies dialect.Driver alongside Driver.
func (t *Tx) Close() error { return nil }

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: tx exec: %w", err)
	}
	return res, nil
}

// ExecMany runs query once per row in argSets inside the transaction.
func (t *Tx) ExecMany(ctx context.Context, query string, argSets [][]any) error {
	for _, args := range argSets {
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("dialect/sql: tx exec many: %w", err)
		}
	}
	return nil
}

// Query runs a statement that returns rows inside the transaction.
func (t *Tx) Query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: tx query: %w", err)
	}
	return rows, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls back the transaction. Safe to call after a failed Commit
// or as a deferred cleanup; sql.ErrTxDone from a no-op rollback is
// swallowed.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// NullScanner wraps a sql.Scanner so NULL values scan to the zero value
// instead of erroring, with Valid reporting whether a value was present.
type NullScanner struct {
	S     sql.Scanner
	Valid bool
}

// Scan implements sql.Scanner.
func (n *NullScanner) Scan(value any) error {
	n.Valid = value != nil
	if n.Valid {
		return n.S.Scan(value)
	}
	return nil
}
