// Package session provides the execution abstraction every query the orm
// package builds runs through: a pool-backed NoTransaction session that
// acquires, executes, and releases one connection per call, and a
// Transactional session pinned to a single connection for the lifetime of
// a transaction. The active transaction, if any, is carried on the
// context so nested orm calls automatically join it instead of the caller
// threading a *Tx through every function signature.
package session

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/query"

	"golang.org/x/sync/errgroup"
)

// CursorMode selects how Execute interprets a statement's result.
type CursorMode int

const (
	// CursorFetch returns every matched row as []map[string]any.
	CursorFetch CursorMode = iota
	// CursorFetchOne returns the first matched row, or nil.
	CursorFetchOne
	// CursorLastInsertID runs an INSERT and returns the generated primary
	// key, via RETURNING on dialects that support it or the driver's
	// last-insert-id hook otherwise.
	CursorLastInsertID
	// CursorVoid runs a statement and discards its result.
	CursorVoid
	// CursorExecuteMany runs one statement once per argument set in Args.
	CursorExecuteMany
)

// Executor is the minimal contract a Session needs from its underlying
// connection or transaction.
type Executor interface {
	Exec(ctx context.Context, query string, args []any) (sql.Result, error)
	ExecMany(ctx context.Context, query string, argSets [][]any) error
	Query(ctx context.Context, query string, args []any) (*sql.Rows, error)
}

// Session executes query.Statement values and scans their results
// according to a CursorMode.
type Session interface {
	// Execute runs stmt under mode and returns its result shaped per mode:
	// []map[string]any for CursorFetch, map[string]any (or nil) for
	// CursorFetchOne, int64 for CursorLastInsertID, nil for CursorVoid.
	Execute(ctx context.Context, stmt query.Statement, mode CursorMode) (any, error)

	// ExecuteMany runs sqlText once per row in argSets.
	ExecuteMany(ctx context.Context, sqlText string, argSets [][]any) error

	// InTransaction reports whether this Session is pinned to an open
	// transaction.
	InTransaction() bool

	// ExecuteBatch runs a set of independent read statements, sequentially
	// if this session is transactional (a *sql.Tx only has one connection
	// to give) and concurrently via errgroup otherwise.
	ExecuteBatch(ctx context.Context, stmts []query.Statement) ([][]map[string]any, error)
}

type txKey struct{}

// WithTx stores the active Session on ctx so nested orm calls join the
// same transaction instead of starting their own.
func WithTx(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, txKey{}, s)
}

// FromContext returns the Session stashed by WithTx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(txKey{}).(Session)
	return s, ok
}

// Pool is the minimal contract a NoTransactionSession needs from the
// connection pool.
type Pool interface {
	Exec(ctx context.Context, query string, args []any) (sql.Result, error)
	ExecMany(ctx context.Context, query string, argSets [][]any) error
	Query(ctx context.Context, query string, args []any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*dsql.Tx, error)
}

// NoTransactionSession acquires, executes, and releases against the pool
// for every call; it never pins a connection.
type NoTransactionSession struct {
	pool Pool
	log  *slog.Logger
}

// NewNoTransactionSession returns a Session backed directly by pool.
func NewNoTransactionSession(pool Pool, log *slog.Logger) *NoTransactionSession {
	if log == nil {
		log = slog.Default()
	}
	return &NoTransactionSession{pool: pool, log: log}
}

func (s *NoTransactionSession) InTransaction() bool { return false }

func (s *NoTransactionSession) Execute(ctx context.Context, stmt query.Statement, mode CursorMode) (any, error) {
	return execute(ctx, s.pool, s.log, stmt, mode)
}

func (s *NoTransactionSession) ExecuteMany(ctx context.Context, sqlText string, argSets [][]any) error {
	return s.pool.ExecMany(ctx, sqlText, argSets)
}

func (s *NoTransactionSession) ExecuteBatch(ctx context.Context, stmts []query.Statement) ([][]map[string]any, error) {
	// Outside a transaction, the pool can hand out one connection per
	// concurrent query, so batched relation hydration fans out instead of
	// running one round-trip at a time.
	results := make([][]map[string]any, len(stmts))
	g, gctx := errgroup.WithContext(ctx)
	for i, stmt := range stmts {
		i, stmt := i, stmt
		g.Go(func() error {
			rows, err := execute(gctx, s.pool, s.log, stmt, CursorFetch)
			if err != nil {
				return err
			}
			results[i] = rows.([]map[string]any)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Begin starts a TransactionalSession pinned to one connection.
func (s *NoTransactionSession) Begin(ctx context.Context) (*TransactionalSession, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TransactionalSession{tx: tx, log: s.log}, nil
}

// TransactionalSession is pinned to one *dsql.Tx for its whole lifetime.
type TransactionalSession struct {
	tx  *dsql.Tx
	log *slog.Logger
}

func (s *TransactionalSession) InTransaction() bool { return true }

func (s *TransactionalSession) Execute(ctx context.Context, stmt query.Statement, mode CursorMode) (any, error) {
	return execute(ctx, s.tx, s.log, stmt, mode)
}

func (s *TransactionalSession) ExecuteMany(ctx context.Context, sqlText string, argSets [][]any) error {
	return s.tx.ExecMany(ctx, sqlText, argSets)
}

func (s *TransactionalSession) ExecuteBatch(ctx context.Context, stmts []query.Statement) ([][]map[string]any, error) {
	// A *sql.Tx is pinned to a single connection: concurrent queries on it
	// would race on the wire protocol, so relation hydration inside a
	// transaction runs strictly sequentially.
	results := make([][]map[string]any, len(stmts))
	for i, stmt := range stmts {
		rows, err := execute(ctx, s.tx, s.log, stmt, CursorFetch)
		if err != nil {
			return nil, err
		}
		results[i] = rows.([]map[string]any)
	}
	return results, nil
}

// Commit commits the underlying transaction.
func (s *TransactionalSession) Commit() error { return s.tx.Commit() }

// Rollback rolls back the underlying transaction.
func (s *TransactionalSession) Rollback() error { return s.tx.Rollback() }

func execute(ctx context.Context, ex Executor, log *slog.Logger, stmt query.Statement, mode CursorMode) (any, error) {
	switch mode {
	case CursorVoid:
		_, err := ex.Exec(ctx, stmt.SQL, stmt.Args)
		return nil, err

	case CursorLastInsertID:
		if strings.Contains(stmt.SQL, "RETURNING") {
			rows, err := ex.Query(ctx, stmt.SQL, stmt.Args)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var id int64
			if rows.Next() {
				if err := rows.Scan(&id); err != nil {
					return nil, err
				}
			}
			return id, rows.Err()
		}
		res, err := ex.Exec(ctx, stmt.SQL, stmt.Args)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return id, nil

	case CursorFetch, CursorFetchOne:
		rows, err := ex.Query(ctx, stmt.SQL, stmt.Args)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		maps, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		if mode == CursorFetchOne {
			if len(maps) == 0 {
				return nil, nil
			}
			return maps[0], nil
		}
		return maps, nil

	case CursorExecuteMany:
		argSets := make([][]any, len(stmt.Args))
		for i, a := range stmt.Args {
			set, ok := a.([]any)
			if !ok {
				set = []any{a}
			}
			argSets[i] = set
		}
		return nil, ex.ExecMany(ctx, stmt.SQL, argSets)

	default:
		log.WarnContext(ctx, "session: unsupported cursor mode", "mode", mode)
		_, err := ex.Exec(ctx, stmt.SQL, stmt.Args)
		return nil, err
	}
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
