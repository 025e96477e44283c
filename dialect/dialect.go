// Package dialect provides database dialect abstraction for DotORM.
//
// A Dialect centralizes everything that differs between the SQL databases
// the ORM targets: identifier quoting, placeholder style, and whether
// INSERT can RETURNING the generated primary key. Every other component
// (query, ddl, filter) is written against this interface and never branches
// on a dialect name directly.
package dialect

import "fmt"

// Well-known dialect names, matching the three targets named in the spec.
const (
	Postgres   = "postgres"
	MySQL      = "mysql"
	Clickhouse = "clickhouse"
)

// Dialect describes the SQL surface differences the query builder and DDL
// engine must account for.
type Dialect interface {
	// Name returns the dialect identifier (Postgres, MySQL, Clickhouse).
	Name() string

	// EscapeIdentifier wraps name in the dialect's identifier quoting.
	EscapeIdentifier(name string) string

	// MakePlaceholders returns a comma-joined placeholder list of n
	// placeholders, numbered starting at start for dialects that use
	// numbered placeholders ($1, $2, ...); start is ignored otherwise.
	MakePlaceholders(n, start int) string

	// MakePlaceholder returns a single placeholder at the given 1-based
	// index.
	MakePlaceholder(index int) string

	// SupportsReturning reports whether INSERT ... RETURNING id is
	// available; when false, the generated id must come from the driver's
	// last-insert-id hook.
	SupportsReturning() bool

	// SupportsIdentityColumn reports whether the dialect has an
	// auto-increment / identity column concept for primary keys.
	SupportsIdentityColumn() bool

	// SupportsILike reports whether the dialect has a native
	// case-insensitive LIKE operator (ILIKE). When false, the filter
	// compiler falls back to LOWER()-wrapped LIKE.
	SupportsILike() bool
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }

func (postgresDialect) EscapeIdentifier(name string) string {
	return `"` + name + `"`
}

func (postgresDialect) MakePlaceholders(n, start int) string {
	if start == 0 {
		start = 1
	}
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("$%d", start+i)
	}
	return s
}

func (postgresDialect) MakePlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (postgresDialect) SupportsReturning() bool     { return true }
func (postgresDialect) SupportsIdentityColumn() bool { return true }
func (postgresDialect) SupportsILike() bool          { return true }

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return MySQL }

func (mysqlDialect) EscapeIdentifier(name string) string {
	return "`" + name + "`"
}

func (mysqlDialect) MakePlaceholders(n, _ int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}

func (mysqlDialect) MakePlaceholder(int) string { return "?" }

func (mysqlDialect) SupportsReturning() bool     { return false }
func (mysqlDialect) SupportsIdentityColumn() bool { return true }
func (mysqlDialect) SupportsILike() bool          { return false }

// clickhouseDialect targets Clickhouse's insert-oriented SQL surface. It has
// no auto-increment/identity column, so models that declare a primary key
// field are rejected by the DDL engine when this dialect is selected (see
// ddl.Engine); Clickhouse is otherwise a regular store/search dialect.
type clickhouseDialect struct{}

func (clickhouseDialect) Name() string { return Clickhouse }

func (clickhouseDialect) EscapeIdentifier(name string) string {
	return "`" + name + "`"
}

func (clickhouseDialect) MakePlaceholders(n, _ int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}

func (clickhouseDialect) MakePlaceholder(int) string { return "?" }

func (clickhouseDialect) SupportsReturning() bool     { return false }
func (clickhouseDialect) SupportsIdentityColumn() bool { return false }
func (clickhouseDialect) SupportsILike() bool          { return false }

var (
	// PostgresDialect is the primary supported target.
	PostgresDialect Dialect = postgresDialect{}
	// MySQLDialect targets MySQL/MariaDB.
	MySQLDialect Dialect = mysqlDialect{}
	// ClickhouseDialect targets Clickhouse.
	ClickhouseDialect Dialect = clickhouseDialect{}
)

// Get returns the pre-built Dialect for name.
func Get(name string) (Dialect, error) {
	switch name {
	case Postgres:
		return PostgresDialect, nil
	case MySQL:
		return MySQLDialect, nil
	case Clickhouse:
		return ClickhouseDialect, nil
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
}

// Driver is the minimal execution contract a session needs from a
// database/sql-compatible driver wrapper.
type Driver interface {
	Dialect() Dialect
	Close() error
}
