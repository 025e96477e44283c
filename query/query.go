// Package query is the stateless SQL generator shared by every Session:
// given a table's dialect and field.Registry, it renders CRUD, search,
// aggregate, and relation-batching statements as (SQL, args) pairs. It
// never touches a connection; session.Session is the only thing that
// executes what this package builds.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/filter"
)

// Statement is a rendered SQL string and its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Builder renders statements for one table against one dialect.
type Builder struct {
	Table    string
	Dialect  dialect.Dialect
	Fields   *field.Registry
}

// NewBuilder returns a Builder for table.
func NewBuilder(table string, d dialect.Dialect, fields *field.Registry) *Builder {
	return &Builder{Table: table, Dialect: d, Fields: fields}
}

func (b *Builder) escape(name string) string { return b.Dialect.EscapeIdentifier(name) }

func (b *Builder) qualifiedTable() string { return b.escape(b.Table) }

// BuildDelete renders DELETE FROM table WHERE id = ?.
func (b *Builder) BuildDelete(id any) Statement {
	pk := b.escape(b.Fields.PrimaryKey().Name)
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s = %s", b.qualifiedTable(), pk, b.Dialect.MakePlaceholder(1)),
		Args: []any{id},
	}
}

// BuildDeleteBulk renders DELETE FROM table WHERE id IN (...).
func (b *Builder) BuildDeleteBulk(ids []any) Statement {
	pk := b.escape(b.Fields.PrimaryKey().Name)
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", b.qualifiedTable(), pk, b.Dialect.MakePlaceholders(len(ids), 1)),
		Args: ids,
	}
}

// BuildCreate renders an INSERT ... VALUES (...) for one row, sorted by
// column name for deterministic SQL text across calls (eases sqlmock
// expectations and log comparisons).
func (b *Builder) BuildCreate(payload map[string]any) Statement {
	names := sortedKeys(payload)
	cols := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = b.escape(name)
		args[i] = payload[name]
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.qualifiedTable(), strings.Join(cols, ", "), b.Dialect.MakePlaceholders(len(names), 1),
	)
	if b.Dialect.SupportsReturning() {
		stmt += " RETURNING " + b.escape(b.Fields.PrimaryKey().Name)
	}
	return Statement{SQL: stmt, Args: args}
}

// BuildCreateBulk renders a single multi-row INSERT. Every payload must
// share the same key set; the first payload's key order decides the
// column list.
func (b *Builder) BuildCreateBulk(payloads []map[string]any) (Statement, error) {
	if len(payloads) == 0 {
		return Statement{}, dotorm.NewInvariantError("query: BuildCreateBulk called with no rows")
	}
	names := sortedKeys(payloads[0])
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = b.escape(name)
	}

	var args []any
	groups := make([]string, len(payloads))
	index := 1
	for i, payload := range payloads {
		placeholders := make([]string, len(names))
		for j, name := range names {
			placeholders[j] = b.Dialect.MakePlaceholder(index)
			args = append(args, payload[name])
			index++
		}
		groups[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		b.qualifiedTable(), strings.Join(cols, ", "), strings.Join(groups, ", "),
	)
	if b.Dialect.SupportsReturning() {
		stmt += " RETURNING " + b.escape(b.Fields.PrimaryKey().Name)
	}
	return Statement{SQL: stmt, Args: args}, nil
}

// BuildUpdate renders UPDATE table SET ... WHERE id = ?.
func (b *Builder) BuildUpdate(payload map[string]any, id any) (Statement, error) {
	if len(payload) == 0 {
		return Statement{}, dotorm.NewUpdateEmptyParamsError(b.Table)
	}
	names := sortedKeys(payload)
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	index := 1
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = %s", b.escape(name), b.Dialect.MakePlaceholder(index))
		args = append(args, payload[name])
		index++
	}
	pk := b.escape(b.Fields.PrimaryKey().Name)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", b.qualifiedTable(), strings.Join(sets, ", "), pk, b.Dialect.MakePlaceholder(index))
	args = append(args, id)
	return Statement{SQL: stmt, Args: args}, nil
}

// BuildUpdateBulk renders UPDATE table SET ... WHERE id IN (...), applying
// the same payload to every id.
func (b *Builder) BuildUpdateBulk(payload map[string]any, ids []any) (Statement, error) {
	if len(payload) == 0 {
		return Statement{}, dotorm.NewUpdateEmptyParamsError(b.Table)
	}
	names := sortedKeys(payload)
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+len(ids))
	index := 1
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = %s", b.escape(name), b.Dialect.MakePlaceholder(index))
		args = append(args, payload[name])
		index++
	}
	pk := b.escape(b.Fields.PrimaryKey().Name)
	stmt := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s IN (%s)",
		b.qualifiedTable(), strings.Join(sets, ", "), pk, b.Dialect.MakePlaceholders(len(ids), index),
	)
	args = append(args, ids...)
	return Statement{SQL: stmt, Args: args}, nil
}

// BuildGet renders SELECT ... FROM table WHERE id = ? LIMIT 1. fields
// defaults to every stored column.
func (b *Builder) BuildGet(id any, fields []string) Statement {
	if len(fields) == 0 {
		fields = b.Fields.StoreNames()
	}
	pk := b.escape(b.Fields.PrimaryKey().Name)
	stmt := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		b.columnList(fields), b.qualifiedTable(), pk, b.Dialect.MakePlaceholder(1),
	)
	return Statement{SQL: stmt, Args: []any{id}}
}

// BuildTableLen renders SELECT COUNT(*) FROM table.
func (b *Builder) BuildTableLen() Statement {
	return Statement{SQL: fmt.Sprintf("SELECT COUNT(*) FROM %s", b.qualifiedTable())}
}

// SearchOptions controls BuildSearch's pagination, sort, and filter.
type SearchOptions struct {
	Fields []string // defaults to every stored column
	Sort   string   // defaults to the primary key
	Order  string   // "ASC" or "DESC", defaults to "DESC"
	Limit  int      // 0 defaults to 80; a negative value means no LIMIT clause
	Start  *int     // when Start and End are both set, overrides Limit with OFFSET
	End    *int
	Filter any // raw filter expression, see package filter
}

const defaultSearchLimit = 80

// BuildSearch renders a SELECT with ORDER BY, pagination, and an optional
// WHERE clause compiled from opts.Filter via the filter package.
func (b *Builder) BuildSearch(opts SearchOptions) (Statement, error) {
	storeNames := b.Fields.StoreNames()
	fields := opts.Fields
	if len(fields) == 0 {
		fields = storeNames
	} else {
		fields = intersect(fields, storeNames)
	}

	order := strings.ToUpper(opts.Order)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	sortField := opts.Sort
	if sortField == "" || !contains(storeNames, sortField) {
		sortField = storeNames[0]
	}

	var whereClause string
	var whereArgs []any
	nextIndex := 1
	if opts.Filter != nil {
		expr, err := filter.Parse(opts.Filter)
		if err != nil {
			return Statement{}, err
		}
		clause, args, err := filter.Compile(b.Dialect, expr)
		if err != nil {
			return Statement{}, err
		}
		whereClause = clause
		whereArgs = args
		nextIndex += len(args)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", b.columnList(fields), b.qualifiedTable())
	if whereClause != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereClause)
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", b.escape(sortField), order)

	args := append([]any{}, whereArgs...)
	switch {
	case opts.Start != nil && opts.End != nil:
		sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", b.Dialect.MakePlaceholder(nextIndex), b.Dialect.MakePlaceholder(nextIndex+1)))
		args = append(args, *opts.End-*opts.Start, *opts.Start)
	case opts.Limit > 0:
		sb.WriteString(fmt.Sprintf(" LIMIT %s", b.Dialect.MakePlaceholder(nextIndex)))
		args = append(args, opts.Limit)
	case opts.Limit == 0 && opts.Start == nil:
		sb.WriteString(fmt.Sprintf(" LIMIT %s", b.Dialect.MakePlaceholder(nextIndex)))
		args = append(args, defaultSearchLimit)
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// BuildCount renders SELECT COUNT(*) with an optional filter.
func (b *Builder) BuildCount(rawFilter any) (Statement, error) {
	return b.buildFilteredScalar("SELECT COUNT(*) AS count FROM %s", rawFilter)
}

// BuildExists renders SELECT 1 ... LIMIT 1 with an optional filter.
func (b *Builder) BuildExists(rawFilter any) (Statement, error) {
	return b.buildFilteredScalar("SELECT 1 FROM %s", rawFilter, " LIMIT 1")
}

func (b *Builder) buildFilteredScalar(template string, rawFilter any, suffix ...string) (Statement, error) {
	stmt := fmt.Sprintf(template, b.qualifiedTable())
	var args []any
	if rawFilter != nil {
		expr, err := filter.Parse(rawFilter)
		if err != nil {
			return Statement{}, err
		}
		clause, fargs, err := filter.Compile(b.Dialect, expr)
		if err != nil {
			return Statement{}, err
		}
		stmt += " WHERE " + clause
		args = fargs
	}
	for _, s := range suffix {
		stmt += s
	}
	return Statement{SQL: stmt, Args: args}, nil
}

func (b *Builder) columnList(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = b.escape(f)
	}
	return strings.Join(escaped, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
