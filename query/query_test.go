package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
)

func taskRegistry() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 200, field.WithRequired(true)),
		field.Boolean("done", field.WithDefault(false)),
	)
}

func TestBuildGet(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	stmt := b.BuildGet(42, nil)
	assert.Equal(t, `SELECT "id", "title", "done" FROM "task" WHERE "id" = $1 LIMIT 1`, stmt.SQL)
	assert.Equal(t, []any{42}, stmt.Args)
}

func TestBuildCreateIncludesReturningOnPostgres(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	stmt := b.BuildCreate(map[string]any{"title": "write tests", "done": false})
	assert.Contains(t, stmt.SQL, "INSERT INTO \"task\"")
	assert.Contains(t, stmt.SQL, "RETURNING \"id\"")
	assert.Equal(t, []any{false, "write tests"}, stmt.Args)
}

func TestBuildCreateOmitsReturningOnMySQL(t *testing.T) {
	b := query.NewBuilder("task", dialect.MySQLDialect, taskRegistry())
	stmt := b.BuildCreate(map[string]any{"title": "write tests"})
	assert.NotContains(t, stmt.SQL, "RETURNING")
}

func TestBuildUpdateRejectsEmptyPayload(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	_, err := b.BuildUpdate(map[string]any{}, 1)
	require.Error(t, err)
}

func TestBuildSearchDefaultsSortAndLimit(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	stmt, err := b.BuildSearch(query.SearchOptions{})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `ORDER BY "id" DESC`)
	assert.Contains(t, stmt.SQL, "LIMIT $1")
	assert.Equal(t, []any{80}, stmt.Args)
}

func TestBuildSearchWithFilter(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	stmt, err := b.BuildSearch(query.SearchOptions{
		Filter: []any{[]any{"done", "=", false}},
		Sort:   "title",
		Order:  "asc",
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `WHERE "done" = $1`)
	assert.Contains(t, stmt.SQL, `ORDER BY "title" ASC`)
	assert.Equal(t, []any{false, 10}, stmt.Args)
}

func TestBuildDeleteBulk(t *testing.T) {
	b := query.NewBuilder("task", dialect.PostgresDialect, taskRegistry())
	stmt := b.BuildDeleteBulk([]any{1, 2, 3})
	assert.Equal(t, `DELETE FROM "task" WHERE "id" IN ($1, $2, $3)`, stmt.SQL)
}
