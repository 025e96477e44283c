package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
)

func roleRegistry() *field.Registry {
	return field.NewRegistry("role",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
		field.Many2many("based_roles", "role", "role_based_role_rel", "role_id", "based_role_id"),
	)
}

func TestBuildRecursiveClosureOnPostgres(t *testing.T) {
	b := query.NewBuilder("role", dialect.PostgresDialect, roleRegistry())
	rel, ok := roleRegistry().Field("based_roles")
	require.True(t, ok)

	stmt, err := b.BuildRecursiveClosure(rel, 7)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WITH RECURSIVE closure")
	assert.Contains(t, stmt.SQL, `"role_based_role_rel"`)
	assert.Equal(t, []any{7}, stmt.Args)
}

func TestBuildRecursiveClosureUnsupportedOnMySQL(t *testing.T) {
	b := query.NewBuilder("role", dialect.MySQLDialect, roleRegistry())
	rel, ok := roleRegistry().Field("based_roles")
	require.True(t, ok)

	_, err := b.BuildRecursiveClosure(rel, 7)
	require.ErrorIs(t, err, dotorm.ErrUnsupportedDialect)
}
