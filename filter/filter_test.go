package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/filter"
)

func TestParseAndCompile(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		clause string
		args   []any
	}{
		{
			name:   "simple eq",
			raw:    []any{[]any{"active", "=", true}},
			clause: `"active" = $1`,
			args:   []any{true},
		},
		{
			name: "implicit and",
			raw: []any{
				[]any{"active", "=", true},
				[]any{"role", "=", "admin"},
			},
			clause: `"active" = $1 AND "role" = $2`,
			args:   []any{true, "admin"},
		},
		{
			name: "explicit or with nested group",
			raw: []any{
				[]any{"active", "=", true},
				"or",
				[]any{
					[]any{"role", "=", "admin"},
					[]any{"verified", "=", true},
				},
			},
			clause: `"active" = $1 OR ("role" = $2 AND "verified" = $3)`,
			args:   []any{true, "admin", true},
		},
		{
			name:   "not",
			raw:    []any{[]any{"not", []any{[]any{"active", "=", true}}}},
			clause: `(NOT ("active" = $1))`,
			args:   []any{true},
		},
		{
			name:   "eq nil becomes is null",
			raw:    []any{[]any{"deleted_at", "=", nil}},
			clause: `"deleted_at" IS NULL`,
			args:   nil,
		},
		{
			name:   "in list",
			raw:    []any{[]any{"id", "in", []any{1, 2, 3}}},
			clause: `"id" IN ($1, $2, $3)`,
			args:   []any{1, 2, 3},
		},
		{
			name:   "empty in matches nothing",
			raw:    []any{[]any{"id", "in", []any{}}},
			clause: `1 = 0`,
			args:   nil,
		},
		{
			name:   "like wraps value",
			raw:    []any{[]any{"name", "like", "bob"}},
			clause: `"name" LIKE $1`,
			args:   []any{"%bob%"},
		},
		{
			name:   "between",
			raw:    []any{[]any{"age", "between", []any{18, 30}}},
			clause: `"age" BETWEEN $1 AND $2`,
			args:   []any{18, 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := filter.Parse(tt.raw)
			require.NoError(t, err)

			clause, args, err := filter.Compile(dialect.PostgresDialect, expr)
			require.NoError(t, err)
			assert.Equal(t, tt.clause, clause)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCompileILikeFallsBackOnMySQL(t *testing.T) {
	expr, err := filter.Parse([]any{[]any{"name", "ilike", "bob"}})
	require.NoError(t, err)

	clause, args, err := filter.Compile(dialect.MySQLDialect, expr)
	require.NoError(t, err)
	assert.Equal(t, "LOWER(`name`) LIKE ?", clause)
	assert.Equal(t, []any{"%bob%"}, args)
}

func TestParseRejectsUnknownOperator(t *testing.T) {
	_, err := filter.Parse([]any{[]any{"name", "contains", "bob"}})
	require.Error(t, err)
}

func TestParseRejectsMalformedGroup(t *testing.T) {
	_, err := filter.Parse([]any{42})
	require.Error(t, err)
}
