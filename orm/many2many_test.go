package orm_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

func roleRegistry() *field.Registry {
	return field.NewRegistry("role",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
		field.Many2many("based_roles", "role", "role_based_role_rel", "role_id", "based_role_id"),
	)
}

func newTaskTagModels(t *testing.T) (*orm.Model, *orm.Model, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	task := orm.NewModel(dialect.PostgresDialect, taskWithRelationsRegistry(), sess)
	tag := orm.NewModel(dialect.PostgresDialect, tagRegistry(), sess)
	return task, tag, mock, func() { db.Close() }
}

func TestGetMany2ManyFetchesJoinedRows(t *testing.T) {
	task, tag, mock, closeDB := newTaskTagModels(t)
	defer closeDB()

	mock.ExpectQuery(`SELECT .* FROM "tag" p JOIN "task_tag_rel" pt .* WHERE t."id" = \$1 ORDER BY "id" DESC LIMIT \$2`).
		WithArgs(1, 80).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(100, "urgent"))

	rel, _ := task.Registry.Field("tags")
	rows, err := orm.GetMany2Many(context.Background(), task, tag, rel, 1, nil, query.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "urgent", rows[0]["name"])
}

func TestLinkMany2ManyInsertsLinkRows(t *testing.T) {
	task, _, mock, closeDB := newTaskTagModels(t)
	defer closeDB()

	mock.ExpectExec(`INSERT INTO "task_tag_rel" \("task_id", "tag_id"\) VALUES \(\$1, \$2\), \(\$3, \$4\)`).
		WithArgs(1, 100, 1, 101).
		WillReturnResult(sqlmock.NewResult(0, 2))

	rel, _ := task.Registry.Field("tags")
	err := orm.LinkMany2Many(context.Background(), task, rel, 1, []any{100, 101})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkMany2ManyNoOpWithoutTargetIDs(t *testing.T) {
	task, _, _, closeDB := newTaskTagModels(t)
	defer closeDB()

	rel, _ := task.Registry.Field("tags")
	err := orm.LinkMany2Many(context.Background(), task, rel, 1, nil)
	require.NoError(t, err)
}

func TestUnlinkMany2ManyDeletesLinkRows(t *testing.T) {
	task, _, mock, closeDB := newTaskTagModels(t)
	defer closeDB()

	mock.ExpectExec(`DELETE FROM "task_tag_rel" WHERE "task_id" = \$1 AND "tag_id" IN \(\$2\)`).
		WithArgs(1, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rel, _ := task.Registry.Field("tags")
	err := orm.UnlinkMany2Many(context.Background(), task, rel, 1, []any{100})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecursiveClosureReturnsSelfAndAncestors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	role := orm.NewModel(dialect.PostgresDialect, roleRegistry(), sess)

	mock.ExpectQuery(`WITH RECURSIVE closure\("id"\) AS \(`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(2).AddRow(1))

	rel, _ := role.Registry.Field("based_roles")
	ids, err := orm.RecursiveClosure(context.Background(), role, rel, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 2, 1}, ids)
}

func TestRecursiveClosureUnsupportedOnMySQL(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.MySQLDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	role := orm.NewModel(dialect.MySQLDialect, roleRegistry(), sess)

	rel, _ := role.Registry.Field("based_roles")
	_, err = orm.RecursiveClosure(context.Background(), role, rel, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, dotorm.ErrUnsupportedDialect)
}
