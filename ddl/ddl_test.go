package ddl_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/ddl"
	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/session"
)

func taskRegistry() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.Boolean("done", field.WithDefault(false)),
		field.Many2one("project", "project", ""),
		field.Many2many("tags", "tag", "", "task_id", "tag_id"),
	)
}

func TestCreateTableRejectsClickhouseWithPrimaryKey(t *testing.T) {
	engine := ddl.New(dialect.ClickhouseDialect)
	_, err := engine.CreateTable(context.Background(), nil, taskRegistry())
	require.Error(t, err)
}

func TestCreateTableIssuesCreateAddColumnAndLinkTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "task"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT column_name FROM information_schema.columns WHERE table_name = \$1`).
		WithArgs("task").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id").AddRow("title"))
	mock.ExpectExec(`ALTER TABLE "task" ADD COLUMN "done"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE "task" ADD COLUMN "project_id"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "task_tag_rel"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_task_tag_rel_task_id_tag_id"`).WillReturnResult(sqlmock.NewResult(0, 0))

	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	engine := ddl.New(dialect.PostgresDialect)
	fks, err := engine.CreateTable(context.Background(), sess, taskRegistry())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var names []string
	for _, fk := range fks {
		names = append(names, fk.Name)
	}
	assert.Contains(t, names, "fk_task_project")
	assert.Contains(t, names, "fk_task_tag_rel_task_id")
	assert.Contains(t, names, "fk_task_tag_rel_tag_id")
}

func TestApplyForeignKeysDeduplicatesByName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`ALTER TABLE IF EXISTS "task" ADD CONSTRAINT "fk_task_project"`).WillReturnResult(sqlmock.NewResult(0, 0))

	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	engine := ddl.New(dialect.PostgresDialect)
	fks := []ddl.ForeignKey{
		{Name: "fk_task_project", SQL: `ALTER TABLE IF EXISTS "task" ADD CONSTRAINT "fk_task_project" FOREIGN KEY ("project_id") REFERENCES "project" (id) ON DELETE SET NULL`},
		{Name: "fk_task_project", SQL: `ALTER TABLE IF EXISTS "task" ADD CONSTRAINT "fk_task_project" FOREIGN KEY ("project_id") REFERENCES "project" (id) ON DELETE SET NULL`},
	}
	require.NoError(t, engine.ApplyForeignKeys(context.Background(), sess, fks))
	require.NoError(t, mock.ExpectationsWereMet())
}
