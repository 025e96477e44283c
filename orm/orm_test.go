package orm_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/access"
	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

func taskRegistry() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.Boolean("done", field.WithDefault(false)),
		field.JSON("meta"),
	)
}

func newModel(t *testing.T) (*orm.Model, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	m := orm.NewModel(dialect.PostgresDialect, taskRegistry(), sess)
	return m, mock, func() { db.Close() }
}

func TestGetReturnsNotFoundWhenNoRowMatches(t *testing.T) {
	m, mock, closeDB := newModel(t)
	defer closeDB()

	mock.ExpectQuery(`SELECT .* FROM "task" WHERE "id" = \$1 LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "done", "meta"}))

	_, err := orm.Get(context.Background(), m, 1, nil)
	require.Error(t, err)
	assert.True(t, dotorm.IsNotFound(err))
}

func TestGetDecodesJSONColumn(t *testing.T) {
	m, mock, closeDB := newModel(t)
	defer closeDB()

	mock.ExpectQuery(`SELECT .* FROM "task" WHERE "id" = \$1 LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "done", "meta"}).
			AddRow(1, "ship it", false, `{"priority":"high"}`))

	row, err := orm.Get(context.Background(), m, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"priority": "high"}, row["meta"])
}

func TestGetDeniedByTableAccess(t *testing.T) {
	m, _, closeDB := newModel(t)
	defer closeDB()

	ctx := access.WithChecker(context.Background(), denyAll{})
	_, err := orm.Get(ctx, m, 1, nil)
	require.Error(t, err)
	assert.True(t, dotorm.IsAccessDenied(err))
}

func TestSearchMergesDomainFilterFromChecker(t *testing.T) {
	m, mock, closeDB := newModel(t)
	defer closeDB()

	mock.ExpectQuery(`SELECT .* FROM "task" WHERE .* ORDER BY "id" DESC LIMIT \$\d+`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "done", "meta"}))

	ctx := access.WithChecker(context.Background(), domainFilterChecker{filter: []any{"done", "=", false}})
	_, err := orm.Search(ctx, m, query.SearchOptions{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUsesLastInsertID(t *testing.T) {
	m, mock, closeDB := newModel(t)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO "task" \("title"\) VALUES \(\$1\) RETURNING "id"`).
		WithArgs("ship it").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := orm.Create(context.Background(), m, map[string]any{"title": "ship it"})
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
}

func TestCreateEncodesJSONPayload(t *testing.T) {
	m, mock, closeDB := newModel(t)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO "task" \("meta", "title"\) VALUES \(\$1, \$2\) RETURNING "id"`).
		WithArgs(`{"priority":"high"}`, "ship it").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	_, err := orm.Create(context.Background(), m, map[string]any{
		"title": "ship it",
		"meta":  map[string]any{"priority": "high"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func attachmentRegistry() *field.Registry {
	return field.NewRegistry("attachment",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("filename", 255, field.WithRequired(true)),
		field.PolymorphicMany2one("related", "related_model", "related_id"),
	)
}

func TestCreateTranslatesMany2oneFieldNameToPhysicalColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	m := orm.NewModel(dialect.PostgresDialect, taskWithRelationsRegistry(), sess)

	mock.ExpectQuery(`INSERT INTO "task" \("project_id", "title"\) VALUES \(\$1, \$2\) RETURNING "id"`).
		WithArgs(10, "ship it").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	_, err = orm.Create(context.Background(), m, map[string]any{
		"title":   "ship it",
		"project": 10,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTranslatesPolymorphicMany2oneFieldNameToIDColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	m := orm.NewModel(dialect.PostgresDialect, attachmentRegistry(), sess)

	// The generic write payload has no column for related's discriminator,
	// so only the id side of the polymorphic reference is ever written here.
	mock.ExpectQuery(`INSERT INTO "attachment" \("filename", "related_id"\) VALUES \(\$1, \$2\) RETURNING "id"`).
		WithArgs("report.pdf", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	_, err = orm.Create(context.Background(), m, map[string]any{
		"filename": "report.pdf",
		"related":  5,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRejectsEmptyPayload(t *testing.T) {
	m, _, closeDB := newModel(t)
	defer closeDB()

	err := orm.Update(context.Background(), m, 1, map[string]any{})
	require.Error(t, err)
}

func TestDeleteBulkDeniedWhenAnyRowDenied(t *testing.T) {
	m, _, closeDB := newModel(t)
	defer closeDB()

	ctx := access.WithChecker(context.Background(), denyRow{id: 2})
	err := orm.DeleteBulk(ctx, m, []any{1, 2, 3})
	require.Error(t, err)
	assert.True(t, dotorm.IsAccessDenied(err))
}

// denyAll denies every table access check.
type denyAll struct{ access.AlwaysAllow }

func (denyAll) CheckTableAccess(context.Context, string, access.Operation) (bool, error) {
	return false, nil
}

// denyRow denies row access whenever id is among the checked ids.
type denyRow struct {
	access.AlwaysAllow
	id any
}

func (d denyRow) CheckRowAccess(_ context.Context, _ string, _ access.Operation, ids []any) (bool, error) {
	for _, id := range ids {
		if id == d.id {
			return false, nil
		}
	}
	return true, nil
}

// domainFilterChecker always allows and returns filter as the domain
// restriction merged into every search.
type domainFilterChecker struct {
	access.AlwaysAllow
	filter any
}

func (c domainFilterChecker) GetDomainFilter(context.Context, string, access.Operation) (any, error) {
	return c.filter, nil
}
