package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/router"
	"github.com/dotorm/dotorm/session"
	"github.com/dotorm/dotorm/validation"
)

func taskFields() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.Boolean("done", field.WithDefault(false)),
		field.Many2one("project", "project", "project_id"),
	)
}

func projectFields() *field.Registry {
	return field.NewRegistry("project",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
	)
}

func newRouterFixture(t *testing.T) (*router.Router, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskModel := orm.NewModel(dialect.PostgresDialect, taskFields(), sess)
	projectModel := orm.NewModel(dialect.PostgresDialect, projectFields(), sess)

	schemas := validation.NewRegistry()
	require.NoError(t, schemas.Build(map[string]*field.Registry{
		"task":    taskFields(),
		"project": projectFields(),
	}))

	rt := router.New(nil, nil)
	rt.Register(router.Resource{
		Table:   "task",
		Model:   taskModel,
		Related: map[string]*orm.Model{"project": projectModel},
		Schemas: schemas,
	})
	return rt, mock, func() { db.Close() }
}

func TestFieldsRouteWinsOverIDRoute(t *testing.T) {
	rt, _, closeDB := newRouterFixture(t)
	defer closeDB()

	req := httptest.NewRequest(http.MethodGet, "/task/fields", nil)
	rec := httptest.NewRecorder()
	rt.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"title"`)
}

func TestCreateRejectsUnknownField(t *testing.T) {
	rt, _, closeDB := newRouterFixture(t)
	defer closeDB()

	req := httptest.NewRequest(http.MethodPost, "/task", strings.NewReader(`{"title":"x","bogus":1}`))
	rec := httptest.NewRecorder()
	rt.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInsertsRowAndReturnsID(t *testing.T) {
	rt, mock, closeDB := newRouterFixture(t)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO "task" \("title"\) VALUES \(\$1\) RETURNING "id"`).
		WithArgs("ship it").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	req := httptest.NewRequest(http.MethodPost, "/task", strings.NewReader(`{"title":"ship it"}`))
	rec := httptest.NewRecorder()
	rt.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":7`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturns404AsNotFoundCode(t *testing.T) {
	rt, mock, closeDB := newRouterFixture(t)
	defer closeDB()

	mock.ExpectQuery(`SELECT .* FROM "task" WHERE "id" = \$1 LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "done", "project_id"}))

	req := httptest.NewRequest(http.MethodPost, "/task/1", nil)
	rec := httptest.NewRecorder()
	rt.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"#NOT_FOUND"`)
}

func TestDeleteBulkReturnsTrue(t *testing.T) {
	rt, mock, closeDB := newRouterFixture(t)
	defer closeDB()

	mock.ExpectExec(`DELETE FROM "task" WHERE "id" IN \(\$1, \$2\)`).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	req := httptest.NewRequest(http.MethodDelete, "/task/bulk", strings.NewReader(`[1, 2]`))
	rec := httptest.NewRecorder()
	rt.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true\n", rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJWTGuardRejectsMissingBearerToken(t *testing.T) {
	guard := router.NewJWTGuard([]byte("secret"))
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a valid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/task/fields", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFromContextEmptyWithoutGuard(t *testing.T) {
	assert.Equal(t, "", router.IdentityFromContext(context.Background()))
}
