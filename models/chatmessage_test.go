package models_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/session"

	"github.com/dotorm/dotorm/models"
)

func TestFindOrCreateThreadReturnsExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	noTx := session.NewNoTransactionSession(driver, nil)
	mock.ExpectBegin()
	tx, err := noTx.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "chat_thread" WHERE "subject_key" = \$1 LIMIT 1 FOR UPDATE SKIP LOCKED`).
		WithArgs("ticket-42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_key", "closed"}).AddRow(9, "ticket-42", false))

	threads := models.NewChatThreads(dialect.PostgresDialect)
	row, err := threads.FindOrCreateThread(context.Background(), tx, "ticket-42")
	require.NoError(t, err)
	assert.Equal(t, "ticket-42", row["subject_key"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateThreadInsertsWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	noTx := session.NewNoTransactionSession(driver, nil)
	mock.ExpectBegin()
	tx, err := noTx.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "chat_thread" WHERE "subject_key" = \$1 LIMIT 1 FOR UPDATE SKIP LOCKED`).
		WithArgs("ticket-99").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_key", "closed"}))
	mock.ExpectQuery(`INSERT INTO "chat_thread" .* RETURNING \*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_key", "closed"}).AddRow(10, "ticket-99", false))

	threads := models.NewChatThreads(dialect.PostgresDialect)
	row, err := threads.FindOrCreateThread(context.Background(), tx, "ticket-99")
	require.NoError(t, err)
	assert.EqualValues(t, 10, row["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}
